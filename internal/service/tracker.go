package service

import (
	"sync"
	"time"
)

// Report run stages, advisory only. The durable truth is the lifecycle row.
const (
	StageQueued    = "queued"
	StageFetching  = "fetching"
	StageAnalyzing = "analyzing"
	StageDone      = "done"
	StageFailed    = "failed"
)

// ReportProgress represents the in-memory progress of one report run.
type ReportProgress struct {
	ReportID   string    `json:"report_id"`
	Stage      string    `json:"stage"`
	FilesDone  int       `json:"files_done"`
	FilesTotal int       `json:"files_total"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReportTracker manages report run progress in memory.
type ReportTracker struct {
	mu   sync.RWMutex
	runs map[string]*ReportProgress
	subs map[string][]chan ReportProgress // subscribers per report
}

// NewReportTracker creates a new report tracker.
func NewReportTracker() *ReportTracker {
	return &ReportTracker{
		runs: make(map[string]*ReportProgress),
		subs: make(map[string][]chan ReportProgress),
	}
}

// Create registers a new run entry in the queued stage.
func (t *ReportTracker) Create(reportID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.runs[reportID] = &ReportProgress{
		ReportID:  reportID,
		Stage:     StageQueued,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// SetStage updates a run's stage and notifies subscribers.
func (t *ReportTracker) SetStage(reportID, stage string) {
	t.update(reportID, func(p *ReportProgress) {
		p.Stage = stage
	})
}

// SetFiles updates a run's per-file progress and notifies subscribers.
func (t *ReportTracker) SetFiles(reportID string, done, total int) {
	t.update(reportID, func(p *ReportProgress) {
		p.FilesDone = done
		p.FilesTotal = total
	})
}

func (t *ReportTracker) update(reportID string, apply func(*ReportProgress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[reportID]
	if !ok {
		return
	}
	apply(run)
	run.UpdatedAt = time.Now()
	snapshot := *run

	// Notify subscribers. The sends are non-blocking and happen under the
	// same lock Unsubscribe closes channels under, so a send can never hit
	// a closed channel.
	for _, ch := range t.subs[reportID] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Get returns a run's progress.
func (t *ReportTracker) Get(reportID string) (*ReportProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[reportID]
	if !ok {
		return nil, false
	}
	snapshot := *run
	return &snapshot, true
}

// Subscribe returns a channel that receives progress updates.
func (t *ReportTracker) Subscribe(reportID string) chan ReportProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan ReportProgress, 10)
	t.subs[reportID] = append(t.subs[reportID], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers.
func (t *ReportTracker) Unsubscribe(reportID string, ch chan ReportProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[reportID]
	for i, s := range subs {
		if s == ch {
			t.subs[reportID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(ch)
}

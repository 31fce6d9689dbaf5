package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
)

// memStore is an in-memory port.ReportStore.
type memStore struct {
	mu        sync.Mutex
	reports   map[string]*domain.Report
	finalized map[string]int // id -> FinalizeReport call count
}

func newMemStore() *memStore {
	return &memStore{reports: make(map[string]*domain.Report), finalized: make(map[string]int)}
}

func (m *memStore) CreateReport(_ context.Context, r *domain.Report) (*domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.CreatedAt = time.Now()
	m.reports[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetReportByID(_ context.Context, id string) (*domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, port.ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListReportsByUser(_ context.Context, userID string) ([]domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Report
	for _, r := range m.reports {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) SetAnalysisStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return port.ErrReportNotFound
	}
	r.AnalysisStatus = status
	return nil
}

func (m *memStore) FinalizeReport(_ context.Context, id, ingestionStatus, analysisStatus, artifactPath, documentPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return port.ErrReportNotFound
	}
	r.IngestionStatus = ingestionStatus
	r.AnalysisStatus = analysisStatus
	r.ArtifactPath = artifactPath
	r.DocumentPath = documentPath
	m.finalized[id]++
	return nil
}

func (m *memStore) finalizeCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized[id]
}

// fakeSource returns scripted file records or an error.
type fakeSource struct {
	files []domain.FileRecord
	err   error
}

func (f *fakeSource) FetchFiles(_ context.Context, _ string, _, _ time.Time, _ string) ([]domain.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files, nil
}

// fakeAnalyzer records invocations and optionally fails.
type fakeAnalyzer struct {
	mu     sync.Mutex
	called int
	err    error
}

func (f *fakeAnalyzer) Run(_ context.Context, _, outputPath string, progress func(done, total int)) (string, error) {
	f.mu.Lock()
	f.called++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if progress != nil {
		progress(1, 1)
	}
	return outputPath, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

func someRecords(n int) []domain.FileRecord {
	files := make([]domain.FileRecord, n)
	for i := range files {
		files[i] = domain.FileRecord{Filename: "a.go", AuthorEmail: "dev@example.com", Code: "package a\n"}
	}
	return files
}

func validRequest() CreateReportRequest {
	return CreateReportRequest{
		RepoURL:     "https://github.com/acme/widgets",
		AuthorEmail: "dev@example.com",
		StartDate:   "2024-03-01",
		EndDate:     "2024-03-31",
	}
}

type fixture struct {
	store    *memStore
	source   *fakeSource
	analyzer *fakeAnalyzer
	tracker  *ReportTracker
	svc      *ReportService
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, source *fakeSource, an *fakeAnalyzer) *fixture {
	t.Helper()
	store := newMemStore()
	tracker := NewReportTracker()
	svc := NewReportService(store, source, an, tracker, t.TempDir(), 2, 8)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc.Start(ctx)

	return &fixture{store: store, source: source, analyzer: an, tracker: tracker, svc: svc, cancel: cancel}
}

func (f *fixture) awaitTerminal(t *testing.T, id string) *domain.Report {
	t.Helper()
	var report *domain.Report
	require.Eventually(t, func() bool {
		r, err := f.store.GetReportByID(context.Background(), id)
		if err != nil {
			return false
		}
		report = r
		return r.Terminal()
	}, 3*time.Second, 10*time.Millisecond)
	return report
}

func TestCreateReportValidation(t *testing.T) {
	f := newFixture(t, &fakeSource{}, &fakeAnalyzer{})

	cases := []struct {
		name   string
		mutate func(*CreateReportRequest)
	}{
		{"bad repo url", func(r *CreateReportRequest) { r.RepoURL = "https://gitlab.com/a/b" }},
		{"missing author", func(r *CreateReportRequest) { r.AuthorEmail = "" }},
		{"bad start date", func(r *CreateReportRequest) { r.StartDate = "March 1st" }},
		{"bad end date", func(r *CreateReportRequest) { r.EndDate = "2024-13-77" }},
		{"end before start", func(r *CreateReportRequest) { r.StartDate = "2024-03-31"; r.EndDate = "2024-03-01" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := f.svc.CreateReport(context.Background(), "user-1", req)
			assert.ErrorIs(t, err, port.ErrInvalidInput)
		})
	}
}

func TestReportLifecycleSuccess(t *testing.T) {
	f := newFixture(t, &fakeSource{files: someRecords(2)}, &fakeAnalyzer{})

	created, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionProcessing, created.IngestionStatus)
	assert.Equal(t, domain.AnalysisPending, created.AnalysisStatus)

	report := f.awaitTerminal(t, created.ID)
	assert.Equal(t, domain.IngestionCompleted, report.IngestionStatus)
	assert.Equal(t, domain.AnalysisCompleted, report.AnalysisStatus)
	assert.NotEmpty(t, report.ArtifactPath)
	assert.NotEmpty(t, report.DocumentPath)
	assert.True(t, report.HasDocument())

	path, _, err := f.svc.DocumentPath(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, report.DocumentPath, path)

	progress, ok := f.tracker.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, StageDone, progress.Stage)
}

func TestReportLifecycleFetchFailure(t *testing.T) {
	f := newFixture(t, &fakeSource{err: errors.New("github down")}, &fakeAnalyzer{})

	created, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)

	report := f.awaitTerminal(t, created.ID)
	assert.Equal(t, domain.IngestionFailed, report.IngestionStatus)
	assert.Equal(t, domain.AnalysisFailed, report.AnalysisStatus)
	assert.Empty(t, report.DocumentPath)
	assert.Zero(t, f.analyzer.callCount())

	_, _, err = f.svc.DocumentPath(context.Background(), "user-1", created.ID)
	assert.ErrorIs(t, err, port.ErrReportNotReady)
}

func TestReportLifecycleZeroFilesSkipsAnalyzer(t *testing.T) {
	f := newFixture(t, &fakeSource{files: nil}, &fakeAnalyzer{})

	created, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)

	report := f.awaitTerminal(t, created.ID)
	assert.Equal(t, domain.IngestionCompleted, report.IngestionStatus)
	assert.Equal(t, domain.AnalysisSkipped, report.AnalysisStatus)
	assert.Zero(t, f.analyzer.callCount(), "analyzer must not run for an empty batch")

	// A placeholder document is still downloadable.
	assert.NotEmpty(t, report.DocumentPath)
	assert.Equal(t, "analysis_"+created.ID+"_empty.pdf", filepath.Base(report.DocumentPath))
	assert.True(t, report.HasDocument())
}

func TestReportLifecycleAnalyzerFailure(t *testing.T) {
	f := newFixture(t, &fakeSource{files: someRecords(1)}, &fakeAnalyzer{err: errors.New("model down")})

	created, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)

	report := f.awaitTerminal(t, created.ID)
	assert.Equal(t, domain.IngestionCompleted, report.IngestionStatus)
	assert.Equal(t, domain.AnalysisFailed, report.AnalysisStatus)
	assert.Empty(t, report.DocumentPath)
	assert.False(t, report.HasDocument())
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t, &fakeSource{files: someRecords(1)}, &fakeAnalyzer{})

	created, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)
	first := f.awaitTerminal(t, created.ID)

	// Re-applying the same outcome leaves the record identical.
	f.svc.finalize(context.Background(), created.ID,
		first.IngestionStatus, first.AnalysisStatus, first.ArtifactPath, first.DocumentPath)

	again, err := f.store.GetReportByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, first.IngestionStatus, again.IngestionStatus)
	assert.Equal(t, first.AnalysisStatus, again.AnalysisStatus)
	assert.Equal(t, first.ArtifactPath, again.ArtifactPath)
	assert.Equal(t, first.DocumentPath, again.DocumentPath)
	assert.Equal(t, 2, f.store.finalizeCount(created.ID))
}

func TestFinalizeClearsDocumentPathOnFailure(t *testing.T) {
	f := newFixture(t, &fakeSource{files: someRecords(1)}, &fakeAnalyzer{})

	created, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)
	f.awaitTerminal(t, created.ID)

	f.svc.finalize(context.Background(), created.ID,
		domain.IngestionCompleted, domain.AnalysisFailed, "artifact.json", "stale.pdf")

	report, err := f.store.GetReportByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, report.DocumentPath)
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t, &fakeSource{files: someRecords(1)}, &fakeAnalyzer{})

	mine, err := f.svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)
	theirs, err := f.svc.CreateReport(context.Background(), "user-2", validRequest())
	require.NoError(t, err)
	f.awaitTerminal(t, mine.ID)
	f.awaitTerminal(t, theirs.ID)

	// Cross-user reads behave exactly like a missing report.
	_, err = f.svc.GetReport(context.Background(), "user-1", theirs.ID)
	assert.ErrorIs(t, err, port.ErrReportNotFound)
	_, _, err = f.svc.DocumentPath(context.Background(), "user-1", theirs.ID)
	assert.ErrorIs(t, err, port.ErrReportNotFound)

	reports, err := f.svc.ListReports(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, mine.ID, reports[0].ID)
}

func TestProcessAbortsOnUserMismatch(t *testing.T) {
	f := newFixture(t, &fakeSource{files: someRecords(1)}, &fakeAnalyzer{})

	report := &domain.Report{
		ID: "r-1", UserID: "owner", RepoURL: "https://github.com/acme/widgets",
		AuthorEmail: "dev@example.com", StartDate: "2024-03-01", EndDate: "2024-03-31",
		IngestionStatus: domain.IngestionProcessing, AnalysisStatus: domain.AnalysisPending,
	}
	_, err := f.store.CreateReport(context.Background(), report)
	require.NoError(t, err)

	f.svc.process("r-1", "intruder")

	got, err := f.store.GetReportByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionFailed, got.IngestionStatus)
	assert.Equal(t, domain.AnalysisSkipped, got.AnalysisStatus)
	assert.Zero(t, f.analyzer.callCount())
}

func TestCreateReportQueueFull(t *testing.T) {
	store := newMemStore()
	tracker := NewReportTracker()
	// Never started: nothing drains the queue.
	svc := NewReportService(store, &fakeSource{}, &fakeAnalyzer{}, tracker, t.TempDir(), 1, 1)

	_, err := svc.CreateReport(context.Background(), "user-1", validRequest())
	require.NoError(t, err)

	rejected, err := svc.CreateReport(context.Background(), "user-1", validRequest())
	assert.ErrorIs(t, err, port.ErrQueueFull)
	assert.Nil(t, rejected)

	// The rejected record is finalized failed/skipped rather than stuck.
	var failed *domain.Report
	for _, r := range mustList(t, store, "user-1") {
		if r.IngestionStatus == domain.IngestionFailed {
			cp := r
			failed = &cp
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, domain.AnalysisSkipped, failed.AnalysisStatus)
}

func mustList(t *testing.T, store *memStore, userID string) []domain.Report {
	t.Helper()
	reports, err := store.ListReportsByUser(context.Background(), userID)
	require.NoError(t, err)
	return reports
}

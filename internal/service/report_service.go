package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/go-commit-auditor/internal/analyzer"
	"github.com/arturoeanton/go-commit-auditor/internal/domain"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
	"github.com/arturoeanton/go-commit-auditor/internal/snapshot"
)

var githubURLPattern = regexp.MustCompile(`^https://github\.com/[^/]+/[^/]+`)

const dateLayout = "2006-01-02"

// DocumentAnalyzer turns a snapshot artifact into a rendered analysis
// document. Satisfied by *analyzer.Analyzer.
type DocumentAnalyzer interface {
	Run(ctx context.Context, snapshotPath, outputPath string, progress func(done, total int)) (string, error)
}

// CreateReportRequest carries the validated inputs of a new report.
type CreateReportRequest struct {
	RepoURL     string `json:"repo_url"`
	AuthorEmail string `json:"author_email"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type reportJob struct {
	reportID string
	userID   string
}

// ReportService owns the report lifecycle: it creates records, hands them to
// a bounded worker pool, and is the only writer of lifecycle status after
// creation.
type ReportService struct {
	store     port.ReportStore
	source    port.SourceProvider
	analyzer  DocumentAnalyzer
	tracker   *ReportTracker
	reportDir string

	workers int
	queue   chan reportJob

	startOnce sync.Once
}

// NewReportService creates a report service. workers bounds the number of
// concurrently processed reports; queueSize bounds how many may wait.
func NewReportService(store port.ReportStore, source port.SourceProvider, an DocumentAnalyzer, tracker *ReportTracker, reportDir string, workers, queueSize int) *ReportService {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &ReportService{
		store:     store,
		source:    source,
		analyzer:  an,
		tracker:   tracker,
		reportDir: reportDir,
		workers:   workers,
		queue:     make(chan reportJob, queueSize),
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (s *ReportService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			go s.workerLoop(ctx, i)
		}
		slog.Info("report workers started", "workers", s.workers, "queue_size", cap(s.queue))
	})
}

func (s *ReportService) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			slog.Info("worker picked up report", "worker", id, "report_id", job.reportID)
			s.process(job.reportID, job.userID)
		}
	}
}

// CreateReport validates the inputs, persists the report in its initial
// state, enqueues the background run, and returns immediately.
func (s *ReportService) CreateReport(ctx context.Context, userID string, req CreateReportRequest) (*domain.Report, error) {
	if !githubURLPattern.MatchString(req.RepoURL) {
		return nil, fmt.Errorf("%w: repository URL must look like https://github.com/<owner>/<repo>", port.ErrInvalidInput)
	}
	if req.AuthorEmail == "" {
		return nil, fmt.Errorf("%w: author email is required", port.ErrInvalidInput)
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date (expected YYYY-MM-DD)", port.ErrInvalidInput)
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid end date (expected YYYY-MM-DD)", port.ErrInvalidInput)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date must not be before start date", port.ErrInvalidInput)
	}

	report := &domain.Report{
		ID:              uuid.New().String(),
		UserID:          userID,
		RepoURL:         req.RepoURL,
		AuthorEmail:     req.AuthorEmail,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		IngestionStatus: domain.IngestionProcessing,
		AnalysisStatus:  domain.AnalysisPending,
	}

	created, err := s.store.CreateReport(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.tracker.Create(created.ID)

	select {
	case s.queue <- reportJob{reportID: created.ID, userID: userID}:
	default:
		// Queue saturated: fail the record rather than block the request path.
		s.finalize(context.Background(), created.ID, domain.IngestionFailed, domain.AnalysisSkipped, "", "")
		return nil, port.ErrQueueFull
	}

	slog.Info("report created", "report_id", created.ID, "user_id", userID, "repo", req.RepoURL)
	return created, nil
}

// process drives one report through the lifecycle state machine. The final
// status write always runs, whatever happened before it.
func (s *ReportService) process(reportID, userID string) {
	ctx := context.Background()

	report, err := s.store.GetReportByID(ctx, reportID)
	if err != nil {
		slog.Error("report not found for processing", "report_id", reportID, "error", err)
		return
	}
	if report.UserID != userID {
		slog.Error("user mismatch for report, aborting",
			"report_id", reportID, "expected", report.UserID, "got", userID)
		s.finalize(ctx, reportID, domain.IngestionFailed, domain.AnalysisSkipped, "", "")
		return
	}

	ingestion := domain.IngestionFailed
	analysis := domain.AnalysisFailed
	artifactPath := ""
	documentPath := ""

	defer func() {
		s.finalize(ctx, reportID, ingestion, analysis, artifactPath, documentPath)
	}()

	start, _ := time.Parse(dateLayout, report.StartDate)
	end, _ := time.Parse(dateLayout, report.EndDate)
	// The range is inclusive of the end day.
	end = end.Add(24*time.Hour - time.Second)

	s.tracker.SetStage(reportID, StageFetching)
	slog.Info("fetching files", "report_id", reportID,
		"repo", report.RepoURL, "author", report.AuthorEmail)

	files, err := s.source.FetchFiles(ctx, report.RepoURL, start, end, report.AuthorEmail)
	if err != nil {
		slog.Error("file fetch failed", "report_id", reportID, "error", err)
		s.tracker.SetStage(reportID, StageFailed)
		return
	}

	dir := filepath.Join(s.reportDir, reportID)
	artifactPath, err = snapshot.Write(reportID, files, dir)
	if err != nil {
		slog.Error("snapshot write failed", "report_id", reportID, "error", err)
		s.tracker.SetStage(reportID, StageFailed)
		return
	}
	slog.Info("snapshot written", "report_id", reportID, "path", artifactPath, "files", len(files))

	if len(files) == 0 {
		slog.Warn("no files matched the requested criteria", "report_id", reportID)
		ingestion = domain.IngestionCompleted
		analysis = domain.AnalysisSkipped
		emptyPath := filepath.Join(dir, "analysis_"+reportID+"_empty.pdf")
		if p, err := analyzer.WritePlaceholder(emptyPath); err != nil {
			slog.Error("placeholder document write failed", "report_id", reportID, "error", err)
		} else {
			documentPath = p
		}
		s.tracker.SetStage(reportID, StageDone)
		return
	}

	// Persisted before the batch starts so pollers can distinguish
	// "still analyzing" from "queued".
	if err := s.store.SetAnalysisStatus(ctx, reportID, domain.AnalysisProcessing); err != nil {
		slog.Error("failed to persist analysis status", "report_id", reportID, "error", err)
	}
	s.tracker.SetStage(reportID, StageAnalyzing)
	s.tracker.SetFiles(reportID, 0, len(files))

	outputPath := filepath.Join(dir, "analysis_"+reportID+".pdf")
	docPath, err := s.analyzer.Run(ctx, artifactPath, outputPath, func(done, total int) {
		s.tracker.SetFiles(reportID, done, total)
	})
	if err != nil {
		// Fetch and snapshot DID succeed; only the analysis stage failed.
		slog.Error("analysis failed", "report_id", reportID, "error", err)
		ingestion = domain.IngestionCompleted
		analysis = domain.AnalysisFailed
		documentPath = ""
		s.tracker.SetStage(reportID, StageFailed)
		return
	}

	ingestion = domain.IngestionCompleted
	analysis = domain.AnalysisCompleted
	documentPath = docPath
	s.tracker.SetStage(reportID, StageDone)
	slog.Info("report complete", "report_id", reportID, "document", documentPath)
}

// finalize re-loads the record fresh from the store and commits the final
// status fields in a single update. Re-running it with the same outcome
// leaves the record identical. A failure here is the one data-loss case the
// design cannot prevent.
func (s *ReportService) finalize(ctx context.Context, reportID, ingestion, analysis, artifactPath, documentPath string) {
	if analysis != domain.AnalysisCompleted && analysis != domain.AnalysisSkipped {
		documentPath = ""
	}

	fresh, err := s.store.GetReportByID(ctx, reportID)
	if err != nil {
		slog.Error("CRITICAL: report vanished before final status write",
			"report_id", reportID, "ingestion_status", ingestion, "analysis_status", analysis, "error", err)
		return
	}

	if err := s.store.FinalizeReport(ctx, fresh.ID, ingestion, analysis, artifactPath, documentPath); err != nil {
		slog.Error("CRITICAL: failed to persist final report status",
			"report_id", reportID, "ingestion_status", ingestion, "analysis_status", analysis, "error", err)
		return
	}
	slog.Info("final report status saved",
		"report_id", reportID, "ingestion_status", ingestion, "analysis_status", analysis)
}

// ListReports returns the user's reports, newest first.
func (s *ReportService) ListReports(ctx context.Context, userID string) ([]domain.Report, error) {
	return s.store.ListReportsByUser(ctx, userID)
}

// GetReport returns a single report, hiding reports owned by other users.
func (s *ReportService) GetReport(ctx context.Context, userID, reportID string) (*domain.Report, error) {
	report, err := s.store.GetReportByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != userID {
		return nil, port.ErrReportNotFound
	}
	return report, nil
}

// DocumentPath returns the rendered document's path for download, gated on
// the report having reached a document-bearing terminal state.
func (s *ReportService) DocumentPath(ctx context.Context, userID, reportID string) (string, *domain.Report, error) {
	report, err := s.GetReport(ctx, userID, reportID)
	if err != nil {
		return "", nil, err
	}
	if !report.HasDocument() {
		return "", report, port.ErrReportNotReady
	}
	return report.DocumentPath, report, nil
}

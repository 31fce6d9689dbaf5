package domain

import "time"

// Report is the central entity: one requested commit-review report.
// Its two lifecycle fields are written exclusively by the report service
// after creation; handlers only ever read them.
type Report struct {
	ID              string    `json:"id"               db:"id"`
	UserID          string    `json:"user_id"          db:"user_id"`
	RepoURL         string    `json:"repo_url"         db:"repo_url"`
	AuthorEmail     string    `json:"author_email"     db:"author_email"`
	StartDate       string    `json:"start_date"       db:"start_date"`
	EndDate         string    `json:"end_date"         db:"end_date"`
	IngestionStatus string    `json:"ingestion_status" db:"ingestion_status"`
	AnalysisStatus  string    `json:"analysis_status"  db:"analysis_status"`
	ArtifactPath    string    `json:"-"                db:"artifact_path"`
	DocumentPath    string    `json:"-"                db:"document_path"`
	CreatedAt       time.Time `json:"created_at"       db:"created_at"`
}

// Ingestion status constants (fetch + snapshot stage).
const (
	IngestionProcessing = "processing"
	IngestionCompleted  = "completed"
	IngestionFailed     = "failed"
)

// Analysis status constants (LLM review + document stage).
const (
	AnalysisPending    = "pending"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisSkipped    = "skipped"
	AnalysisFailed     = "failed"
)

// HasDocument reports whether the rendered document is ready for download.
func (r *Report) HasDocument() bool {
	return r.IngestionStatus == IngestionCompleted &&
		(r.AnalysisStatus == AnalysisCompleted || r.AnalysisStatus == AnalysisSkipped) &&
		r.DocumentPath != ""
}

// Terminal reports whether both lifecycle fields have reached a state the
// service performs no further transition from.
func (r *Report) Terminal() bool {
	switch r.IngestionStatus {
	case IngestionCompleted, IngestionFailed:
	default:
		return false
	}
	switch r.AnalysisStatus {
	case AnalysisCompleted, AnalysisSkipped, AnalysisFailed:
		return true
	}
	return false
}

// FileRecord is one file change fetched from a commit. It exists only inside
// a snapshot envelope and is never persisted on its own.
type FileRecord struct {
	Filename    string `json:"filename"`
	CommitDate  string `json:"commit_date"`
	AuthorEmail string `json:"author_email"`
	Code        string `json:"code"`
}

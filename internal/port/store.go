package port

import (
	"context"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
)

// ReportStore is the durable, owner-scoped record of reports. The report
// service is the only writer of lifecycle fields after creation.
type ReportStore interface {
	CreateReport(ctx context.Context, r *domain.Report) (*domain.Report, error)
	GetReportByID(ctx context.Context, id string) (*domain.Report, error)
	ListReportsByUser(ctx context.Context, userID string) ([]domain.Report, error)

	// SetAnalysisStatus persists an intermediate analysis status so pollers
	// can distinguish "still analyzing" from "queued".
	SetAnalysisStatus(ctx context.Context, id, status string) error

	// FinalizeReport commits both terminal statuses plus artifact and
	// document paths in a single update. Empty paths are stored as NULL.
	// Applying the same outcome twice must leave the row identical.
	FinalizeReport(ctx context.Context, id, ingestionStatus, analysisStatus, artifactPath, documentPath string) error
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

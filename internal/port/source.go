package port

import (
	"context"
	"time"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
)

// SourceProvider fetches the file changes a single author made in a
// repository within a date range.
//
// Ordering of the returned records follows the upstream commit list and is
// not guaranteed stable; callers must not depend on it.
type SourceProvider interface {
	FetchFiles(ctx context.Context, repoURL string, start, end time.Time, authorEmail string) ([]domain.FileRecord, error)
}

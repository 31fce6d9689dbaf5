package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- Users ---

// CreateUser inserts a new user account.
func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := `INSERT INTO users (id, username, email, password_hash, role)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, username, email, password_hash, role, created_at`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query,
		id, u.Username, u.Email, u.PasswordHash, u.Role,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, port.ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, email, password_hash, role, created_at
	          FROM users WHERE username = $1`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, username, email, password_hash, role, created_at
	          FROM users WHERE id = $1`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// --- Reports ---

const reportColumns = `id, user_id, repo_url, author_email, start_date, end_date,
	ingestion_status, analysis_status,
	COALESCE(artifact_path, ''), COALESCE(document_path, ''), created_at`

func scanReport(row interface{ Scan(...interface{}) error }) (*domain.Report, error) {
	var r domain.Report
	err := row.Scan(
		&r.ID, &r.UserID, &r.RepoURL, &r.AuthorEmail, &r.StartDate, &r.EndDate,
		&r.IngestionStatus, &r.AnalysisStatus,
		&r.ArtifactPath, &r.DocumentPath, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReport inserts a new report record in its initial lifecycle state.
func (s *PostgresStore) CreateReport(ctx context.Context, r *domain.Report) (*domain.Report, error) {
	query := `INSERT INTO reports
	          (id, user_id, repo_url, author_email, start_date, end_date, ingestion_status, analysis_status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING ` + reportColumns

	row := s.db.QueryRowContext(ctx, query,
		r.ID, r.UserID, r.RepoURL, r.AuthorEmail, r.StartDate, r.EndDate,
		r.IngestionStatus, r.AnalysisStatus,
	)
	report, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return report, nil
}

// GetReportByID returns a report by its ID.
func (s *PostgresStore) GetReportByID(ctx context.Context, id string) (*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := scanReport(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// ListReportsByUser returns all reports for a user, newest first.
func (s *PostgresStore) ListReportsByUser(ctx context.Context, userID string) ([]domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// SetAnalysisStatus persists an intermediate analysis status.
func (s *PostgresStore) SetAnalysisStatus(ctx context.Context, id, status string) error {
	query := `UPDATE reports SET analysis_status = $1 WHERE id = $2`
	_, err := s.db.ExecContext(ctx, query, status, id)
	return err
}

// FinalizeReport commits both statuses and paths in a single update.
// Empty paths are stored as NULL. The update carries no conditions beyond
// the id, so replaying the same outcome leaves the row identical.
func (s *PostgresStore) FinalizeReport(ctx context.Context, id, ingestionStatus, analysisStatus, artifactPath, documentPath string) error {
	query := `UPDATE reports
	          SET ingestion_status = $1, analysis_status = $2,
	              artifact_path = NULLIF($3, ''), document_path = NULLIF($4, '')
	          WHERE id = $5`
	_, err := s.db.ExecContext(ctx, query, ingestionStatus, analysisStatus, artifactPath, documentPath, id)
	return err
}

// --- Audit Logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	_, err := s.db.ExecContext(context.Background(), query,
		userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}

// ListAuditLogs returns recent audit logs with optional filters.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs`
	args := []interface{}{}
	argIdx := 1

	if action != "" {
		query += fmt.Sprintf(" WHERE action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
	"github.com/arturoeanton/go-commit-auditor/internal/middleware"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
	"github.com/arturoeanton/go-commit-auditor/internal/service"
)

// ReportHandler handles report lifecycle endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Register sets up report routes on the authenticated router group.
func (h *ReportHandler) Register(router fiber.Router) {
	reports := router.Group("/reports")
	reports.Post("/", h.Create)
	reports.Get("/", h.List)
	reports.Get("/:id", h.Get)
	reports.Get("/:id/download", h.Download)
}

// reportView is the API shape of a report.
type reportView struct {
	ID              string `json:"id"`
	RepoURL         string `json:"repo_url"`
	AuthorEmail     string `json:"author_email"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	IngestionStatus string `json:"ingestion_status"`
	AnalysisStatus  string `json:"analysis_status"`
	HasDocument     bool   `json:"has_document"`
	CreatedAt       string `json:"created_at"`
}

func toView(r *domain.Report) reportView {
	return reportView{
		ID:              r.ID,
		RepoURL:         r.RepoURL,
		AuthorEmail:     r.AuthorEmail,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		IngestionStatus: r.IngestionStatus,
		AnalysisStatus:  r.AnalysisStatus,
		HasDocument:     r.HasDocument(),
		CreatedAt:       r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Create accepts a new report request and queues it for processing.
func (h *ReportHandler) Create(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body service.CreateReportRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	report, err := h.reports.CreateReport(c.Context(), user.UserID, body)
	if err != nil {
		switch {
		case errors.Is(err, port.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, port.ErrQueueFull):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "server busy, try again later"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create report"})
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(toView(report))
}

// List returns the caller's reports, newest first.
func (h *ReportHandler) List(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	reports, err := h.reports.ListReports(c.Context(), user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list reports"})
	}

	views := make([]reportView, 0, len(reports))
	for i := range reports {
		views = append(views, toView(&reports[i]))
	}
	return c.JSON(fiber.Map{"reports": views, "count": len(views)})
}

// Get returns a single report owned by the caller.
func (h *ReportHandler) Get(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	report, err := h.reports.GetReport(c.Context(), user.UserID, c.Params("id"))
	if err != nil {
		if errors.Is(err, port.ErrReportNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "report not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load report"})
	}
	return c.JSON(toView(report))
}

// Download streams the rendered analysis document.
func (h *ReportHandler) Download(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	path, report, err := h.reports.DocumentPath(c.Context(), user.UserID, c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, port.ErrReportNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "report not found"})
		case errors.Is(err, port.ErrReportNotReady):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":            "report document is not ready",
				"ingestion_status": report.IngestionStatus,
				"analysis_status":  report.AnalysisStatus,
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load report"})
		}
	}

	return c.Download(path, downloadName(report))
}

// downloadName builds a friendly filename like CodeAnalysis_myrepo_1a2b3c4d.pdf.
func downloadName(r *domain.Report) string {
	repoName := strings.TrimSuffix(r.RepoURL, "/")
	if i := strings.LastIndex(repoName, "/"); i >= 0 {
		repoName = repoName[i+1:]
	}
	repoName = strings.TrimSuffix(repoName, ".git")
	if repoName == "" {
		repoName = "repo"
	}
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "CodeAnalysis_" + repoName + "_" + id + ".pdf"
}

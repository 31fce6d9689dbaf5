package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-commit-auditor/internal/middleware"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
	"github.com/arturoeanton/go-commit-auditor/internal/service"
)

// ProgressHandler exposes live progress for running reports.
type ProgressHandler struct {
	reports *service.ReportService
	tracker *service.ReportTracker
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(reports *service.ReportService, tracker *service.ReportTracker) *ProgressHandler {
	return &ProgressHandler{reports: reports, tracker: tracker}
}

// Register sets up progress routes on the authenticated router group.
func (h *ProgressHandler) Register(router fiber.Router) {
	reports := router.Group("/reports")
	reports.Get("/:id/progress", h.GetProgress)
	reports.Get("/:id/progress/stream", h.StreamSSE)
}

// authorize checks the caller owns the report before exposing progress.
func (h *ProgressHandler) authorize(c fiber.Ctx) (string, error) {
	user := middleware.GetUserContext(c)
	if user == nil {
		return "", c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	id := c.Params("id")
	if _, err := h.reports.GetReport(c.Context(), user.UserID, id); err != nil {
		if errors.Is(err, port.ErrReportNotFound) {
			return "", c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "report not found"})
		}
		return "", c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load report"})
	}
	return id, nil
}

// GetProgress returns the current in-memory progress snapshot.
func (h *ProgressHandler) GetProgress(c fiber.Ctx) error {
	id, err := h.authorize(c)
	if id == "" {
		return err
	}

	progress, ok := h.tracker.Get(id)
	if !ok {
		// The process restarted or the run predates this instance; the
		// persisted statuses on the report itself remain authoritative.
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no live progress for this report"})
	}
	return c.JSON(progress)
}

// StreamSSE streams progress updates via Server-Sent Events.
func (h *ProgressHandler) StreamSSE(c fiber.Ctx) error {
	id, err := h.authorize(c)
	if id == "" {
		return err
	}

	progress, ok := h.tracker.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no live progress for this report"})
	}

	// Already finished: send the final event and close.
	if progress.Stage == service.StageDone || progress.Stage == service.StageFailed {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		data, _ := json.Marshal(progress)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", progress.Stage, string(data)))
	}

	ch := h.tracker.Subscribe(id)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		data, _ := json.Marshal(progress)
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", string(data))
		w.Flush()

		timeout := time.After(5 * time.Minute)
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				data, _ := json.Marshal(update)
				eventType := "progress"
				if update.Stage == service.StageDone || update.Stage == service.StageFailed {
					eventType = update.Stage
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(data))
				w.Flush()

				if update.Stage == service.StageDone || update.Stage == service.StageFailed {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "report_id", id)
				return
			}
		}
	})
	return nil
}

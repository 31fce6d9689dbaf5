package middleware

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error
}

// auditActionGeneric is the catch-all action for requests that are not one
// of the named domain operations.
const auditActionGeneric = "http_request"

// AuditMiddleware records every request. Report and auth operations are
// written under their domain action names with the report id as the
// resource id; everything else is recorded as a generic http_request.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		// Execute the handler
		err := c.Next()

		userID := "anonymous"
		if uc := GetUserContext(c); uc != nil {
			userID = uc.UserID
		}

		action, resource, resourceID := classifyAudit(method, path)

		statusCode := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		detailsJSON, _ := json.Marshal(details)

		// Write audit log asynchronously — all values are captured, safe to use in goroutine
		go func() {
			if writeErr := writer.WriteAudit(
				userID,
				action,
				resource,
				resourceID,
				string(detailsJSON),
				ip,
				userAgent,
			); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

// classifyAudit maps a request onto its domain audit action. Unrecognized
// requests fall back to the generic action with the path as resource id.
func classifyAudit(method, path string) (action, resource, resourceID string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		rest := segments[2:]
		switch rest[0] {
		case "auth":
			if method == fiber.MethodPost && len(rest) == 2 {
				switch rest[1] {
				case "login":
					return domain.AuditActionLogin, "auth", ""
				case "register":
					return domain.AuditActionRegister, "auth", ""
				}
			}
		case "reports":
			if method == fiber.MethodPost && len(rest) == 1 {
				return domain.AuditActionReportCreate, "report", ""
			}
			if method == fiber.MethodGet && len(rest) == 3 && rest[2] == "download" {
				return domain.AuditActionReportDownload, "report", rest[1]
			}
		}
	}

	return auditActionGeneric, "api", path
}

package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
)

func TestClassifyAudit(t *testing.T) {
	cases := []struct {
		name       string
		method     string
		path       string
		action     string
		resource   string
		resourceID string
	}{
		{"login", "POST", "/api/v1/auth/login", domain.AuditActionLogin, "auth", ""},
		{"register", "POST", "/api/v1/auth/register", domain.AuditActionRegister, "auth", ""},
		{"create report", "POST", "/api/v1/reports", domain.AuditActionReportCreate, "report", ""},
		{"download report", "GET", "/api/v1/reports/r-123/download", domain.AuditActionReportDownload, "report", "r-123"},
		{"list reports", "GET", "/api/v1/reports", auditActionGeneric, "api", "/api/v1/reports"},
		{"get report", "GET", "/api/v1/reports/r-123", auditActionGeneric, "api", "/api/v1/reports/r-123"},
		{"progress", "GET", "/api/v1/reports/r-123/progress", auditActionGeneric, "api", "/api/v1/reports/r-123/progress"},
		{"health", "GET", "/api/v1/health", auditActionGeneric, "api", "/api/v1/health"},
		{"login wrong method", "GET", "/api/v1/auth/login", auditActionGeneric, "api", "/api/v1/auth/login"},
		{"outside api", "GET", "/favicon.ico", auditActionGeneric, "api", "/favicon.ico"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action, resource, resourceID := classifyAudit(tc.method, tc.path)
			assert.Equal(t, tc.action, action)
			assert.Equal(t, tc.resource, resource)
			assert.Equal(t, tc.resourceID, resourceID)
		})
	}
}

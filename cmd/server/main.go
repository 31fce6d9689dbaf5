package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/go-commit-auditor/internal/adapter/ai"
	"github.com/arturoeanton/go-commit-auditor/internal/adapter/github"
	"github.com/arturoeanton/go-commit-auditor/internal/adapter/store"
	"github.com/arturoeanton/go-commit-auditor/internal/analyzer"
	"github.com/arturoeanton/go-commit-auditor/internal/handler"
	"github.com/arturoeanton/go-commit-auditor/internal/middleware"
	"github.com/arturoeanton/go-commit-auditor/internal/service"
	"github.com/arturoeanton/go-commit-auditor/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting CommitAudit AI",
		"port", cfg.Port,
		"llm_model", cfg.LLMModel,
		"workers", cfg.WorkerCount,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	// ── Adapters ─────────────────────────────────────────────────────────
	gitHub := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken)
	llm := ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
	})

	// ── Services ─────────────────────────────────────────────────────────
	jwtConfig := middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	}

	tracker := service.NewReportTracker()
	reviewer := analyzer.New(llm)
	reportService := service.NewReportService(pgStore, gitHub, reviewer, tracker,
		cfg.ReportDir, cfg.WorkerCount, cfg.QueueSize)
	reportService.Start(context.Background())

	authService := service.NewAuthService(pgStore, jwtConfig)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// ── Public Routes ────────────────────────────────────────────────────
	authHandler := handler.NewAuthHandler(authService)
	authHandler.Register(app)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	api := app.Group("/api/v1", middleware.JWTMiddleware(jwtConfig))

	reportHandler := handler.NewReportHandler(reportService)
	reportHandler.Register(api)

	progressHandler := handler.NewProgressHandler(reportService, tracker)
	progressHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

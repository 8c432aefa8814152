package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kindredapp/kindred/internal/config"
	"github.com/kindredapp/kindred/internal/database"
	"github.com/kindredapp/kindred/internal/handlers"
	"github.com/kindredapp/kindred/internal/middleware"
	"github.com/kindredapp/kindred/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers = handlers.New(app.logger, services)

	app.setupRouter()

	// Feature-update events from the analysis pipeline invalidate cached
	// snapshots and candidate lists.
	consumerCtx, cancel := context.WithCancel(context.Background())
	app.consumerCancel = cancel
	services.StartFeatureUpdateConsumer(consumerCtx, app.logger)

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
	}

	if a.services != nil && a.services.MessageBus != nil {
		if err := a.services.MessageBus.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing message bus")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestLogger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// Token issuance (called by the gateway, no bearer token yet)
	router.POST("/api/v1/auth/token", a.handlers.Auth.IssueToken)

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))

		matching := api.Group("/matching")
		{
			matching.POST("/candidates", a.handlers.Matching.FindCandidates)
			matching.POST("/compatibility", a.handlers.Matching.CalculateCompatibility)
			matching.GET("/compatibility/:targetId/breakdown", a.handlers.Matching.GetBreakdown)
			matching.GET("/preferences", a.handlers.Matching.GetPreferences)
			matching.PUT("/preferences", a.handlers.Matching.UpdatePreferences)
			matching.POST("/feedback", a.handlers.Matching.SubmitFeedback)
		}
	}

	a.router = router
}

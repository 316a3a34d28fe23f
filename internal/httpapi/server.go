// Package httpapi provides the HTTP surface for boardsync.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boardsync/internal/audit"
	"github.com/fyrsmithlabs/boardsync/internal/engine"
)

// Runner is the engine surface the server exposes. *engine.Engine
// satisfies it.
type Runner interface {
	Sync(ctx context.Context, opts engine.SyncOptions) (*engine.SyncResult, error)
	Review(ctx context.Context, cardID string) (*audit.ReviewReport, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for boardsync.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *zap.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/sync", s.handleSync)
	v1.POST("/review", s.handleReview)
}

// SyncRequest is the request body for POST /api/v1/sync. Since accepts
// an RFC 3339 timestamp or a duration like "168h" counted back from
// now.
type SyncRequest struct {
	Since       string `json:"since"`
	DryRun      bool   `json:"dry_run"`
	UpdateGuide bool   `json:"update_guide"`
}

// SyncResponse is the response body for POST /api/v1/sync.
type SyncResponse struct {
	RunID    string `json:"run_id"`
	Changes  int    `json:"changes"`
	Relevant int    `json:"relevant"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	DryRun   bool   `json:"dry_run"`
}

// ReviewRequest is the request body for POST /api/v1/review.
type ReviewRequest struct {
	CardID string `json:"card_id"`
}

// ReviewResponse is the response body for POST /api/v1/review.
type ReviewResponse struct {
	CardID         string   `json:"card_id"`
	Verdict        string   `json:"verdict"`
	MissingSymbols []string `json:"missing_symbols,omitempty"`
	QualityIssues  int      `json:"quality_issues"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSync runs a synchronization pass.
func (s *Server) handleSync(c echo.Context) error {
	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid sync request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	since, err := parseSince(req.Since)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.runner.Sync(c.Request().Context(), engine.SyncOptions{
		Since:       since,
		DryRun:      req.DryRun,
		UpdateGuide: req.UpdateGuide,
	})
	if err != nil {
		s.logger.Error("sync run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "synchronization failed")
	}

	return c.JSON(http.StatusOK, SyncResponse{
		RunID:    result.RunID,
		Changes:  result.Changes,
		Relevant: result.Relevant,
		Created:  result.Created,
		Updated:  result.Updated,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		DryRun:   req.DryRun,
	})
}

// handleReview audits one card and publishes the verdict.
func (s *Server) handleReview(c echo.Context) error {
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid review request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CardID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "card_id field is required")
	}

	report, err := s.runner.Review(c.Request().Context(), req.CardID)
	if err != nil {
		s.logger.Error("review failed", zap.String("card", req.CardID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "review failed")
	}

	return c.JSON(http.StatusOK, ReviewResponse{
		CardID:         report.CardID,
		Verdict:        string(report.Verdict),
		MissingSymbols: report.MissingSymbols,
		QualityIssues:  len(report.QualityIssues),
	})
}

func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("since must be an RFC 3339 timestamp or a duration")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Package http provides the HTTP API for modelrouter.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/bandit"
	"github.com/fyrsmithlabs/modelrouter/internal/cache"
	"github.com/fyrsmithlabs/modelrouter/internal/logging"
	"github.com/fyrsmithlabs/modelrouter/internal/routing"
)

// maxBodyBytes caps request bodies; feature vectors and prompts are small.
const maxBodyBytes = "1M"

// Router is the routing surface served over HTTP.
type Router interface {
	Select(ctx context.Context, req routing.SelectRequest) (routing.Decision, error)
	Reward(ctx context.Context, decisionID string, reward float64) error
	Execute(ctx context.Context, req routing.ExecuteRequest) (routing.ExecuteResult, error)
	Snapshot() routing.Snapshot
	Save() error
}

// CacheAdmin exposes cache statistics and maintenance.
type CacheAdmin interface {
	AllStats() []cache.StatsSnapshot
	CleanupAll() map[string]int
}

// Server provides HTTP endpoints for modelrouter.
type Server struct {
	echo    *echo.Echo
	router  Router
	caches  CacheAdmin
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// Gatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// FeedbackEnabled is reported by the status endpoint.
	FeedbackEnabled bool
}

// NewServer creates a new HTTP server.
func NewServer(router Router, caches CacheAdmin, logger *zap.Logger, cfg *Config) (*Server, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if caches == nil {
		return nil, fmt.Errorf("cache admin cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		router:  router,
		caches:  caches,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if logging.IsValidID(requestID) {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))
			}

			err := next(c)
			if err != nil {
				// Let echo render the error now so the logged status is final.
				c.Error(err)
			}
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", requestID),
			)

			return nil
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/select", s.handleSelect)
	v1.POST("/reward", s.handleReward)
	v1.POST("/execute", s.handleExecute)
	v1.GET("/arms", s.handleArms)
	v1.POST("/state/save", s.handleSave)
	v1.GET("/cache/stats", s.handleCacheStats)
	v1.POST("/cache/cleanup", s.handleCacheCleanup)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.router.Snapshot()
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Version: s.config.Version,
		Routers: map[string]bool{
			routing.RouterThompson: snap.ThompsonEnabled,
			routing.RouterLinUCB:   snap.ContextualEnabled,
		},
		Counts: StatusCounts{
			ThompsonArms:     len(snap.Thompson),
			LinUCBArms:       len(snap.LinUCB),
			PendingDecisions: snap.PendingDecisions,
		},
		Caches:   len(s.caches.AllStats()),
		Feedback: s.config.FeedbackEnabled,
	})
}

func (s *Server) handleSelect(c echo.Context) error {
	var req SelectRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid select request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Arms) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "arms field is required")
	}

	d, err := s.router.Select(c.Request().Context(), routing.SelectRequest{
		Arms:       req.Arms,
		Features:   req.Features,
		Context:    req.Context,
		Diagnostic: req.Diagnostic,
	})
	if err != nil {
		return s.routingError(err)
	}
	return c.JSON(http.StatusOK, selectResponse(d))
}

func (s *Server) handleReward(c echo.Context) error {
	var req RewardRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid reward request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DecisionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "decision_id field is required")
	}
	if req.Reward == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reward field is required")
	}

	if err := s.router.Reward(c.Request().Context(), req.DecisionID, *req.Reward); err != nil {
		return s.routingError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleExecute(c echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid execute request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Arms) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "arms field is required")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}

	res, err := s.router.Execute(c.Request().Context(), routing.ExecuteRequest{
		Arms:          req.Arms,
		Features:      req.Features,
		Context:       req.Context,
		Prompt:        req.Prompt,
		LatencyBudget: time.Duration(req.LatencyBudgetMS) * time.Millisecond,
		ArmCosts:      req.ArmCosts,
	})

	// A decision was made, so the body carries it: 409 when the reward
	// could not be applied, 502 when the model call failed.
	if err != nil && res.Decision.ID != "" {
		status := http.StatusBadGateway
		if errors.Is(err, routing.ErrDecisionNotFound) {
			status = http.StatusConflict
		}
		s.logger.Warn("execution failed", zap.String("arm", res.Decision.Arm), zap.Error(err))
		return c.JSON(status, executeResponse(res, err))
	}
	if err != nil {
		return s.routingError(err)
	}
	return c.JSON(http.StatusOK, executeResponse(res, nil))
}

func (s *Server) handleArms(c echo.Context) error {
	return c.JSON(http.StatusOK, s.router.Snapshot())
}

func (s *Server) handleSave(c echo.Context) error {
	if err := s.router.Save(); err != nil {
		s.logger.Error("failed to save router state", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save router state")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.caches.AllStats())
}

func (s *Server) handleCacheCleanup(c echo.Context) error {
	removed := s.caches.CleanupAll()
	total := 0
	for _, n := range removed {
		total += n
	}
	s.logger.Debug("cache cleanup", zap.Int("removed", total))
	return c.JSON(http.StatusOK, CleanupResponse{Removed: removed, Total: total})
}

// routingError maps routing and bandit errors onto HTTP status codes.
func (s *Server) routingError(err error) error {
	switch {
	case errors.Is(err, routing.ErrDecisionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "decision not found")
	case errors.Is(err, bandit.ErrNoArms),
		errors.Is(err, bandit.ErrDimensionMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, routing.ErrNoLLMClient):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error("routing request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func selectResponse(d routing.Decision) SelectResponse {
	return SelectResponse{
		DecisionID: d.ID,
		Arm:        d.Arm,
		Router:     d.Router,
		Score:      d.Score,
	}
}

func executeResponse(res routing.ExecuteResult, err error) ExecuteResponse {
	out := ExecuteResponse{
		SelectResponse: selectResponse(res.Decision),
		Output:         res.Output,
		LatencyMS:      res.Latency.Milliseconds(),
		Reward:         res.Reward,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
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

// Package http provides the HTTP API for pasokhd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/yektalaw/pasokhd/internal/logging"
	"github.com/yektalaw/pasokhd/internal/pipeline"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

// Asker answers queries. Implemented by the pipeline.
type Asker interface {
	Ask(ctx context.Context, query pipeline.Query) (*pipeline.Response, error)
}

// Server exposes the query API over HTTP.
type Server struct {
	echo    *echo.Echo
	asker   Asker
	logger  *logging.Logger
	metrics *HTTPMetrics
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server.
func NewServer(asker Asker, logger *logging.Logger, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("asker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			duration := time.Since(start)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		asker:   asker,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Query          string            `json:"query"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Language       string            `json:"language,omitempty"`
	MaxResults     int               `json:"max_results,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	UseCache       *bool             `json:"use_cache,omitempty"`
	UseReranking   *bool             `json:"use_reranking,omitempty"`
	FileDigests    []string          `json:"file_digests,omitempty"`
}

// AskResponse is the response body for POST /api/v1/ask. Sources are
// chunk identifiers in citation order.
type AskResponse struct {
	Answer           string   `json:"answer"`
	Sources          []string `json:"sources"`
	ConversationID   string   `json:"conversation_id"`
	TokensUsed       int      `json:"tokens_used"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Cached           bool     `json:"cached"`
}

// ErrorResponse is the body of any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	if req.ConversationID != "" {
		ctx = logging.WithConversationID(ctx, req.ConversationID)
	}

	start := time.Now()
	resp, err := s.asker.Ask(ctx, pipeline.Query{
		Text:           req.Query,
		ConversationID: req.ConversationID,
		Language:       req.Language,
		MaxChunks:      req.MaxResults,
		Filters:        req.Filters,
		UseCache:       req.UseCache,
		UseReranking:   req.UseReranking,
		FileDigests:    req.FileDigests,
	})
	if err != nil {
		status := statusFromError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "ask failed", zap.Error(err))
		}
		return c.JSON(status, ErrorResponse{Error: publicErrorMessage(err, status)})
	}

	sources := make([]string, len(resp.Sources))
	for i, src := range resp.Sources {
		sources[i] = src.ChunkID
	}

	return c.JSON(http.StatusOK, AskResponse{
		Answer:           resp.Answer,
		Sources:          sources,
		ConversationID:   req.ConversationID,
		TokensUsed:       resp.Usage.Total(),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Cached:           resp.Cached,
	})
}

// statusFromError maps pipeline errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, pipeline.ErrGenerationFailed),
		errors.Is(err, pipeline.ErrEmbeddingFailed),
		errors.Is(err, pipeline.ErrRetrievalFailed):
		return http.StatusBadGateway
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage keeps internal error chains out of 5xx bodies.
func publicErrorMessage(err error, status int) string {
	if status == http.StatusBadRequest {
		return err.Error()
	}
	switch status {
	case http.StatusGatewayTimeout:
		return "request timed out"
	case http.StatusBadGateway:
		return "upstream service unavailable"
	default:
		return "internal error"
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

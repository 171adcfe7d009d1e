// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avolkov/quaero/internal/pipeline"
	"github.com/avolkov/quaero/internal/plan"
	"github.com/gin-gonic/gin"
)

// Server wraps the gin engine around one pipeline.
type Server struct {
	pipe   *pipeline.Pipeline
	engine *gin.Engine
	addr   string
}

type queryRequest struct {
	Question string `json:"question" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the server with routes and middleware attached.
func New(pipe *pipeline.Pipeline, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLog())

	s := &Server{
		pipe:   pipe,
		engine: engine,
		addr:   addr,
	}

	engine.POST("/query", s.handleQuery)
	engine.GET("/health", s.handleHealth)
	engine.GET("/ready", s.handleReady)
	return s
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "body must be JSON with a non-empty \"question\" field"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "question must not be blank"})
		return
	}

	response, err := s.pipe.Answer(c.Request.Context(), req.Question)
	if err != nil {
		status, msg := mapError(err)
		slog.Warn("query failed", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(status, errorResponse{Error: msg})
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady reports whether the pipeline can take queries at all. A
// server without an LLM provider serves /health but never becomes ready.
func (s *Server) handleReady(c *gin.Context) {
	if s.pipe == nil || !s.pipe.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no language model configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"data_version": s.pipe.Versions().Current(),
	})
}

// mapError turns pipeline errors into HTTP status codes. Planning
// failures are the client-visible "could not plan" outcome; timeouts map
// to 504; anything else is a 500.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrLLMNotConfigured):
		return http.StatusServiceUnavailable, "no language model is configured"
	case errors.Is(err, pipeline.ErrQueryTimeout):
		return http.StatusGatewayTimeout, "query timed out"
	case errors.Is(err, pipeline.ErrQueryCancelled):
		return http.StatusRequestTimeout, "query cancelled"
	case errors.Is(err, plan.ErrPlanningFailed):
		return http.StatusUnprocessableEntity, "could not form a retrieval plan for this question"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

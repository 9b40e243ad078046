// Package server exposes conversation agents and the image service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/black-roland/homeassistant-yandexgpt/agent"
	"github.com/black-roland/homeassistant-yandexgpt/conversation"
	"github.com/black-roland/homeassistant-yandexgpt/integration"
	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

// Runtimes resolves loaded entries.
type Runtimes interface {
	Get(id string) (*integration.Runtime, bool)
	IDs() []string
}

// ImageGenerator renders one image and returns where it was stored.
type ImageGenerator interface {
	Generate(ctx context.Context, seed uint64, prompt, dest string) (string, error)
}

// ImageResolver returns the generator for an entry.
type ImageResolver func(entryID string) (ImageGenerator, error)

// Config for the HTTP server.
type Config struct {
	Addr                string
	ReadTimeout         time.Duration
	RequestTimeout      time.Duration
	MaxRequestBodyBytes int64
	// SessionTTL evicts idle conversations.
	SessionTTL time.Duration
	Logger     *zap.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	runtimes Runtimes
	images   ImageResolver
	sessions *Sessions
	router   *gin.Engine
	http     *http.Server
}

// New constructs the server. images may be nil to disable image generation.
func New(runtimes Runtimes, images ImageResolver, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.MaxRequestBodyBytes == 0 {
		cfg.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, runtimes: runtimes, images: images, sessions: NewSessions(cfg.SessionTTL)}
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), s.limitBody())
	r.GET("/health", s.health)
	r.POST("/api/conversation/:entry", s.converse)
	r.POST("/api/services/generate_image", s.generateImage)
	s.router = r

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     r,
		ReadTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start the HTTP server.
func (s *Server) Start() error {
	s.cfg.Logger.Info("starting http server", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.cfg.Logger.Info("stopping http server")
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.cfg.Logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxRequestBodyBytes)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "entries": s.runtimes.IDs(), "time": time.Now().Format(time.RFC3339)})
}

// ConversationRequest is the body of a conversation turn.
type ConversationRequest struct {
	Text           string `json:"text" binding:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	Language       string `json:"language,omitempty"`
}

// ErrorResponse is the body of failed requests and SSE error events.
type ErrorResponse struct {
	Error string `json:"error"`
	// TranslationKey lets clients localise provider failures.
	TranslationKey string `json:"translation_key,omitempty"`
}

func (s *Server) converse(c *gin.Context) {
	var req ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	rt, ok := s.runtimes.Get(c.Param("entry"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown entry " + c.Param("entry")})
		return
	}

	log, release := s.sessions.Acquire(req.ConversationID)
	defer release()

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	log.OnDelta = func(d conversation.DeltaEvent) {
		c.SSEvent("delta", d.Map())
		c.Writer.Flush()
	}
	defer func() { log.OnDelta = nil }()

	res, err := rt.Converse(ctx, log, agent.Input{
		Text:           req.Text,
		ConversationID: log.ConversationID,
		AgentID:        req.AgentID,
		Language:       req.Language,
	})
	if err != nil {
		s.cfg.Logger.Error("conversation turn failed",
			zap.String("entry", rt.Entry.ID), zap.String("conversation_id", log.ConversationID), zap.Error(err))
		c.SSEvent("error", ErrorResponse{Error: err.Error(), TranslationKey: agent.TranslationKey(err)})
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", res)
	c.Writer.Flush()
}

// ImageRequest is the body of the generate_image service.
type ImageRequest struct {
	ConfigEntry string  `json:"config_entry" binding:"required"`
	Seed        *uint64 `json:"seed"`
	Prompt      string  `json:"prompt" binding:"required"`
	FileName    string  `json:"file_name" binding:"required"`
}

func (s *Server) generateImage(c *gin.Context) {
	if s.images == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "image generation is not configured"})
		return
	}
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	gen, err := s.images(req.ConfigEntry)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	var seed uint64
	if req.Seed != nil {
		seed = *req.Seed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()
	loc, err := gen.Generate(ctx, seed, req.Prompt, req.FileName)
	if err != nil {
		s.cfg.Logger.Error("image generation failed", zap.String("entry", req.ConfigEntry), zap.Error(err))
		c.JSON(imageStatus(err), ErrorResponse{Error: err.Error(), TranslationKey: agent.TranslationKey(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_name": loc})
}

func imageStatus(err error) int {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusGatewayTimeout
	case llm.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

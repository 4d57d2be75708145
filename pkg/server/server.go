// Package server exposes the concierge over HTTP: a single chat endpoint,
// health and Prometheus metrics. Transport only; every conversational
// decision lives behind the router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salonkit/concierge/pkg/config"
	"github.com/salonkit/concierge/pkg/observability"
	"github.com/salonkit/concierge/pkg/router"
)

// ChatRouter is the conversational entry point. *router.Router satisfies it.
type ChatRouter interface {
	Route(ctx context.Context, msg router.Message) (*router.Reply, error)
}

type Server struct {
	httpServer *http.Server
	router     ChatRouter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func New(cfg config.ServerConfig, chat ChatRouter, opts ...Option) *Server {
	s := &Server{
		router: chat,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
	}
	return s
}

// Handler returns the assembled HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Stage          string `json:"stage"`
	Escalated      bool   `json:"escalated"`
	ManagerAlert   string `json:"manager_alert,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	// A fresh conversation may arrive without an id; mint one and hand it
	// back so the client can continue the thread.
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	reply, err := s.router.Route(r.Context(), router.Message{
		ConversationID: conversationID,
		Text:           req.Text(),
	})
	if err != nil {
		s.logger.Error("chat turn failed",
			"conversation", conversationID, "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "the assistant is temporarily unavailable"})
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: conversationID,
		Reply:          reply.Text,
		Stage:          reply.Stage.String(),
		Escalated:      reply.Escalated,
		ManagerAlert:   reply.ManagerAlert,
	})
}

// Text trims the inbound message once, at the edge.
func (r chatRequest) Text() string {
	return strings.TrimSpace(r.Message)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// observe records request metrics per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.RecordHTTPRequest(route, ww.Status(), time.Since(start))
	})
}

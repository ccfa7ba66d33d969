// Package api serves the webhook endpoints and the operator API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/h1v3-io/zenslack/internal/link"
	"github.com/h1v3-io/zenslack/internal/logbuf"
	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf.Buffer.
type LogQuerier interface {
	Query(q logbuf.Query) []logbuf.Entry
}

// LinkLister lists persisted thread/ticket links.
type LinkLister interface {
	List(ctx context.Context, f link.Filter) ([]*protocol.TicketLink, error)
}

// Webhooks receives inbound Slack and Zendesk deliveries.
type Webhooks interface {
	SlackEvents(w http.ResponseWriter, r *http.Request)
	Zendesk(w http.ResponseWriter, r *http.Request)
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth on /api routes
}

// Server is the zenslack HTTP server.
type Server struct {
	cfg    Config
	hooks  Webhooks
	links  LinkLister
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
}

// NewServer creates the HTTP server. logs may be nil.
func NewServer(cfg Config, hooks Webhooks, links LinkLister, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		hooks:  hooks,
		links:  links,
		logger: logger,
		logs:   logs,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/slack/events", hooks.SlackEvents)
	r.Post("/slack/events/", hooks.SlackEvents)
	r.Post("/zendesk/webhook", hooks.Zendesk)
	r.Post("/zendesk/webhook/", hooks.Zendesk)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Group(func(authed chi.Router) {
			authed.Use(s.requireAuth)
			authed.Get("/links", s.handleListLinks)
			authed.Get("/logs", s.handleGetLogs)
		})
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("http server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	filter := link.Filter{Limit: 100}
	if status := r.URL.Query().Get("status"); status != "" {
		ls := protocol.LinkStatus(status)
		if ls != protocol.LinkOpen && ls != protocol.LinkResolved {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be open or resolved"})
			return
		}
		filter.Status = &ls
	}
	filter.ChannelID = r.URL.Query().Get("channel")
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	links, err := s.links.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list links failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list links failed"})
		return
	}
	if links == nil {
		links = []*protocol.TicketLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := logbuf.Query{
		MinLevel:  slog.LevelDebug,
		Component: r.URL.Query().Get("component"),
		Limit:     200,
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		q.MinLevel = logbuf.ParseLevel(lvl)
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			q.Since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(q)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Package server hosts widget instances over WebSocket and exposes the
// operator REST API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/h1v3-io/chatwidget/internal/archive"
	"github.com/h1v3-io/chatwidget/internal/logbuf"
	"github.com/h1v3-io/chatwidget/internal/widget"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// LogQuerier abstracts log entry querying to avoid coupling to logbuf.Buffer.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// ConversationReader is the part of the archive the API reads.
type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (*protocol.Conversation, error)
	ListConversations(ctx context.Context, f archive.Filter) ([]*protocol.Conversation, error)
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	Key            string // API key for Bearer auth on /api/*
	AllowedOrigins []string
	Widget         widget.Config
	RequestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogs enables GET /api/logs.
func WithLogs(q LogQuerier) Option { return func(s *Server) { s.logs = q } }

// WithArchive enables the conversation routes.
func WithArchive(r ConversationReader) Option { return func(s *Server) { s.archive = r } }

// WithRelay mounts a messaging endpoint at POST /api/relay.
func WithRelay(h http.Handler) Option { return func(s *Server) { s.relay = h } }

// Server is the widget host.
type Server struct {
	cfg       Config
	transport widget.Transport
	logger    *slog.Logger
	logs      LogQuerier
	archive   ConversationReader
	relay     http.Handler
	sessions  *Sessions
	origins   map[string]bool
	upgrader  websocket.Upgrader
	srv       *http.Server
}

// NewServer creates a server whose widget instances talk to transport.
// logger may be nil.
func NewServer(cfg Config, transport widget.Transport, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		sessions:  NewSessions(),
		origins:   make(map[string]bool, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /widget/config", s.handleWidgetConfig)
	mux.HandleFunc("GET /widget/ws", s.handleSocket)
	mux.HandleFunc("GET /api/widgets", s.requireAuth(s.handleListWidgets))
	mux.HandleFunc("GET /api/widgets/{id}", s.requireAuth(s.handleGetWidget))
	mux.HandleFunc("GET /api/conversations", s.requireAuth(s.handleListConversations))
	mux.HandleFunc("GET /api/conversations/{id}", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	if s.relay != nil {
		mux.Handle("POST /api/relay", s.relay)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
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

	s.logger.Info("widget server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Sessions returns the live instance registry.
func (s *Server) Sessions() *Sessions { return s.sessions }

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.origins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case s.origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Signature-256")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"widgets": s.sessions.Len(),
	})
}

func (s *Server) handleWidgetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Widget)
}

func (s *Server) handleListWidgets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	d, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "widget not found"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []*protocol.Conversation{})
		return
	}

	filter := archive.Filter{Route: r.URL.Query().Get("route")}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			filter.Since = time.UnixMilli(ms)
		}
	}

	convs, err := s.archive.ListConversations(r.Context(), filter)
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if convs == nil {
		convs = []*protocol.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	c, err := s.archive.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	if err != nil {
		s.logger.Error("get conversation failed", "conversation_id", r.PathValue("id"), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	f := logbuf.Filter{
		Limit:          200,
		MinLevel:       slog.LevelDebug,
		ConversationID: r.URL.Query().Get("conversation"),
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		f.MinLevel = logbuf.ParseLevel(lvl)
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			f.Since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(f)
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

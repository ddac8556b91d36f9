// Package relay is a reference messaging endpoint for the widget. It
// archives conversations, asks a responder for replies and tells operators
// about new visitors.
package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/h1v3-io/chatwidget/internal/archive"
	"github.com/h1v3-io/chatwidget/internal/history"
	"github.com/h1v3-io/chatwidget/internal/notify"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

const (
	maxBodyBytes  = 1 << 20
	notifyTimeout = 15 * time.Second
)

// Handler serves widget payloads over POST.
type Handler struct {
	responder    Responder
	auth         Auth
	archive      archive.Store
	history      history.Store
	historyLimit int
	notifier     notify.Notifier
	notifyChats  bool
	limiter      *limiter
	replyTimeout time.Duration
	logger       *slog.Logger

	pending sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuth requires callers to authenticate.
func WithAuth(a Auth) Option { return func(h *Handler) { h.auth = a } }

// WithArchive stores every conversation and message.
func WithArchive(s archive.Store) Option { return func(h *Handler) { h.archive = s } }

// WithHistory replaces the in-memory reply history.
func WithHistory(s history.Store, limit int) Option {
	return func(h *Handler) {
		h.history = s
		if limit > 0 {
			h.historyLimit = limit
		}
	}
}

// WithNotifier tells operators about registrations, and about every chat
// message when chats is true.
func WithNotifier(n notify.Notifier, chats bool) Option {
	return func(h *Handler) {
		h.notifier = n
		h.notifyChats = chats
	}
}

// WithRateLimit allows at most n chat messages per window for each
// conversation.
func WithRateLimit(n int, window time.Duration) Option {
	return func(h *Handler) { h.limiter = newLimiter(n, window) }
}

// WithReplyTimeout bounds how long the responder may take.
func WithReplyTimeout(d time.Duration) Option { return func(h *Handler) { h.replyTimeout = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }

// New creates a relay answering with r.
func New(r Responder, opts ...Option) *Handler {
	h := &Handler{
		responder:    r,
		historyLimit: 10,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.history == nil {
		h.history = history.NewMemoryStore(0, 0)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "relay")
	return h
}

// Wait blocks until background notifications have finished.
func (h *Handler) Wait() { h.pending.Wait() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if !h.auth.authenticate(r, body) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req protocol.EndpointRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	if req.ConversationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversationId is required"})
		return
	}
	if req.Route == "" {
		req.Route = "general"
	}

	if req.IsRegistration() {
		h.handleRegistration(w, r, req)
		return
	}
	h.handleChat(w, r, req)
}

func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request, req protocol.EndpointRequest) {
	log := h.logger.With("conversation_id", req.ConversationID, "route", req.Route)

	if h.archive != nil {
		err := h.archive.SaveConversation(r.Context(), &protocol.Conversation{
			ID:       req.ConversationID,
			Route:    req.Route,
			UserInfo: req.UserInfo,
		})
		if err != nil {
			log.Error("archive registration failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
	}
	log.Info("visitor registered", "fields", len(req.UserInfo))

	h.notify(notify.Notice{
		Kind:           notify.KindRegistration,
		ConversationID: req.ConversationID,
		Route:          req.Route,
		UserInfo:       req.UserInfo,
		At:             time.Now(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request, req protocol.EndpointRequest) {
	ctx := r.Context()
	log := h.logger.With("conversation_id", req.ConversationID, "route", req.Route)

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if !h.limiter.Allow(req.ConversationID) {
		log.Warn("chat rate limited")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many messages, slow down"})
		return
	}

	h.archiveMessage(ctx, log, req, protocol.SenderUser, req.Message)

	past, err := h.history.Load(ctx, req.ConversationID, h.historyLimit)
	if err != nil {
		log.Warn("history load failed", "error", err)
		past = nil
	}

	replyCtx := ctx
	if h.replyTimeout > 0 {
		var cancel context.CancelFunc
		replyCtx, cancel = context.WithTimeout(ctx, h.replyTimeout)
		defer cancel()
	}
	start := time.Now()
	reply, err := h.responder.Reply(replyCtx, Turn{
		ConversationID: req.ConversationID,
		Route:          req.Route,
		Message:        req.Message,
		UserInfo:       req.UserInfo,
		History:        past,
	})
	if err != nil {
		log.Error("responder failed", "error", err, "duration", time.Since(start))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "no reply available"})
		return
	}
	log.Debug("reply ready", "duration", time.Since(start))

	if strings.TrimSpace(reply) != "" {
		h.archiveMessage(ctx, log, req, protocol.SenderBot, reply)
	}
	err = h.history.Append(ctx, req.ConversationID,
		protocol.CompletionMessage{Role: "user", Content: req.Message},
		protocol.CompletionMessage{Role: "assistant", Content: reply},
	)
	if err != nil {
		log.Warn("history append failed", "error", err)
	}

	if h.notifyChats {
		h.notify(notify.Notice{
			Kind:           notify.KindMessage,
			ConversationID: req.ConversationID,
			Route:          req.Route,
			UserInfo:       req.UserInfo,
			Text:           req.Message,
			At:             time.Now(),
		})
	}
	writeJSON(w, http.StatusOK, protocol.ChatReply{Message: reply})
}

// archiveMessage records one line. Archive failures never fail the chat.
func (h *Handler) archiveMessage(ctx context.Context, log *slog.Logger, req protocol.EndpointRequest, sender protocol.Sender, text string) {
	if h.archive == nil {
		return
	}
	if err := h.archive.EnsureConversation(ctx, req.ConversationID, req.Route); err != nil {
		log.Warn("archive conversation failed", "error", err)
		return
	}
	_, err := h.archive.AppendMessage(ctx, protocol.ArchivedMessage{
		ConversationID: req.ConversationID,
		Sender:         sender,
		Content:        text,
	})
	if err != nil {
		log.Warn("archive message failed", "sender", sender, "error", err)
	}
}

func (h *Handler) notify(n notify.Notice) {
	if h.notifier == nil {
		return
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := h.notifier.Notify(ctx, n); err != nil {
			h.logger.Warn("operator notification failed",
				"conversation_id", n.ConversationID,
				"kind", n.Kind,
				"error", err,
			)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

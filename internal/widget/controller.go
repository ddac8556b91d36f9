// Package widget implements the chat widget's interaction state machine:
// which view is showing, how user input moves between views, and how
// endpoint requests are sequenced against what the surface displays.
package widget

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/h1v3-io/chatwidget/internal/render"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// ErrorReplyText is appended as a bot message when a chat request fails.
const ErrorReplyText = "Sorry, there was an error processing your request."

var (
	ErrEmptyMessage     = errors.New("widget: message is empty")
	ErrAwaitingReply    = errors.New("widget: a reply is already pending")
	ErrNotReady         = errors.New("widget: chat is not open")
	ErrNotGated         = errors.New("widget: registration form is not showing")
	ErrNoSuchSuggestion = errors.New("widget: no such suggested question")
)

// Transport carries widget requests to the messaging endpoint.
type Transport interface {
	Chat(ctx context.Context, p protocol.ChatPayload) (*protocol.ChatReply, error)
	Register(ctx context.Context, p protocol.RegistrationPayload) error
}

// Session is the conversational identity of one widget activation.
type Session struct {
	ID            string             `json:"id"`
	Open          bool               `json:"open"`
	Registration  RegistrationStatus `json:"registration"`
	UserInfo      map[string]string  `json:"userInfo,omitempty"`
	AwaitingReply bool               `json:"awaitingReply"`
}

// Snapshot is a consistent copy of a controller's state.
type Snapshot struct {
	State      State              `json:"state"`
	Session    *Session           `json:"session,omitempty"`
	Transcript []protocol.Message `json:"transcript"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithContext sets the parent context of dispatched requests.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.baseCtx = ctx }
}

// WithRequestTimeout turns a chat request that runs longer than d into a
// failure. Zero means requests may run indefinitely.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithIDGenerator overrides how session IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithClock overrides the transcript timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(c *Controller) { c.transcript.now = fn }
}

// Controller owns one widget instance: its session, transcript and the
// adapter that draws them. All methods are safe for concurrent use; every
// state change and the commands it issues happen under one lock, so the
// surface sees commands in transition order.
type Controller struct {
	cfg       Config
	transport Transport
	view      *render.Adapter
	gate      *Gate
	logger    *slog.Logger
	baseCtx   context.Context
	timeout   time.Duration
	newID     func() string

	mu           sync.Mutex
	session      *Session
	transcript   *Transcript
	chatRendered bool

	inflight sync.WaitGroup
}

// New creates a closed widget and mounts it on surface.
func New(cfg Config, transport Transport, surface render.Surface, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg.Clone(),
		transport:  transport,
		view:       render.NewAdapter(surface),
		gate:       NewGate(cfg.RegistrationFields),
		baseCtx:    context.Background(),
		newID:      uuid.NewString,
		transcript: NewTranscript(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.view.Mount(protocol.Header{
		Name:     c.cfg.Branding.Name,
		LogoURL:  c.cfg.Branding.LogoURL,
		Position: c.cfg.Style.Position,
	})
	return c
}

// Config returns a copy of the resolved configuration.
func (c *Controller) Config() Config { return c.cfg.Clone() }

// ID returns the session ID, or "" before the first activation.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// State returns the current view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.session == nil || !c.session.Open:
		return Closed
	case c.session.Registration == RegistrationPending:
		return OpenGate
	case c.transcript.Pending():
		return OpenChatAwaiting
	default:
		return OpenChat
	}
}

// Toggle opens a closed widget and closes an open one.
func (c *Controller) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.Open {
		c.closeLocked()
		return
	}
	c.openLocked()
}

// Open shows the panel. The session is created on the first call.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openLocked()
}

func (c *Controller) openLocked() {
	if c.session == nil {
		c.session = c.newSession()
		c.logger.Info("widget session started", "conversation_id", c.session.ID)
	}
	if c.session.Open {
		return
	}
	c.session.Open = true
	c.view.Opened()

	if c.session.Registration == RegistrationPending {
		c.view.Gate(c.gate.Form())
		return
	}
	if c.session.Registration == RegistrationNotRequired {
		c.session.Registration = RegistrationComplete
		c.session.UserInfo = map[string]string{}
	}
	if !c.chatRendered {
		c.view.ChatReady(c.shell())
		c.chatRendered = true
	}
}

func (c *Controller) newSession() *Session {
	status := RegistrationNotRequired
	if c.cfg.RequireRegistration {
		status = RegistrationPending
	}
	return &Session{ID: c.newID(), Registration: status}
}

// Close hides the panel. Requests in flight keep running and still update
// the transcript when they settle.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if c.session == nil || !c.session.Open {
		return
	}
	c.session.Open = false
	c.view.Closed()
}

// Submit validates the registration form. On success the chat view
// replaces the form and a registration notice is sent without waiting for
// it. On failure the state is unchanged and the *InvalidFieldsError is
// returned.
func (c *Controller) Submit(values map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stateLocked() != OpenGate {
		return ErrNotGated
	}
	info, err := c.gate.Validate(values)
	if err != nil {
		var invalid *InvalidFieldsError
		if errors.As(err, &invalid) {
			c.view.GateRejected(invalid.Fields)
		}
		c.logger.Debug("registration rejected", "conversation_id", c.session.ID, "error", err)
		return err
	}

	c.session.UserInfo = info
	c.session.Registration = RegistrationComplete
	c.dispatchRegistration(protocol.NewRegistrationPayload(c.session.ID, c.cfg.Endpoint.Route, maps.Clone(info)))

	c.view.ChatReady(c.shell())
	c.chatRendered = true
	c.logger.Info("visitor registered", "conversation_id", c.session.ID)
	return nil
}

// Send appends a user message and dispatches it to the endpoint. Only one
// request may be outstanding; further sends fail with ErrAwaitingReply
// whatever the surface allowed.
func (c *Controller) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.stateLocked() {
	case OpenChat:
	case OpenChatAwaiting:
		return ErrAwaitingReply
	default:
		return ErrNotReady
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if err := c.transcript.BeginPending(); err != nil {
		return err
	}
	msg, err := c.transcript.Append(protocol.SenderUser, text)
	if err != nil {
		c.transcript.EndPending()
		return err
	}
	c.session.AwaitingReply = true

	c.view.UserMessage(msg)
	tok := c.view.Typing()

	payload := protocol.ChatPayload{
		Message:        text,
		ConversationID: c.session.ID,
		UserInfo:       maps.Clone(c.session.UserInfo),
		Route:          c.cfg.Endpoint.Route,
	}
	if payload.UserInfo == nil {
		payload.UserInfo = map[string]string{}
	}

	c.inflight.Add(1)
	go c.dispatchChat(tok, payload)
	return nil
}

// SelectSuggestion sends the i-th suggested question.
func (c *Controller) SelectSuggestion(i int) error {
	if i < 0 || i >= len(c.cfg.SuggestedQuestions) {
		return ErrNoSuchSuggestion
	}
	return c.Send(c.cfg.SuggestedQuestions[i])
}

func (c *Controller) dispatchChat(tok *render.TypingToken, p protocol.ChatPayload) {
	defer c.inflight.Done()

	ctx, cancel := c.requestContext()
	defer cancel()

	start := time.Now()
	reply, err := c.transport.Chat(ctx, p)
	c.logger.Debug("chat request settled",
		"conversation_id", p.ConversationID,
		"route", p.Route,
		"duration", time.Since(start),
		"ok", err == nil,
	)
	c.settle(tok, reply, err)
}

func (c *Controller) settle(tok *render.TypingToken, reply *protocol.ChatReply, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transcript.EndPending()
	c.session.AwaitingReply = false

	var bot *protocol.Message
	if err != nil {
		c.logger.Error("chat request failed",
			"conversation_id", c.session.ID,
			"route", c.cfg.Endpoint.Route,
			"error", err,
		)
		m, _ := c.transcript.Append(protocol.SenderBot, ErrorReplyText)
		bot = &m
	} else if reply.HasText() {
		if m, err := c.transcript.Append(protocol.SenderBot, reply.Message); err == nil {
			bot = &m
		}
	}
	c.view.Settle(tok, bot)
}

// dispatchRegistration is fire-and-forget: the result is discarded and a
// failure never reaches the visitor.
func (c *Controller) dispatchRegistration(p protocol.RegistrationPayload) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := c.requestContext()
		defer cancel()
		if err := c.transport.Register(ctx, p); err != nil {
			c.logger.Debug("registration notice not delivered",
				"conversation_id", p.ConversationID,
				"error", err,
			)
		}
	}()
}

func (c *Controller) requestContext() (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(c.baseCtx, c.timeout)
	}
	return context.WithCancel(c.baseCtx)
}

func (c *Controller) shell() protocol.Shell {
	return protocol.Shell{
		WelcomeText:        c.cfg.Branding.WelcomeText,
		ResponseTimeText:   c.cfg.Branding.ResponseTimeText,
		SuggestedQuestions: c.cfg.SuggestedQuestions,
	}
}

// Snapshot returns a copy of the session, transcript and state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:      c.stateLocked(),
		Transcript: c.transcript.Messages(),
	}
	if c.session != nil {
		s := *c.session
		s.UserInfo = maps.Clone(c.session.UserInfo)
		snap.Session = &s
	}
	return snap
}

// Wait blocks until every dispatched request, including registration
// notices, has settled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

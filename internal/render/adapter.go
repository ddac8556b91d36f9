package render

import "github.com/h1v3-io/chatwidget/pkg/protocol"

// TypingToken stands for one visible typing indicator. It is settled
// exactly once.
type TypingToken struct {
	settled bool
}

// Settled reports whether the token has been consumed.
func (t *TypingToken) Settled() bool { return t.settled }

// Adapter turns controller events into ordered surface commands. It keeps
// the surface free of duplicate or orphaned typing indicators. Not safe for
// concurrent use; the owning controller serialises calls.
type Adapter struct {
	surface Surface
	typing  *TypingToken
}

// NewAdapter wraps s.
func NewAdapter(s Surface) *Adapter {
	return &Adapter{surface: s}
}

// Mount draws the button and header. Chat input starts disabled.
func (a *Adapter) Mount(h protocol.Header) {
	a.surface.Mount(h)
	a.surface.SetInputEnabled(false)
}

// Opened shows the panel.
func (a *Adapter) Opened() {
	a.surface.ShowPanel()
}

// Closed hides the panel. Pending indicators stay where they are.
func (a *Adapter) Closed() {
	a.surface.HidePanel()
}

// Gate replaces the panel body with the registration form.
func (a *Adapter) Gate(fields []protocol.Field) {
	a.surface.RenderGateForm(fields)
	a.surface.SetInputEnabled(false)
}

// GateRejected flags the fields that failed validation.
func (a *Adapter) GateRejected(fields []string) {
	a.surface.MarkInvalidFields(fields)
}

// ChatReady replaces the panel body with the chat view and enables input.
func (a *Adapter) ChatReady(shell protocol.Shell) {
	a.surface.RenderChatShell(shell)
	a.surface.SetInputEnabled(a.typing == nil)
}

// UserMessage appends the visitor's bubble.
func (a *Adapter) UserMessage(msg protocol.Message) {
	a.surface.AppendBubble(msg.Sender, msg.Text)
	a.surface.ScrollToBottom()
}

// Typing shows the indicator and disables input. If an indicator is
// already showing its token is returned and nothing is drawn.
func (a *Adapter) Typing() *TypingToken {
	if a.typing != nil {
		return a.typing
	}
	a.typing = &TypingToken{}
	a.surface.ShowTypingIndicator()
	a.surface.SetInputEnabled(false)
	a.surface.ScrollToBottom()
	return a.typing
}

// Settle removes the indicator for tok, then appends reply when non-nil,
// then re-enables input. It reports false, and draws nothing, when tok was
// already settled or is not the live indicator.
func (a *Adapter) Settle(tok *TypingToken, reply *protocol.Message) bool {
	if tok == nil || tok.settled || tok != a.typing {
		return false
	}
	tok.settled = true
	a.typing = nil
	a.surface.RemoveTypingIndicator()
	if reply != nil {
		a.surface.AppendBubble(reply.Sender, reply.Text)
		a.surface.ScrollToBottom()
	}
	a.surface.SetInputEnabled(true)
	return true
}

// TypingVisible reports whether an indicator is currently drawn.
func (a *Adapter) TypingVisible() bool { return a.typing != nil }

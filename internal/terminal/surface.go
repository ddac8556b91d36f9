// Package terminal draws a widget on a text terminal.
package terminal

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// View is what the panel body currently shows.
type View int

const (
	ViewHidden View = iota
	ViewGate
	ViewChat
)

// Option configures a Surface.
type Option func(*Surface)

// WithoutColor disables ANSI colours regardless of the terminal.
func WithoutColor() Option {
	return func(s *Surface) { s.plain = true }
}

// Surface renders widget commands as coloured lines on w. It is safe for
// concurrent use.
type Surface struct {
	plain bool

	header func(a ...any) string
	user   func(a ...any) string
	bot    func(a ...any) string
	muted  func(a ...any) string
	alert  func(a ...any) string

	mu       sync.Mutex
	w        io.Writer
	name     string
	view     View
	visible  bool
	fields   []protocol.Field
	enabled  bool
	typing   bool
	suggests []string
}

// New creates a Surface writing to w.
func New(w io.Writer, opts ...Option) *Surface {
	s := &Surface{w: w}
	for _, opt := range opts {
		opt(s)
	}
	s.header = s.style(color.FgMagenta, color.Bold)
	s.user = s.style(color.FgGreen, color.Bold)
	s.bot = s.style(color.FgCyan, color.Bold)
	s.muted = s.style(color.Faint)
	s.alert = s.style(color.FgRed)
	return s
}

func (s *Surface) style(attrs ...color.Attribute) func(a ...any) string {
	c := color.New(attrs...)
	if s.plain {
		c.DisableColor()
	}
	return c.SprintFunc()
}

func (s *Surface) printf(format string, args ...any) {
	fmt.Fprintf(s.w, format, args...)
}

func (s *Surface) Mount(h protocol.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = h.Name
	s.printf("%s\n", s.header("💬 "+h.Name))
}

func (s *Surface) ShowPanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
	s.printf("%s\n", s.muted("── "+s.name+" opened ──"))
}

func (s *Surface) HidePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
	s.printf("%s\n", s.muted("── "+s.name+" closed ──"))
}

func (s *Surface) RenderGateForm(fields []protocol.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewGate
	s.fields = slices.Clone(fields)
	s.printf("Please introduce yourself before chatting.\n")
}

func (s *Surface) MarkInvalidFields(fields []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printf("%s\n", s.alert("Please fill in: "+strings.Join(fields, ", ")))
}

func (s *Surface) RenderChatShell(shell protocol.Shell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = ViewChat
	s.fields = nil
	s.suggests = slices.Clone(shell.SuggestedQuestions)
	s.printf("%s %s\n", s.bot(s.name+":"), shell.WelcomeText)
	if shell.ResponseTimeText != "" {
		s.printf("%s\n", s.muted(shell.ResponseTimeText))
	}
	for i, q := range shell.SuggestedQuestions {
		s.printf("  %s %s\n", s.muted(fmt.Sprintf("[%d]", i+1)), q)
	}
}

func (s *Surface) AppendBubble(sender protocol.Sender, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sender == protocol.SenderUser {
		s.printf("%s %s\n", s.user("You:"), text)
		return
	}
	s.printf("%s %s\n", s.bot(s.name+":"), text)
}

func (s *Surface) ShowTypingIndicator() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = true
	s.printf("%s\n", s.muted(s.name+" is typing..."))
}

func (s *Surface) RemoveTypingIndicator() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = false
}

func (s *Surface) SetInputEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// ScrollToBottom is a no-op; a terminal always shows the newest line.
func (s *Surface) ScrollToBottom() {}

// View returns what the panel currently shows, or ViewHidden when the
// panel is closed.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visible {
		return ViewHidden
	}
	return s.view
}

// Fields returns the registration inputs of the form on screen.
func (s *Surface) Fields() []protocol.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.fields)
}

// Suggestions returns the suggested questions on screen.
func (s *Surface) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.suggests)
}

// InputEnabled reports whether the message input accepts text.
func (s *Surface) InputEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Typing reports whether the typing indicator is showing.
func (s *Surface) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Prompt returns the input prompt for the current view.
func (s *Surface) Prompt(field string) string {
	if field != "" {
		return s.muted(field+": ")
	}
	return s.user("You: ")
}

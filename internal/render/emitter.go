package render

import (
	"slices"
	"sync"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// Emitter is a Surface that serialises every call into a protocol.Command
// and passes it to a sink.
type Emitter struct {
	sink func(protocol.Command)
}

// NewEmitter creates an Emitter writing to sink.
func NewEmitter(sink func(protocol.Command)) *Emitter {
	return &Emitter{sink: sink}
}

func (e *Emitter) Mount(h protocol.Header) {
	e.sink(protocol.Command{Op: protocol.OpMount, Header: &h})
}

func (e *Emitter) ShowPanel() { e.sink(protocol.Command{Op: protocol.OpShowPanel}) }
func (e *Emitter) HidePanel() { e.sink(protocol.Command{Op: protocol.OpHidePanel}) }

func (e *Emitter) RenderGateForm(fields []protocol.Field) {
	e.sink(protocol.Command{Op: protocol.OpRenderGateForm, Fields: slices.Clone(fields)})
}

func (e *Emitter) MarkInvalidFields(fields []string) {
	e.sink(protocol.Command{Op: protocol.OpMarkInvalidFields, Invalid: slices.Clone(fields)})
}

func (e *Emitter) RenderChatShell(shell protocol.Shell) {
	shell.SuggestedQuestions = slices.Clone(shell.SuggestedQuestions)
	e.sink(protocol.Command{Op: protocol.OpRenderChatShell, Shell: &shell})
}

func (e *Emitter) AppendBubble(sender protocol.Sender, text string) {
	e.sink(protocol.Command{Op: protocol.OpAppendBubble, Sender: sender, Text: text})
}

func (e *Emitter) ShowTypingIndicator()   { e.sink(protocol.Command{Op: protocol.OpShowTyping}) }
func (e *Emitter) RemoveTypingIndicator() { e.sink(protocol.Command{Op: protocol.OpRemoveTyping}) }

func (e *Emitter) SetInputEnabled(enabled bool) {
	e.sink(protocol.Command{Op: protocol.OpSetInputEnabled, Enabled: &enabled})
}

func (e *Emitter) ScrollToBottom() { e.sink(protocol.Command{Op: protocol.OpScrollToBottom}) }

// Recorder is a headless Surface that keeps every command it receives.
type Recorder struct {
	*Emitter

	mu   sync.Mutex
	cmds []protocol.Command
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.Emitter = NewEmitter(r.record)
	return r
}

func (r *Recorder) record(c protocol.Command) {
	r.mu.Lock()
	r.cmds = append(r.cmds, c)
	r.mu.Unlock()
}

// Commands returns a copy of everything recorded so far.
func (r *Recorder) Commands() []protocol.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.cmds)
}

// Ops returns just the op names, in order.
func (r *Recorder) Ops() []protocol.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]protocol.Op, len(r.cmds))
	for i, c := range r.cmds {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many commands with op were recorded.
func (r *Recorder) Count(op protocol.Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cmds {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset discards recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.cmds = nil
	r.mu.Unlock()
}

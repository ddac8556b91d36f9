package widget

import (
	"strings"
	"time"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// Transcript is the append-only message log of one session, plus the
// marker that a reply is pending.
type Transcript struct {
	messages []protocol.Message
	pending  bool
	now      func() time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Append adds a message and assigns it the next sequence number.
func (t *Transcript) Append(sender protocol.Sender, text string) (protocol.Message, error) {
	if strings.TrimSpace(text) == "" {
		return protocol.Message{}, ErrEmptyMessage
	}
	seq := 1
	if n := len(t.messages); n > 0 {
		seq = t.messages[n-1].Sequence + 1
	}
	msg := protocol.Message{
		Sender:   sender,
		Text:     text,
		Sequence: seq,
		At:       t.now(),
	}
	t.messages = append(t.messages, msg)
	return msg, nil
}

// Messages returns a copy of the log, oldest first.
func (t *Transcript) Messages() []protocol.Message {
	out := make([]protocol.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.messages) }

// Last returns the most recent message.
func (t *Transcript) Last() (protocol.Message, bool) {
	if len(t.messages) == 0 {
		return protocol.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// BeginPending sets the pending marker. Only one reply may be pending.
func (t *Transcript) BeginPending() error {
	if t.pending {
		return ErrAwaitingReply
	}
	t.pending = true
	return nil
}

// EndPending clears the marker and reports whether it was set.
func (t *Transcript) EndPending() bool {
	was := t.pending
	t.pending = false
	return was
}

// Pending reports whether a reply is outstanding.
func (t *Transcript) Pending() bool { return t.pending }

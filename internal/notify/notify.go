// Package notify tells operators about widget activity on external chat
// platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Notice kinds.
const (
	KindRegistration = "registration"
	KindMessage      = "message"
)

// Notice is one event worth telling an operator about.
type Notice struct {
	Kind           string
	ConversationID string
	Route          string
	UserInfo       map[string]string
	Text           string
	At             time.Time
}

// Title is the one-line headline of the notice.
func (n Notice) Title() string {
	switch n.Kind {
	case KindRegistration:
		return "New visitor registered"
	case KindMessage:
		return "New widget message"
	default:
		return "Widget activity"
	}
}

// fields returns the labelled lines of a notice in a stable order.
func (n Notice) fields() [][2]string {
	out := [][2]string{
		{"Route", n.Route},
		{"Conversation", n.ConversationID},
	}
	keys := make([]string, 0, len(n.UserInfo))
	for k := range n.UserInfo {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, [2]string{k, n.UserInfo[k]})
	}
	return out
}

// Notifier delivers notices to one platform.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notice) error
}

// Fanout delivers to every notifier and joins their errors.
type Fanout struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewFanout combines notifiers. A nil logger uses slog.Default().
func NewFanout(logger *slog.Logger, notifiers ...Notifier) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{notifiers: notifiers, logger: logger}
}

func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of wrapped notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

func (f *Fanout) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range f.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			f.logger.Warn("notification failed",
				"notifier", nt.Name(),
				"conversation_id", n.ConversationID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", nt.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Package history keeps the recent turns of each relay conversation so
// responders can answer in context.
package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

const (
	// DefaultMaxEntries bounds how many turns are kept per conversation.
	DefaultMaxEntries = 20
	// DefaultTTL is how long an idle conversation's history survives.
	DefaultTTL = 24 * time.Hour
)

// Store loads and appends conversation turns.
type Store interface {
	// Load returns up to limit of the most recent turns, oldest first.
	// An unknown conversation yields an empty slice. limit <= 0 means all.
	Load(ctx context.Context, conversationID string, limit int) ([]protocol.CompletionMessage, error)
	// Append adds turns in order.
	Append(ctx context.Context, conversationID string, msgs ...protocol.CompletionMessage) error
}

// MemoryStore is an in-process Store. Entries expire after ttl of
// inactivity.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	max     int
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	msgs    []protocol.CompletionMessage
	touched time.Time
}

// NewMemoryStore creates a store keeping at most maxEntries turns per
// conversation. Zero values take the defaults.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		max:     maxEntries,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, id string, limit int) ([]protocol.CompletionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return []protocol.CompletionMessage{}, nil
	}
	if s.now().Sub(e.touched) > s.ttl {
		delete(s.entries, id)
		return []protocol.CompletionMessage{}, nil
	}
	msgs := e.msgs
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

func (s *MemoryStore) Append(_ context.Context, id string, msgs ...protocol.CompletionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[id]
	if !ok || now.Sub(e.touched) > s.ttl {
		e = &memoryEntry{}
		s.entries[id] = e
	}
	e.msgs = append(e.msgs, msgs...)
	if len(e.msgs) > s.max {
		e.msgs = slices.Clone(e.msgs[len(e.msgs)-s.max:])
	}
	e.touched = now
	return nil
}

// Package logbuf keeps recent diagnostics in memory so operators can read
// them back over the API.
package logbuf

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ConversationKey is the attribute that ties an entry to a widget session.
const ConversationKey = "conversation_id"

// Entry is one captured log record.
type Entry struct {
	Time           time.Time      `json:"time"`
	Level          string         `json:"level"`
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Attrs          map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Since          time.Time
	MinLevel       slog.Level
	ConversationID string
	Limit          int // newest N of the matches; <= 0 means all
}

// Buffer is a fixed-size ring of entries, safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	ring  []Entry
	next  int
	full  bool
	total uint64
}

// New creates a buffer holding the last size entries.
func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{ring: make([]Entry, size)}
}

// Write stores e, evicting the oldest entry when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.ring[b.next] = e
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
	b.total++
	b.mu.Unlock()
}

// Len returns how many entries are held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.ring)
	}
	return b.next
}

// Total returns how many entries were ever written, including evicted ones.
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Query returns matching entries, oldest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, start := b.next, 0
	if b.full {
		n, start = len(b.ring), b.next
	}

	var out []Entry
	for i := 0; i < n; i++ {
		e := b.ring[(start+i)%len(b.ring)]
		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		if ParseLevel(e.Level) < f.MinLevel {
			continue
		}
		if f.ConversationID != "" && e.ConversationID != f.ConversationID {
			continue
		}
		out = append(out, e)
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// ParseLevel maps a level name to its slog.Level. Unknown names are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

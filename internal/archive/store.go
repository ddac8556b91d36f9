// Package archive persists relay conversations and their messages.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("archive: conversation not found")

// Store is the persistence interface for archived conversations.
type Store interface {
	// SaveConversation creates or updates a conversation's route and user
	// info. CreatedAt is kept from the first save.
	SaveConversation(ctx context.Context, c *protocol.Conversation) error
	// EnsureConversation creates an empty conversation if id is unknown.
	EnsureConversation(ctx context.Context, id, route string) error
	// AppendMessage stores a message and bumps the conversation's
	// UpdatedAt. ID and CreatedAt are filled in when empty.
	AppendMessage(ctx context.Context, msg protocol.ArchivedMessage) (protocol.ArchivedMessage, error)
	// GetConversation returns a conversation with its messages, oldest first.
	GetConversation(ctx context.Context, id string) (*protocol.Conversation, error)
	// ListConversations returns conversations without messages, most
	// recently updated first.
	ListConversations(ctx context.Context, f Filter) ([]*protocol.Conversation, error)
	// Prune deletes conversations last updated before the cutoff and
	// reports how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Filter constrains conversation list queries.
type Filter struct {
	Route string
	Since time.Time // updated at or after
	Limit int       // 0 = no limit
}

package protocol

import "time"

// Conversation is the relay's archived record of one widget session.
type Conversation struct {
	ID        string            `json:"id"`
	Route     string            `json:"route"`
	UserInfo  map[string]string `json:"user_info"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []ArchivedMessage `json:"messages,omitempty"`
}

// ArchivedMessage is a transcript line stored by the relay.
type ArchivedMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

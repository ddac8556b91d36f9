package protocol

import "time"

// Sender identifies who authored a transcript message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single entry in a widget transcript.
type Message struct {
	Sender   Sender    `json:"sender"`
	Text     string    `json:"text"`
	Sequence int       `json:"sequence"`
	At       time.Time `json:"at"`
}

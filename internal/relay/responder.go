package relay

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/h1v3-io/chatwidget/internal/provider"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// Turn is everything a responder sees for one visitor message.
type Turn struct {
	ConversationID string
	Route          string
	Message        string
	UserInfo       map[string]string
	History        []protocol.CompletionMessage // prior turns, oldest first
}

// Responder produces the bot reply for a turn.
type Responder interface {
	Reply(ctx context.Context, t Turn) (string, error)
}

// CannedResponder answers every message on a route with a fixed text.
type CannedResponder struct {
	Replies map[string]string `json:"replies,omitempty" yaml:"replies,omitempty"`
	Default string            `json:"default" yaml:"default"`
}

func (c CannedResponder) Reply(_ context.Context, t Turn) (string, error) {
	if r, ok := c.Replies[t.Route]; ok {
		return r, nil
	}
	return c.Default, nil
}

// DefaultSystemPrompt is used for routes without their own prompt.
const DefaultSystemPrompt = "You are a helpful support assistant answering visitors on a website chat widget. Keep answers short and friendly."

// ProviderResponder asks an LLM for the reply.
type ProviderResponder struct {
	Provider  provider.Provider
	Prompts   map[string]string // per-route system prompts
	Model     string
	MaxTokens int
}

func (p *ProviderResponder) Reply(ctx context.Context, t Turn) (string, error) {
	req := protocol.CompletionRequest{
		Model:     p.Model,
		System:    p.systemPrompt(t),
		MaxTokens: p.MaxTokens,
	}
	req.Messages = append(slices.Clone(t.History), protocol.CompletionMessage{Role: "user", Content: t.Message})

	text, err := p.Provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("relay: %s: %w", p.Provider.Name(), err)
	}
	return text, nil
}

func (p *ProviderResponder) systemPrompt(t Turn) string {
	prompt, ok := p.Prompts[t.Route]
	if !ok || prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if len(t.UserInfo) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nThe visitor registered with:")
	for _, k := range slices.Sorted(maps.Keys(t.UserInfo)) {
		fmt.Fprintf(&sb, "\n- %s: %s", k, t.UserInfo[k])
	}
	return sb.String()
}

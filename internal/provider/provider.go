// Package provider talks to LLM APIs on behalf of the relay.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// ErrEmptyCompletion is returned when the API answered without any text.
var ErrEmptyCompletion = errors.New("provider: empty completion")

// Provider produces one assistant turn for a conversation.
type Provider interface {
	Complete(ctx context.Context, req protocol.CompletionRequest) (string, error)
	Name() string
}

// APIError is a non-200 answer from an LLM API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error (status %d): %s", e.Provider, e.Status, e.Body)
}

// New builds a provider by kind ("openai" or "anthropic"). An empty
// baseURL or model keeps the provider default.
func New(kind, apiKey, baseURL, model string) (Provider, error) {
	switch kind {
	case "openai":
		var opts []OpenAIOption
		if baseURL != "" {
			opts = append(opts, WithBaseURL(baseURL))
		}
		if model != "" {
			opts = append(opts, WithModel(model))
		}
		return NewOpenAI(apiKey, opts...), nil
	case "anthropic":
		var opts []AnthropicOption
		if baseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(baseURL))
		}
		if model != "" {
			opts = append(opts, WithAnthropicModel(model))
		}
		return NewAnthropic(apiKey, opts...), nil
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", kind)
	}
}

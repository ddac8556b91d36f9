package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicProvider implements Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicBaseURL sets a custom API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithAnthropicModel sets the default model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) { p.model = model }
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(c *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.client = c }
}

// NewAnthropic creates an Anthropic Messages API provider.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: "https://api.anthropic.com",
		apiKey:  apiKey,
		model:   "claude-3-5-haiku-latest",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req protocol.CompletionRequest) (string, error) {
	body := anthropicRequest{
		Model:     req.Model,
		System:    req.System,
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = p.model
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = 1024 // required by the API
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Provider: "anthropic", Status: resp.StatusCode, Body: string(respBody)}
	}

	var anthResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthResp); err != nil {
		return "", fmt.Errorf("anthropic: unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, block := range anthResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// --- Anthropic wire format ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
}

// toAnthropicMessages folds stray system turns away and merges consecutive
// turns from the same role, which the Messages API rejects.
func toAnthropicMessages(msgs []protocol.CompletionMessage) []anthropicMessage {
	var out []anthropicMessage
	for _, m := range msgs {
		if m.Role == "system" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

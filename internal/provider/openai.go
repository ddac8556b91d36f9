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

// OpenAIProvider implements Provider for any OpenAI-compatible chat
// completions API (OpenAI, OpenRouter, Groq, a local gateway).
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.model = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = c }
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: "https://api.openai.com/v1",
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req protocol.CompletionRequest) (string, error) {
	body := openaiRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req),
	}
	if body.Model == "" {
		body.Model = p.model
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Provider: "openai", Status: resp.StatusCode, Body: string(respBody)}
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", fmt.Errorf("openai: unmarshal response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	text := strings.TrimSpace(oaiResp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// --- OpenAI wire format ---

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

// toOpenAIMessages puts the system prompt first, as a system message.
func toOpenAIMessages(req protocol.CompletionRequest) []openaiMessage {
	out := make([]openaiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out = append(out, openaiMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

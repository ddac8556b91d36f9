// Package endpoint implements the widget's HTTP transport to a messaging
// endpoint.
package endpoint

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// maxResponseBytes bounds how much of a reply body is read.
const maxResponseBytes = 1 << 20

// Client posts widget payloads to a single endpoint URL.
type Client struct {
	client  *http.Client
	url     string
	headers http.Header
	secret  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) { cl.headers.Add(key, value) }
}

// WithBearerToken authenticates every request with token.
func WithBearerToken(token string) Option {
	return func(cl *Client) { cl.headers.Set("Authorization", "Bearer "+token) }
}

// WithSigningSecret signs every request body with HMAC-SHA256 and sends
// it as X-Signature-256.
func WithSigningSecret(secret string) Option {
	return func(cl *Client) { cl.secret = secret }
}

// New creates a client for url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: 60 * time.Second},
		url:     url,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint URL.
func (c *Client) URL() string { return c.url }

// Chat sends one visitor message. A transport error, a non-2xx status or a
// body that is not valid JSON is an error. A JSON body without a string
// "message" field is a reply with no text.
func (c *Client) Chat(ctx context.Context, p protocol.ChatPayload) (*protocol.ChatReply, error) {
	body, err := c.post(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("endpoint: chat: %w", err)
	}
	reply, err := decodeReply(body)
	if err != nil {
		return nil, fmt.Errorf("endpoint: chat: %w", err)
	}
	return reply, nil
}

// Register sends the registration notice. The response body is ignored.
func (c *Client) Register(ctx context.Context, p protocol.RegistrationPayload) error {
	if p.Type == "" {
		p.Type = protocol.PayloadTypeRegistration
	}
	if _, err := c.post(ctx, p); err != nil {
		return fmt.Errorf("endpoint: register: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		mac := hmac.New(sha256.New, []byte(c.secret))
		mac.Write(payload)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return body, nil
}

func decodeReply(body []byte) (*protocol.ChatReply, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &protocol.ChatReply{}, nil
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return &protocol.ChatReply{}, nil
	}
	msg, _ := obj["message"].(string)
	return &protocol.ChatReply{Message: msg}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned status %d", e.Code)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.Code, e.Body)
}

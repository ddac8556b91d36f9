package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

func TestAnthropicComplete_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "You are a support agent." {
			t.Errorf("system = %q", req.System)
		}
		if req.MaxTokens != 1024 {
			t.Errorf("max_tokens = %d, want 1024 default", req.MaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "Hi" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicBlock{{Type: "text", Text: "Hello"}, {Type: "text", Text: " there"}},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	p := NewAnthropic("test-key", WithAnthropicBaseURL(srv.URL))
	got, err := p.Complete(context.Background(), protocol.CompletionRequest{
		System:   "You are a support agent.",
		Messages: []protocol.CompletionMessage{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("got %q", got)
	}
}

func TestAnthropicComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type":"error"}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", WithAnthropicBaseURL(srv.URL)).Complete(context.Background(), protocol.CompletionRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Provider != "anthropic" {
		t.Fatalf("err = %v, want anthropic *APIError", err)
	}
}

func TestAnthropicComplete_CustomModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "claude-custom" {
			t.Errorf("model = %s", req.Model)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropic("k", WithAnthropicBaseURL(srv.URL), WithAnthropicModel("claude-custom"))
	if _, err := p.Complete(context.Background(), protocol.CompletionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnthropicComplete_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", WithAnthropicBaseURL(srv.URL)).Complete(context.Background(), protocol.CompletionRequest{})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("err = %v, want ErrEmptyCompletion", err)
	}
}

func TestToAnthropicMessages_MergesRoles(t *testing.T) {
	got := toAnthropicMessages([]protocol.CompletionMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "reply"},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(got), got)
	}
	if got[0].Content != "first\n\nsecond" {
		t.Errorf("merged content = %q", got[0].Content)
	}
	if got[1].Role != "assistant" || got[1].Content != "reply" {
		t.Errorf("second = %+v", got[1])
	}
}

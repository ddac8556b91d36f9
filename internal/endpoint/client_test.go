package endpoint

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

func TestChat_SendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing content-type")
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Site") != "docs" {
			t.Errorf("custom header = %q", r.Header.Get("X-Site"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["message"] != "hello" || body["conversationId"] != "c1" || body["route"] != "general" {
			t.Errorf("body = %v", body)
		}
		if _, ok := body["userInfo"].(map[string]any); !ok {
			t.Errorf("userInfo = %#v, want object", body["userInfo"])
		}
		w.Write([]byte(`{"message":"Hi there"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithBearerToken("secret"), WithHeader("X-Site", "docs"))
	reply, err := c.Chat(context.Background(), protocol.ChatPayload{
		Message:        "hello",
		ConversationID: "c1",
		UserInfo:       map[string]string{},
		Route:          "general",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Message != "Hi there" {
		t.Errorf("reply = %q", reply.Message)
	}
}

func TestChat_ReplyShapes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  bool
		wantText string
	}{
		{name: "message", status: 200, body: `{"message":"ok"}`, wantText: "ok"},
		{name: "no message field", status: 200, body: `{"status":"queued"}`},
		{name: "non-string message", status: 200, body: `{"message":42}`},
		{name: "empty body", status: 200, body: ``},
		{name: "json array", status: 200, body: `[1,2]`},
		{name: "created", status: 201, body: `{"message":"made"}`, wantText: "made"},
		{name: "invalid json", status: 200, body: `not json`, wantErr: true},
		{name: "server error", status: 500, body: `{"message":"boom"}`, wantErr: true},
		{name: "not found", status: 404, body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			reply, err := New(srv.URL).Chat(context.Background(), protocol.ChatPayload{Message: "hi", ConversationID: "c"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got reply %+v", reply)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reply.Message != tt.wantText {
				t.Errorf("text = %q, want %q", reply.Message, tt.wantText)
			}
		})
	}
}

func TestChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), protocol.ChatPayload{Message: "hi"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d", se.Code)
	}
}

func TestChat_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := New(url).Chat(context.Background(), protocol.ChatPayload{Message: "hi"}); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestChat_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(srv.URL).Chat(ctx, protocol.ChatPayload{Message: "hi"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRegister(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`garbage that is ignored`))
	}))
	defer srv.Close()

	err := New(srv.URL).Register(context.Background(), protocol.NewRegistrationPayload(
		"c1", "sales", map[string]string{"name": "Ann"},
	))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got["type"] != "registration" || got["conversationId"] != "c1" || got["route"] != "sales" {
		t.Errorf("body = %v", got)
	}
	info, _ := got["userInfo"].(map[string]any)
	if info["name"] != "Ann" {
		t.Errorf("userInfo = %v", got["userInfo"])
	}
}

func TestRegister_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := New(srv.URL).Register(context.Background(), protocol.RegistrationPayload{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestChat_SignsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte("s3cret"))
		mac.Write(body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if got := r.Header.Get("X-Signature-256"); got != want {
			t.Errorf("signature = %q, want %q", got, want)
		}
		w.Write([]byte(`{"message":"signed"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithSigningSecret("s3cret"))
	reply, err := c.Chat(context.Background(), protocol.ChatPayload{Message: "hi", ConversationID: "c1", Route: "general"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Message != "signed" {
		t.Errorf("reply = %q", reply.Message)
	}
}

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/h1v3-io/chatwidget/internal/archive"
	"github.com/h1v3-io/chatwidget/internal/history"
	"github.com/h1v3-io/chatwidget/internal/notify"
	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

type recordingResponder struct {
	mu    sync.Mutex
	turns []Turn
	reply string
	err   error
}

func (r *recordingResponder) Reply(_ context.Context, t Turn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
	return r.reply, r.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, nt notify.Notice) error {
	n.mu.Lock()
	n.notices = append(n.notices, nt)
	n.mu.Unlock()
	return nil
}

func post(t *testing.T, h http.Handler, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/relay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newArchive(t *testing.T) *archive.SQLStore {
	t.Helper()
	s, err := archive.Open(context.Background(), archive.DriverSQLite, filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRelay_ChatReply(t *testing.T) {
	resp := &recordingResponder{reply: "Hi there"}
	h := New(resp)

	rec := post(t, h, `{"message":"hello","conversationId":"c1","userInfo":{"name":"Ann"},"route":"sales"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	json.NewDecoder(rec.Body).Decode(&got)
	if got["message"] != "Hi there" {
		t.Errorf("body = %v", got)
	}

	if len(resp.turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(resp.turns))
	}
	turn := resp.turns[0]
	if turn.Message != "hello" || turn.Route != "sales" || turn.UserInfo["name"] != "Ann" {
		t.Errorf("turn = %+v", turn)
	}
	if len(turn.History) != 0 {
		t.Errorf("first turn has history: %+v", turn.History)
	}
}

func TestRelay_ChatUsesHistory(t *testing.T) {
	resp := &recordingResponder{reply: "ok"}
	h := New(resp, WithHistory(history.NewMemoryStore(0, 0), 4))

	post(t, h, `{"message":"first","conversationId":"c1"}`)
	post(t, h, `{"message":"second","conversationId":"c1"}`)

	turn := resp.turns[1]
	if len(turn.History) != 2 {
		t.Fatalf("history = %+v", turn.History)
	}
	if turn.History[0].Role != "user" || turn.History[0].Content != "first" || turn.History[1].Role != "assistant" {
		t.Errorf("history = %+v", turn.History)
	}
	if turn.Route != "general" {
		t.Errorf("route = %q, want general default", turn.Route)
	}
}

func TestRelay_ChatValidation(t *testing.T) {
	h := New(&recordingResponder{reply: "x"})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `not json`, http.StatusBadRequest},
		{"missing conversation", `{"message":"hi"}`, http.StatusBadRequest},
		{"blank message", `{"message":"   ","conversationId":"c1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := post(t, h, tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRelay_MethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/relay", nil)
	rec := httptest.NewRecorder()
	New(&recordingResponder{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRelay_ResponderFailure(t *testing.T) {
	h := New(&recordingResponder{err: errors.New("provider down")})

	rec := post(t, h, `{"message":"hello","conversationId":"c1"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "provider down") {
		t.Error("internal error leaked to the widget")
	}
}

func TestRelay_BearerAuth(t *testing.T) {
	h := New(&recordingResponder{reply: "ok"}, WithAuth(Auth{BearerToken: "tok"}))
	body := `{"message":"hello","conversationId":"c1"}`

	if rec := post(t, h, body); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}
	if rec := post(t, h, body, "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: expected 401, got %d", rec.Code)
	}
	if rec := post(t, h, body, "Authorization", "Bearer tok"); rec.Code != http.StatusOK {
		t.Errorf("good token: expected 200, got %d", rec.Code)
	}
}

func TestRelay_HMACAuth(t *testing.T) {
	h := New(&recordingResponder{reply: "ok"}, WithAuth(Auth{Secret: "s3cret"}))
	body := `{"message":"hello","conversationId":"c1"}`

	if rec := post(t, h, body, "X-Signature-256", "sha256=deadbeef"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: expected 401, got %d", rec.Code)
	}
	sig := ComputeSignature([]byte(body), "s3cret")
	if rec := post(t, h, body, "X-Signature-256", sig); rec.Code != http.StatusOK {
		t.Errorf("good signature: expected 200, got %d", rec.Code)
	}
	if rec := post(t, h, body, "X-Hub-Signature-256", sig); rec.Code != http.StatusOK {
		t.Errorf("hub header: expected 200, got %d", rec.Code)
	}
}

func TestRelay_RateLimit(t *testing.T) {
	h := New(&recordingResponder{reply: "ok"}, WithRateLimit(2, time.Hour))

	for i := 0; i < 2; i++ {
		if rec := post(t, h, `{"message":"hi","conversationId":"c1"}`); rec.Code != http.StatusOK {
			t.Fatalf("message %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := post(t, h, `{"message":"hi","conversationId":"c1"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec := post(t, h, `{"message":"hi","conversationId":"c2"}`); rec.Code != http.StatusOK {
		t.Errorf("other conversation limited: %d", rec.Code)
	}
}

func TestRelay_RegistrationArchivesAndNotifies(t *testing.T) {
	store := newArchive(t)
	n := &recordingNotifier{}
	resp := &recordingResponder{reply: "Welcome back"}
	h := New(resp, WithArchive(store), WithNotifier(n, false))

	payload, _ := json.Marshal(protocol.NewRegistrationPayload("c1", "sales", map[string]string{"name": "Ann", "email": "ann@example.com"}))
	rec := post(t, h, string(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"ok"`)) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(resp.turns) != 0 {
		t.Error("registration reached the responder")
	}

	post(t, h, `{"message":"hello","conversationId":"c1","route":"sales"}`)
	h.Wait()

	conv, err := store.GetConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conv.UserInfo["email"] != "ann@example.com" || conv.Route != "sales" {
		t.Errorf("conversation = %+v", conv)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 archived messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Sender != protocol.SenderUser || conv.Messages[1].Content != "Welcome back" {
		t.Errorf("messages = %+v", conv.Messages)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) != 1 || n.notices[0].Kind != notify.KindRegistration {
		t.Errorf("notices = %+v", n.notices)
	}
}

func TestRelay_NotifyChats(t *testing.T) {
	n := &recordingNotifier{}
	h := New(&recordingResponder{reply: "ok"}, WithNotifier(n, true))

	post(t, h, `{"message":"need help","conversationId":"c1"}`)
	h.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) != 1 || n.notices[0].Kind != notify.KindMessage || n.notices[0].Text != "need help" {
		t.Errorf("notices = %+v", n.notices)
	}
}

func TestRelay_EmptyReplyIsNotArchived(t *testing.T) {
	store := newArchive(t)
	h := New(&recordingResponder{reply: ""}, WithArchive(store))

	rec := post(t, h, `{"message":"hello","conversationId":"c1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	conv, err := store.GetConversation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(conv.Messages) != 1 {
		t.Errorf("expected only the user message, got %d", len(conv.Messages))
	}
}

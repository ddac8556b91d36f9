package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "server": {
    "host": "0.0.0.0",
    "port": 9000,
    "api_key": "dashboard-key",
    "allowed_origins": ["https://shop.example.com"],
    "request_timeout": "45s"
  },
  "widget": {
    "branding": {"name": "Acme Support"},
    "style": {"position": "left"},
    "requireRegistration": true,
    "suggestedQuestions": ["Pricing?", "Opening hours?"]
  },
  "relay": {
    "enabled": true,
    "responder": "provider",
    "prompts": {"sales": "You sell things."},
    "rate_limit": 5,
    "retention": "720h"
  },
  "archive": {"dsn": "/tmp/chatwidget-test.db"},
  "providers": {
    "default": {"api_key": "sk-test-key", "model": "gpt-4o"}
  },
  "notify": {
    "telegram": {"token": "123456:ABC", "chat_ids": [100, 200]}
  }
}`

const validYAML = `
server:
  port: 9100
  request_timeout: 30
widget:
  endpoint:
    url: https://hooks.example.com/chat
    route: support
  registrationFields: [name, email, company]
relay:
  enabled: false
history:
  redis_url: redis://localhost:6379/0
  ttl: 12h
notify:
  slack:
    token: xoxb-test
    channel: C123
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout.Std() != 45*time.Second {
		t.Errorf("request_timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Relay.Provider != "default" {
		t.Errorf("relay.provider = %q, want the only provider", cfg.Relay.Provider)
	}
	if cfg.Relay.RateWindow.Std() != time.Minute {
		t.Errorf("rate_window = %v", cfg.Relay.RateWindow)
	}
	if cfg.Relay.RetentionSchedule != "@daily" {
		t.Errorf("retention_schedule = %q", cfg.Relay.RetentionSchedule)
	}
	if cfg.Archive.Driver != "sqlite" {
		t.Errorf("archive.driver = %q", cfg.Archive.Driver)
	}
	if cfg.Notify.Telegram == nil || len(cfg.Notify.Telegram.ChatIDs) != 2 {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}

	w := cfg.WidgetConfig()
	if w.Branding.Name != "Acme Support" {
		t.Errorf("branding.name = %q", w.Branding.Name)
	}
	if w.Branding.WelcomeText == "" {
		t.Error("welcome text lost its default")
	}
	if w.Style.Position != "left" {
		t.Errorf("position = %q", w.Style.Position)
	}
	if w.Endpoint.URL != "http://localhost:9000/api/relay" {
		t.Errorf("endpoint.url = %q", w.Endpoint.URL)
	}
	if w.Endpoint.Route != "general" {
		t.Errorf("endpoint.route = %q", w.Endpoint.Route)
	}
	if len(w.SuggestedQuestions) != 2 {
		t.Errorf("suggested = %v", w.SuggestedQuestions)
	}
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout.Std() != 30*time.Second {
		t.Errorf("request_timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.History.TTL.Std() != 12*time.Hour {
		t.Errorf("history.ttl = %v", cfg.History.TTL)
	}
	if cfg.Relay.Responder != "canned" {
		t.Errorf("responder = %q", cfg.Relay.Responder)
	}
	w := cfg.WidgetConfig()
	if w.Endpoint.URL != "https://hooks.example.com/chat" || w.Endpoint.Route != "support" {
		t.Errorf("endpoint = %+v", w.Endpoint)
	}
	if strings.Join(w.RegistrationFields, ",") != "name,email,company" {
		t.Errorf("fields = %v", w.RegistrationFields)
	}
	if cfg.Notify.Slack == nil || cfg.Notify.Slack.Channel != "C123" {
		t.Errorf("slack = %+v", cfg.Notify.Slack)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	_, err := Load(writeFile(t, "bad.json", "not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "server:\n  request_timeout: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestRelayURL_PublicURL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Host: "10.0.0.5", Port: 8080, PublicURL: "https://chat.example.com/"}}
	if got := cfg.RelayURL(); got != "https://chat.example.com/api/relay" {
		t.Errorf("RelayURL = %q", got)
	}
	cfg.Server.PublicURL = ""
	if got := cfg.RelayURL(); got != "http://10.0.0.5:8080/api/relay" {
		t.Errorf("RelayURL = %q", got)
	}
}

func TestWidgetConfig_ExplicitURLWins(t *testing.T) {
	u := "https://hooks.example.com/chat"
	cfg, err := Parse([]byte(`{"relay":{"enabled":true},"widget":{"endpoint":{"url":"`+u+`"}}}`), ".json")
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.WidgetConfig().Endpoint.URL; got != u {
		t.Errorf("endpoint.url = %q", got)
	}
}

func TestValidate_MissingEndpoint(t *testing.T) {
	cfg, _ := Parse([]byte(`{}`), ".json")
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "endpoint.url is required") {
		t.Errorf("expected endpoint error, got %v", err)
	}
}

func TestValidate_UndefinedProvider(t *testing.T) {
	cfg, _ := Parse([]byte(`{"relay":{"enabled":true,"responder":"provider","provider":"missing"}}`), ".json")
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `relay.provider "missing"`) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestValidate_MissingProviderAPIKey(t *testing.T) {
	cfg, _ := Parse([]byte(`{"relay":{"enabled":true},"providers":{"default":{"model":"m"}}}`), ".json")
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "providers.default.api_key") {
		t.Errorf("expected api_key error, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg, _ := Parse([]byte(`{
  "server": {"port": 70000},
  "relay": {"enabled": true, "responder": "magic", "retention": "1h"},
  "archive": {"driver": "mysql", "dsn": "x"},
  "notify": {"telegram": {}, "slack": {"token": "t"}}
}`), ".json")
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.port 70000",
		`relay.responder "magic"`,
		`archive.driver "mysql"`,
		"notify.telegram.token",
		"notify.telegram.chat_ids",
		"notify.slack.channel",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg, _ := Parse([]byte(`{"relay":{"enabled":true}}`), ".json")
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHATWIDGET_PORT", "9090")
	t.Setenv("CHATWIDGET_RELAY_ENABLED", "true")
	t.Setenv("CHATWIDGET_OPENAI_API_KEY", "sk-env")
	t.Setenv("CHATWIDGET_MODEL", "gpt-4o-mini")
	t.Setenv("CHATWIDGET_REQUEST_TIMEOUT", "20s")
	t.Setenv("CHATWIDGET_BRAND_NAME", "Env Brand")
	t.Setenv("CHATWIDGET_REQUIRE_REGISTRATION", "true")
	t.Setenv("CHATWIDGET_SUGGESTED_QUESTIONS", "Where, exactly?|When?")
	t.Setenv("CHATWIDGET_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CHATWIDGET_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("CHATWIDGET_TELEGRAM_CHAT_IDS", "100,200,300")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout.Std() != 20*time.Second {
		t.Errorf("request_timeout = %v", cfg.Server.RequestTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Providers["openai"].Model != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.Providers["openai"].Model)
	}
	if cfg.Relay.Responder != "provider" || cfg.Relay.Provider != "openai" {
		t.Errorf("relay = %q/%q", cfg.Relay.Responder, cfg.Relay.Provider)
	}
	if cfg.Notify.Telegram == nil || len(cfg.Notify.Telegram.ChatIDs) != 3 {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}

	w := cfg.WidgetConfig()
	if w.Branding.Name != "Env Brand" || !w.RequireRegistration {
		t.Errorf("widget = %+v", w)
	}
	if len(w.SuggestedQuestions) != 2 || w.SuggestedQuestions[0] != "Where, exactly?" {
		t.Errorf("suggested = %v", w.SuggestedQuestions)
	}
	if w.Endpoint.URL != "http://localhost:9090/api/relay" {
		t.Errorf("endpoint.url = %q", w.Endpoint.URL)
	}
}

func TestLoadFromEnv_BadChatIDs(t *testing.T) {
	t.Setenv("CHATWIDGET_RELAY_ENABLED", "true")
	t.Setenv("CHATWIDGET_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("CHATWIDGET_TELEGRAM_CHAT_IDS", "100,abc")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "abc") {
		t.Fatalf("expected chat id error, got %v", err)
	}
}

func TestLoadRemote(t *testing.T) {
	var gotAuth, gotSite string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSite = r.Header.Get("X-Site-ID")
		w.Header().Set("Content-Type", "application/yaml")
		w.Write([]byte(validYAML))
	}))
	defer srv.Close()

	cfg, err := LoadRemote(RemoteOptions{URL: srv.URL + "/sites/config", APIKey: "k", SiteID: "shop"})
	if err != nil {
		t.Fatalf("LoadRemote: %v", err)
	}
	if gotAuth != "Bearer k" || gotSite != "shop" {
		t.Errorf("headers = %q, %q", gotAuth, gotSite)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
}

func TestLoadRemote_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := LoadRemote(RemoteOptions{URL: srv.URL + "/config.json"})
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Fatalf("expected HTTP error, got %v", err)
	}
}

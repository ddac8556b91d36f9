// Package config loads and validates the widgetd daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/h1v3-io/chatwidget/internal/widget"
)

// Config is the top-level widgetd configuration.
type Config struct {
	Server    ServerConfig              `json:"server" yaml:"server"`
	Widget    widget.Options            `json:"widget" yaml:"widget"`
	Relay     RelayConfig               `json:"relay" yaml:"relay"`
	Archive   ArchiveConfig             `json:"archive" yaml:"archive"`
	History   HistoryConfig             `json:"history" yaml:"history"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Notify    NotifyConfig              `json:"notify" yaml:"notify"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	PublicURL      string   `json:"public_url,omitempty" yaml:"public_url,omitempty"`
	APIKey         string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	RequestTimeout Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	LogBuffer      int      `json:"log_buffer,omitempty" yaml:"log_buffer,omitempty"`
}

// RelayConfig configures the built-in messaging endpoint.
type RelayConfig struct {
	Enabled           bool              `json:"enabled" yaml:"enabled"`
	Secret            string            `json:"secret,omitempty" yaml:"secret,omitempty"`
	BearerToken       string            `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
	Responder         string            `json:"responder,omitempty" yaml:"responder,omitempty"` // "canned" or "provider"
	Provider          string            `json:"provider,omitempty" yaml:"provider,omitempty"`
	Prompts           map[string]string `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	CannedReplies     map[string]string `json:"canned_replies,omitempty" yaml:"canned_replies,omitempty"`
	CannedDefault     string            `json:"canned_default,omitempty" yaml:"canned_default,omitempty"`
	RateLimit         int               `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	RateWindow        Duration          `json:"rate_window,omitempty" yaml:"rate_window,omitempty"`
	HistoryLimit      int               `json:"history_limit,omitempty" yaml:"history_limit,omitempty"`
	ReplyTimeout      Duration          `json:"reply_timeout,omitempty" yaml:"reply_timeout,omitempty"`
	NotifyChats       bool              `json:"notify_chats,omitempty" yaml:"notify_chats,omitempty"`
	Retention         Duration          `json:"retention,omitempty" yaml:"retention,omitempty"`
	RetentionSchedule string            `json:"retention_schedule,omitempty" yaml:"retention_schedule,omitempty"`
}

// ArchiveConfig selects the conversation archive database.
type ArchiveConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"` // "sqlite" or "postgres"
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// HistoryConfig selects where reply history is kept. An empty RedisURL
// keeps it in memory.
type HistoryConfig struct {
	RedisURL   string   `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	MaxEntries int      `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	TTL        Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type      string `json:"type,omitempty" yaml:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey    string `json:"api_key" yaml:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// NotifyConfig holds operator notification channels.
type NotifyConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty" yaml:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token   string  `json:"token" yaml:"token"`
	ChatIDs []int64 `json:"chat_ids" yaml:"chat_ids"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	Token   string `json:"token" yaml:"token"`
	Channel string `json:"channel" yaml:"channel"`
}

// Duration is a time.Duration written as "30s" or "24h" in config files.
// Bare integers are read as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return v, nil
}

// Load reads a config file, picking YAML or JSON by extension, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data as YAML when ext is ".yaml" or ".yml" and as JSON
// otherwise, then applies defaults. It does not validate.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse json: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogBuffer == 0 {
		c.Server.LogBuffer = 1000
	}
	if c.Relay.Responder == "" {
		c.Relay.Responder = "canned"
		if len(c.Providers) > 0 {
			c.Relay.Responder = "provider"
		}
	}
	if c.Relay.Responder == "provider" && c.Relay.Provider == "" && len(c.Providers) == 1 {
		for name := range c.Providers {
			c.Relay.Provider = name
		}
	}
	if c.Relay.RateLimit != 0 && c.Relay.RateWindow == 0 {
		c.Relay.RateWindow = Duration(time.Minute)
	}
	if c.Relay.HistoryLimit == 0 {
		c.Relay.HistoryLimit = 10
	}
	if c.Relay.Retention > 0 && c.Relay.RetentionSchedule == "" {
		c.Relay.RetentionSchedule = "@daily"
	}
	if c.Archive.Driver == "" && c.Archive.DSN != "" {
		c.Archive.Driver = "sqlite"
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RelayURL returns the URL under which the daemon serves its own relay.
func (c *Config) RelayURL() string {
	base := strings.TrimRight(c.Server.PublicURL, "/")
	if base == "" {
		host := c.Server.Host
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s:%d", host, c.Server.Port)
	}
	return base + "/api/relay"
}

// WidgetConfig resolves the widget options. With the relay enabled and no
// endpoint URL configured, the widget talks to the daemon's relay.
func (c *Config) WidgetConfig() widget.Config {
	cfg := widget.Resolve(c.Widget)
	if cfg.Endpoint.URL == "" && c.Relay.Enabled {
		cfg.Endpoint.URL = c.RelayURL()
	}
	return cfg
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, "server.request_timeout must not be negative")
	}

	if err := c.WidgetConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	for name, p := range c.Providers {
		if p.APIKey == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_key is required", name))
		}
		switch p.Type {
		case "", "openai", "anthropic":
		default:
			errs = append(errs, fmt.Sprintf("providers.%s.type %q must be openai or anthropic", name, p.Type))
		}
	}

	if c.Relay.Enabled {
		switch c.Relay.Responder {
		case "canned":
		case "provider":
			if c.Relay.Provider == "" {
				errs = append(errs, "relay.provider is required when relay.responder is provider")
			} else if _, ok := c.Providers[c.Relay.Provider]; !ok {
				errs = append(errs, fmt.Sprintf("relay.provider %q is not defined in providers", c.Relay.Provider))
			}
		default:
			errs = append(errs, fmt.Sprintf("relay.responder %q must be canned or provider", c.Relay.Responder))
		}
		if c.Relay.RateLimit < 0 {
			errs = append(errs, "relay.rate_limit must not be negative")
		}
		if c.Relay.Retention > 0 && c.Archive.DSN == "" {
			errs = append(errs, "relay.retention requires archive.dsn")
		}
	}

	if c.Archive.DSN != "" {
		switch c.Archive.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("archive.driver %q must be sqlite or postgres", c.Archive.Driver))
		}
	}

	if tg := c.Notify.Telegram; tg != nil {
		if tg.Token == "" {
			errs = append(errs, "notify.telegram.token is required")
		}
		if len(tg.ChatIDs) == 0 {
			errs = append(errs, "notify.telegram.chat_ids must not be empty")
		}
	}
	if sl := c.Notify.Slack; sl != nil {
		if sl.Token == "" {
			errs = append(errs, "notify.slack.token is required")
		}
		if sl.Channel == "" {
			errs = append(errs, "notify.slack.channel is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LoadFromEnv builds a config from CHATWIDGET_* environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getenv("CHATWIDGET_HOST", "0.0.0.0"),
			Port:      getenvInt("CHATWIDGET_PORT", 8080),
			PublicURL: os.Getenv("CHATWIDGET_PUBLIC_URL"),
			APIKey:    os.Getenv("CHATWIDGET_API_KEY"),
			LogBuffer: getenvInt("CHATWIDGET_LOG_BUFFER", 1000),
		},
		Relay: RelayConfig{
			Enabled:       getenvBool("CHATWIDGET_RELAY_ENABLED"),
			Secret:        os.Getenv("CHATWIDGET_RELAY_SECRET"),
			BearerToken:   os.Getenv("CHATWIDGET_RELAY_TOKEN"),
			Responder:     os.Getenv("CHATWIDGET_RELAY_RESPONDER"),
			CannedDefault: os.Getenv("CHATWIDGET_CANNED_REPLY"),
			RateLimit:     getenvInt("CHATWIDGET_RATE_LIMIT", 0),
			NotifyChats:   getenvBool("CHATWIDGET_NOTIFY_CHATS"),
		},
		Archive: ArchiveConfig{
			Driver: os.Getenv("CHATWIDGET_ARCHIVE_DRIVER"),
			DSN:    os.Getenv("CHATWIDGET_ARCHIVE_DSN"),
		},
		History: HistoryConfig{
			RedisURL:   os.Getenv("CHATWIDGET_REDIS_URL"),
			MaxEntries: getenvInt("CHATWIDGET_HISTORY_MAX", 0),
		},
		Providers: map[string]ProviderConfig{},
	}
	if v := splitList(os.Getenv("CHATWIDGET_ALLOWED_ORIGINS"), ","); len(v) > 0 {
		cfg.Server.AllowedOrigins = v
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"CHATWIDGET_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout},
		{"CHATWIDGET_RATE_WINDOW", &cfg.Relay.RateWindow},
		{"CHATWIDGET_REPLY_TIMEOUT", &cfg.Relay.ReplyTimeout},
		{"CHATWIDGET_RETENTION", &cfg.Relay.Retention},
		{"CHATWIDGET_HISTORY_TTL", &cfg.History.TTL},
	}
	for _, d := range durations {
		v, err := getenvDuration(d.key)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		*d.dst = Duration(v)
	}
	cfg.Relay.RetentionSchedule = os.Getenv("CHATWIDGET_RETENTION_SCHEDULE")

	cfg.Widget = widgetFromEnv()

	if key := os.Getenv("CHATWIDGET_OPENAI_API_KEY"); key != "" {
		cfg.Providers["openai"] = ProviderConfig{
			Type:    "openai",
			APIKey:  key,
			BaseURL: os.Getenv("CHATWIDGET_OPENAI_BASE_URL"),
			Model:   os.Getenv("CHATWIDGET_MODEL"),
		}
	}
	if key := os.Getenv("CHATWIDGET_ANTHROPIC_API_KEY"); key != "" {
		cfg.Providers["anthropic"] = ProviderConfig{
			Type:   "anthropic",
			APIKey: key,
			Model:  os.Getenv("CHATWIDGET_ANTHROPIC_MODEL"),
		}
	}
	cfg.Relay.Provider = os.Getenv("CHATWIDGET_RELAY_PROVIDER")

	if token := os.Getenv("CHATWIDGET_TELEGRAM_TOKEN"); token != "" {
		ids, err := parseInt64List(os.Getenv("CHATWIDGET_TELEGRAM_CHAT_IDS"))
		if err != nil {
			return nil, fmt.Errorf("config: CHATWIDGET_TELEGRAM_CHAT_IDS: %w", err)
		}
		cfg.Notify.Telegram = &TelegramConfig{Token: token, ChatIDs: ids}
	}
	if token := os.Getenv("CHATWIDGET_SLACK_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			Token:   token,
			Channel: os.Getenv("CHATWIDGET_SLACK_CHANNEL"),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func widgetFromEnv() widget.Options {
	var opts widget.Options

	endpoint := widget.EndpointOptions{
		URL:   getenvPtr("CHATWIDGET_ENDPOINT_URL"),
		Route: getenvPtr("CHATWIDGET_ROUTE"),
	}
	if endpoint != (widget.EndpointOptions{}) {
		opts.Endpoint = &endpoint
	}

	branding := widget.BrandingOptions{
		Name:             getenvPtr("CHATWIDGET_BRAND_NAME"),
		WelcomeText:      getenvPtr("CHATWIDGET_WELCOME_TEXT"),
		ResponseTimeText: getenvPtr("CHATWIDGET_RESPONSE_TIME_TEXT"),
		LogoURL:          getenvPtr("CHATWIDGET_LOGO_URL"),
	}
	if branding != (widget.BrandingOptions{}) {
		opts.Branding = &branding
	}

	style := widget.StyleOptions{
		PrimaryColor:    getenvPtr("CHATWIDGET_PRIMARY_COLOR"),
		SecondaryColor:  getenvPtr("CHATWIDGET_SECONDARY_COLOR"),
		Position:        getenvPtr("CHATWIDGET_POSITION"),
		BackgroundColor: getenvPtr("CHATWIDGET_BACKGROUND_COLOR"),
		FontColor:       getenvPtr("CHATWIDGET_FONT_COLOR"),
	}
	if style != (widget.StyleOptions{}) {
		opts.Style = &style
	}

	if v, ok := os.LookupEnv("CHATWIDGET_REQUIRE_REGISTRATION"); ok {
		b, _ := strconv.ParseBool(v)
		opts.RequireRegistration = &b
	}
	if v, ok := os.LookupEnv("CHATWIDGET_REGISTRATION_FIELDS"); ok {
		opts.RegistrationFields = splitList(v, ",")
	}
	// Questions may contain commas.
	if v, ok := os.LookupEnv("CHATWIDGET_SUGGESTED_QUESTIONS"); ok {
		opts.SuggestedQuestions = splitList(v, "|")
	}
	return opts
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvPtr(key string) *string {
	if v, ok := os.LookupEnv(key); ok {
		return &v
	}
	return nil
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func getenvDuration(key string) (time.Duration, error) {
	d, err := parseDuration(os.Getenv(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt64List(s string) ([]int64, error) {
	var result []int64
	for _, part := range splitList(s, ",") {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		result = append(result, n)
	}
	return result, nil
}

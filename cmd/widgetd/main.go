package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/h1v3-io/chatwidget/internal/archive"
	"github.com/h1v3-io/chatwidget/internal/config"
	"github.com/h1v3-io/chatwidget/internal/endpoint"
	"github.com/h1v3-io/chatwidget/internal/history"
	"github.com/h1v3-io/chatwidget/internal/logbuf"
	"github.com/h1v3-io/chatwidget/internal/notify"
	"github.com/h1v3-io/chatwidget/internal/provider"
	"github.com/h1v3-io/chatwidget/internal/relay"
	"github.com/h1v3-io/chatwidget/internal/scheduler"
	"github.com/h1v3-io/chatwidget/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON or YAML file")
	remoteURL := flag.String("config-url", os.Getenv("CHATWIDGET_CONFIG_URL"), "URL of a remote config document")
	remoteKey := flag.String("config-key", os.Getenv("CHATWIDGET_CONFIG_KEY"), "API key for the remote config")
	siteID := flag.String("site-id", os.Getenv("CHATWIDGET_SITE_ID"), "Site ID sent with the remote config request")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})

	// Config is loaded before the log buffer exists, so the first lines go
	// straight to stdout.
	bootLogger := slog.New(jsonHandler)

	// Load config (3 modes: file, remote, env)
	var cfg *config.Config
	var err error
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case *remoteURL != "":
		bootLogger.Info("loading remote config", "url", *remoteURL, "site_id", *siteID)
		cfg, err = config.LoadRemote(config.RemoteOptions{URL: *remoteURL, APIKey: *remoteKey, SiteID: *siteID})
	default:
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logBuf := logbuf.New(cfg.Server.LogBuffer)
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger, logBuf); err != nil {
		logger.Error("widgetd failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, logBuf *logbuf.Buffer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	widgetCfg := cfg.WidgetConfig()
	logger.Info("widgetd starting",
		"addr", cfg.Addr(),
		"endpoint", widgetCfg.Endpoint.URL,
		"route", widgetCfg.Endpoint.Route,
		"relay", cfg.Relay.Enabled,
	)

	// 1. Conversation archive
	var store *archive.SQLStore
	if cfg.Archive.DSN != "" {
		var err error
		store, err = archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		logger.Info("archive opened", "driver", cfg.Archive.Driver)
	}

	srvOpts := []server.Option{server.WithLogs(logBuf)}
	if store != nil {
		srvOpts = append(srvOpts, server.WithArchive(store))
	}

	sched := scheduler.New(logger)

	// 2. Built-in messaging endpoint
	var rel *relay.Handler
	if cfg.Relay.Enabled {
		var err error
		rel, err = buildRelay(ctx, cfg, store, logger.With("component", "relay"))
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, server.WithRelay(rel))

		if store != nil && cfg.Relay.Retention > 0 {
			retention := cfg.Relay.Retention.Std()
			err := sched.Add("archive-retention", cfg.Relay.RetentionSchedule, func(ctx context.Context) error {
				n, err := store.Prune(ctx, time.Now().Add(-retention))
				if err != nil {
					return err
				}
				logger.Info("archive pruned", "conversations", n, "retention", retention)
				return nil
			})
			if err != nil {
				return fmt.Errorf("schedule retention: %w", err)
			}
		}
	}

	// 3. Widget host
	transport := endpoint.New(widgetCfg.Endpoint.URL, transportOptions(cfg, widgetCfg.Endpoint.URL)...)
	srv := server.NewServer(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Key:            cfg.Server.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Widget:         widgetCfg,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
	}, transport, logger.With("component", "server"), srvOpts...)

	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	errCh := make(chan error, 1)
	go safeGo(logger, "server", func() { errCh <- srv.Start(ctx) })

	// 4. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	if rel != nil {
		rel.Wait()
	}
	logger.Info("widgetd stopped")
	return nil
}

// transportOptions authenticates the widget against the daemon's own relay.
func transportOptions(cfg *config.Config, url string) []endpoint.Option {
	if !cfg.Relay.Enabled || url != cfg.RelayURL() {
		return nil
	}
	switch {
	case cfg.Relay.Secret != "":
		return []endpoint.Option{endpoint.WithSigningSecret(cfg.Relay.Secret)}
	case cfg.Relay.BearerToken != "":
		return []endpoint.Option{endpoint.WithBearerToken(cfg.Relay.BearerToken)}
	}
	return nil
}

func buildRelay(ctx context.Context, cfg *config.Config, store *archive.SQLStore, logger *slog.Logger) (*relay.Handler, error) {
	responder, err := buildResponder(cfg)
	if err != nil {
		return nil, err
	}

	hist, err := buildHistory(ctx, cfg.History)
	if err != nil {
		return nil, err
	}

	opts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithAuth(relay.Auth{Secret: cfg.Relay.Secret, BearerToken: cfg.Relay.BearerToken}),
		relay.WithHistory(hist, cfg.Relay.HistoryLimit),
		relay.WithRateLimit(cfg.Relay.RateLimit, cfg.Relay.RateWindow.Std()),
		relay.WithReplyTimeout(cfg.Relay.ReplyTimeout.Std()),
	}
	if store != nil {
		opts = append(opts, relay.WithArchive(store))
	}

	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}
	if notifier.Len() > 0 {
		opts = append(opts, relay.WithNotifier(notifier, cfg.Relay.NotifyChats))
	}
	return relay.New(responder, opts...), nil
}

func buildResponder(cfg *config.Config) (relay.Responder, error) {
	if cfg.Relay.Responder != "provider" {
		def := cfg.Relay.CannedDefault
		if def == "" {
			def = "Thanks for your message! We'll get back to you soon."
		}
		return relay.CannedResponder{Replies: cfg.Relay.CannedReplies, Default: def}, nil
	}

	pcfg := cfg.Providers[cfg.Relay.Provider]
	kind := pcfg.Type
	if kind == "" {
		kind = "openai"
	}
	prov, err := provider.New(kind, pcfg.APIKey, pcfg.BaseURL, pcfg.Model)
	if err != nil {
		return nil, err
	}
	return &relay.ProviderResponder{
		Provider:  prov,
		Prompts:   cfg.Relay.Prompts,
		Model:     pcfg.Model,
		MaxTokens: pcfg.MaxTokens,
	}, nil
}

func buildHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = history.DefaultMaxEntries
	}
	ttl := cfg.TTL.Std()
	if ttl <= 0 {
		ttl = history.DefaultTTL
	}
	if cfg.RedisURL == "" {
		return history.NewMemoryStore(maxEntries, ttl), nil
	}
	rdb, err := history.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return history.NewRedisStore(rdb, maxEntries, ttl), nil
}

func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) (*notify.Fanout, error) {
	var notifiers []notify.Notifier
	if tg := cfg.Telegram; tg != nil {
		n, err := notify.NewTelegram(notify.TelegramConfig{Token: tg.Token, ChatIDs: tg.ChatIDs})
		if err != nil {
			return nil, fmt.Errorf("init telegram: %w", err)
		}
		logger.Info("telegram notifications enabled", "bot", n.Username(), "chats", len(tg.ChatIDs))
		notifiers = append(notifiers, n)
	}
	if sl := cfg.Slack; sl != nil {
		n, err := notify.NewSlack(notify.SlackConfig{Token: sl.Token, Channel: sl.Channel})
		if err != nil {
			return nil, fmt.Errorf("init slack: %w", err)
		}
		logger.Info("slack notifications enabled", "channel", sl.Channel)
		notifiers = append(notifiers, n)
	}
	return notify.NewFanout(logger, notifiers...), nil
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

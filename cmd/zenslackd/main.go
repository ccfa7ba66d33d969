package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/h1v3-io/zenslack/internal/api"
	"github.com/h1v3-io/zenslack/internal/bridge"
	"github.com/h1v3-io/zenslack/internal/config"
	slackconn "github.com/h1v3-io/zenslack/internal/connector/slack"
	"github.com/h1v3-io/zenslack/internal/connector/webhook"
	"github.com/h1v3-io/zenslack/internal/connector/zendesk"
	"github.com/h1v3-io/zenslack/internal/link"
	"github.com/h1v3-io/zenslack/internal/logbuf"
	"github.com/h1v3-io/zenslack/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file (default: environment and .env)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Bootstrap logger until the configured secrets are known.
	logger := slog.New(logbuf.NewMaskingHandler(slog.NewJSONHandler(os.Stderr, nil)))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *verbose || cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logbuf.NewMaskingHandler(logbuf.NewHandler(jsonHandler, logBuf), cfg.Secrets()...))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	links, err := link.NewSQLiteStore(filepath.Join(cfg.DataDir, "zenslack.db"))
	if err != nil {
		logger.Error("failed to open link store", "error", err)
		os.Exit(1)
	}
	defer links.Close()

	chat, err := slackconn.New(slackconn.Config{
		BotToken: cfg.Slack.BotToken,
		APIURL:   cfg.Slack.APIURL,
	}, logger.With("component", "slack"))
	if err != nil {
		logger.Error("failed to connect to slack", "error", err)
		os.Exit(1)
	}

	zdOpts := []zendesk.Option{zendesk.WithTimeout(cfg.Zendesk.Timeout())}
	if cfg.Zendesk.BaseURL != "" {
		zdOpts = append(zdOpts, zendesk.WithBaseURL(cfg.Zendesk.BaseURL))
	}
	tickets, err := zendesk.New(cfg.Zendesk.Subdomain, cfg.Zendesk.Email, cfg.Zendesk.Token, zdOpts...)
	if err != nil {
		logger.Error("failed to configure zendesk", "error", err)
		os.Exit(1)
	}

	m := metrics.Default()

	dispatcher := bridge.NewDispatcher(cfg.Bridge(), chat, tickets, links)
	dispatcher.Logger = logger.With("component", "dispatcher")
	dispatcher.Metrics = m

	reconciler := bridge.NewReconciler(chat, tickets, links)
	reconciler.Logger = logger.With("component", "reconciler")
	reconciler.Metrics = m

	boundary := &bridge.Boundary{
		Dispatcher: dispatcher,
		Reconciler: reconciler,
		Logger:     logger.With("component", "boundary"),
		Metrics:    m,
	}

	hooks := webhook.New(webhook.Config{
		VerificationToken: cfg.Slack.VerificationToken,
		ZendeskUser:       cfg.Zendesk.WebhookUser,
		ZendeskToken:      cfg.Zendesk.WebhookToken,
		Disabled:          cfg.DisableProcessing,
	}, boundary, logger.With("component", "webhook"), m)

	if cfg.DisableProcessing {
		logger.Warn("message processing is disabled, webhooks will be acknowledged and dropped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := api.NewServer(api.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, hooks, links, logger.With("component", "http"), logBuf)

	errCh := make(chan error, 1)
	go safeGo(logger, "http-server", func() { errCh <- srv.Start(ctx) })

	logger.Info("zenslack started",
		"channel", cfg.Slack.SupportChannel,
		"slack_bot", chat.BotUserID(),
		"data_dir", cfg.DataDir,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", "error", err)
			cancel()
			links.Close()
			os.Exit(1)
		}
	}
	cancel()
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

// Command formwatch is the weekly form-submission tracking daemon.
//
// Usage:
//
//	formwatch -config formwatch.yaml        # full daemon: browser, API, reminders
//	formwatch -url https://forms.gle/...    # watch a single form page
//	formwatch -serve                        # API and reminders only, no browser
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formwatch/badge"
	"github.com/hazyhaar/formwatch/config"
	"github.com/hazyhaar/formwatch/cycle"
	"github.com/hazyhaar/formwatch/detector"
	"github.com/hazyhaar/formwatch/notify"
	"github.com/hazyhaar/formwatch/reminder"
	"github.com/hazyhaar/formwatch/server"
	"github.com/hazyhaar/formwatch/store"
	"github.com/hazyhaar/formwatch/track"
)

func main() {
	configPath := flag.String("config", "", "path to formwatch.yaml config file")
	singleURL := flag.String("url", "", "watch a single form URL with default settings")
	serveOnly := flag.Bool("serve", false, "run the API and reminders without a browser")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *serveOnly); err != nil {
		logger.Error("formwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL string, serveOnly bool) error {
	cfg, err := loadConfig(configPath, singleURL)
	if err != nil {
		return err
	}
	if len(cfg.Forms) == 0 && !serveOnly {
		fmt.Fprintln(os.Stderr, "usage: formwatch -config <file> | -url <url> | -serve")
		os.Exit(1)
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tracker := track.New(st, track.WithLogger(logger))
	registry := detector.NewRegistry(cfg.Forms)

	cycleDay, _ := config.ParseWeekday(cfg.Cycle.Weekday)
	anchor := cycle.Anchor{Weekday: cycleDay, Hour: cfg.Cycle.Hour}

	wakeups := make([]reminder.Wakeup, 0, len(cfg.Reminders))
	for _, r := range cfg.Reminders {
		day, _ := config.ParseWeekday(r.Weekday)
		wakeups = append(wakeups, reminder.Wakeup{
			Weekday: day, Hour: r.Hour, Title: r.Title, Message: r.Message,
		})
	}
	deadline := anchor
	if len(wakeups) > 0 {
		last := wakeups[len(wakeups)-1]
		deadline = cycle.Anchor{Weekday: last.Weekday, Hour: last.Hour}
	}

	sched := reminder.New(reminder.Config{
		Tracker: tracker,
		Sink:    buildSink(cfg.Notify, logger),
		Anchor:  anchor,
		FormID:  cfg.TrackedForm,
		Wakeups: wakeups,
		Logger:  logger,
	})
	go sched.Run(ctx)

	updater := &badge.Updater{
		Tracker:  tracker,
		Renderer: &badge.LogRenderer{Logger: logger},
		Logger:   logger,
	}
	go updater.Run(ctx, st.Watch(store.WatchOptions{Logger: logger}))

	srv := server.New(server.Config{
		Tracker:  tracker,
		Anchor:   anchor,
		Deadline: deadline,
		Logger:   logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("formwatch: api listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("formwatch: api server", "error", err)
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
	}()

	if !serveOnly && len(cfg.Forms) > 0 {
		if err := runBrowser(ctx, logger, cfg, registry, tracker); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("formwatch: shutting down")
	return nil
}

// runBrowser opens every allow-listed form in its own tab and attaches
// a detector session to each.
func runBrowser(ctx context.Context, logger *slog.Logger, cfg *config.Config, registry *detector.Registry, tracker *track.Tracker) error {
	browser := detector.NewBrowser(detector.BrowserConfig{
		Remote:  cfg.Browser.Remote,
		Headful: cfg.Browser.Headful,
		Logger:  logger,
	})
	if err := browser.Start(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		browser.Close()
	}()

	for _, form := range cfg.Forms {
		pageURL := form.ShortURL
		if pageURL == "" {
			pageURL = "https://docs.google.com/forms/d/e/" + form.FormID + "/viewform"
		}
		page, err := browser.OpenPage(ctx, pageURL)
		if err != nil {
			logger.Warn("formwatch: open page", "url", pageURL, "error", err)
			continue
		}
		sess := detector.NewSession(detector.SessionConfig{
			Page:        page,
			Registry:    registry,
			Tracker:     tracker,
			Markers:     cfg.ConfirmationMarkers,
			SubmitWords: cfg.SubmitWords,
			Logger:      logger,
		})
		if err := sess.Start(ctx); err != nil {
			logger.Warn("formwatch: session start", "url", pageURL, "error", err)
			sess.Close()
		}
	}
	return nil
}

func loadConfig(path, singleURL string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	cfg := &config.Config{}
	if singleURL != "" {
		cfg.Forms = []detector.Form{{
			ShortURL: singleURL,
			FormID:   detector.FormIDFromURL(singleURL),
		}}
		cfg.Browser.Headful = true
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildSink(cfg config.NotifyConfig, logger *slog.Logger) notify.Sink {
	var sinks notify.Multi
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Secret))
	}
	if cfg.Telegram.BotToken != "" {
		sinks = append(sinks, notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if len(sinks) == 0 {
		return &notify.LogSink{Logger: logger}
	}
	return sinks
}

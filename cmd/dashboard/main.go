package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/config"
	"BetSentinel/internal/logger"
	"BetSentinel/internal/notifier"
	"BetSentinel/internal/recorder"
	"BetSentinel/internal/remote"
	"BetSentinel/internal/server"
	"BetSentinel/internal/session"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("BetSentinel dashboard failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

// run wires the dashboard and blocks until a shutdown signal. Every resource
// it opens is released before it returns.
func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("BetSentinel dashboard starting", zap.String("backend", cfg.Backend.BaseURL))

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", zap.Error(err))
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := remote.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.Proxy)
	sess := session.New(backend,
		session.WithLogger(log),
		session.WithRecorder(rec),
		session.WithLogLimit(cfg.Poll.LogLimit),
		session.WithIntervals(session.Intervals{
			Status:   cfg.Poll.StatusInterval,
			Logs:     cfg.Poll.LogsInterval,
			Overview: cfg.Poll.OverviewInterval,
		}),
	)

	hub := server.NewHub(log)
	go hub.Run(ctx)
	defer sess.Subscribe(hub.Broadcast)()

	if err := sess.Mount(ctx); err != nil {
		return fmt.Errorf("mount session: %w", err)
	}
	defer sess.Unmount()

	// Optional Telegram console
	if cfg.TelegramEnabled() {
		console, err := notifier.NewConsole(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		if err != nil {
			log.Warn("telegram console disabled", zap.Error(err))
		} else {
			relay := notifier.NewToastRelay(func(ctx context.Context, text string) error {
				return console.SendWithRetry(ctx, text, 3)
			}, log)
			defer sess.Subscribe(relay.Observe)()
			go relay.Run(ctx)
			go console.StartPolling(ctx, notifier.NewCommands(sess).Handle)
			log.Info("telegram polling started")
		}
	}

	handler := server.NewHandler(ctx, sess, hub, cfg.Server.AllowedOrigins, log)
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     server.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, stopping")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	cancel()
	log.Info("BetSentinel dashboard stopped")
	return nil
}

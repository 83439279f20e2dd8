package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"freegamewatcher/internal/alerter"
	"freegamewatcher/internal/catalog"
	"freegamewatcher/internal/config"
	"freegamewatcher/internal/messaging"
	"freegamewatcher/internal/otp"
	"freegamewatcher/internal/scheduler"
	"freegamewatcher/internal/server"
	"freegamewatcher/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	sender := messaging.New(cfg, log)
	otpSvc := otp.NewService(store, sender, log)
	cat := catalog.New(http.DefaultClient, cfg.GamerPowerAPI, cfg.EpicAPI)
	al := alerter.New(store, cat, sender, log)

	sched := scheduler.New(al, time.Duration(cfg.PollIntervalMinutes)*time.Minute, log)
	sched.Start()
	defer sched.Stop()

	srv := server.New(store, otpSvc, sched, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", cfg.AppHost, cfg.AppPort)
	log.Info("starting server", "addr", addr, "poll_interval_min", cfg.PollIntervalMinutes)

	go func() {
		<-ctx.Done()
		sched.Stop()
		if err := srv.Shutdown(); err != nil {
			log.Error("shutdown server", "error", err)
		}
	}()

	if err := srv.Listen(addr); err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

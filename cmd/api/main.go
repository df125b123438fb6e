package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"call-router/internal/audit"
	"call-router/internal/auth"
	"call-router/internal/config"
	"call-router/internal/coordinator"
	"call-router/internal/httpapi"
	"call-router/internal/notifier"
	"call-router/internal/recordings"
	"call-router/internal/reporting"
	"call-router/internal/store"
	"call-router/internal/telnyx"
	"call-router/internal/webhook"
	"call-router/pkg/logger"
	"call-router/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenDatabase(rootCtx, cfg.DB.Driver, cfg.DB.DSN, utils.DBPoolConfig{})
	if err != nil {
		log.Error("database init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	lane := store.NewLane(256)
	defer lane.Close()

	callStore := store.NewSQLStore(db, lane)
	if err := callStore.Init(rootCtx); err != nil {
		log.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	trail := audit.NewService(audit.NewMemoryRepo())

	var dedup webhook.Deduper = webhook.NewMemoryDeduper()
	if cfg.Redis.Addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.Redis.Addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		dedup = webhook.NewRedisDeduper(rdb, log)
	}

	carrier := telnyx.NewClient(cfg.Telnyx, cfg.WebhookURL())

	var mirror coordinator.RecordingMirror
	if cfg.Spaces.Enabled {
		m, err := recordings.NewMirror(cfg.Spaces, log)
		if err != nil {
			log.Error("recording mirror init failed", "err", err)
			os.Exit(1)
		}
		mirror = m
	}

	notify := notifier.New(notifier.Config{
		WebhookURL:        cfg.Notifier.WebhookURL,
		SettleDelay:       cfg.Notifier.SettleDelay,
		RetryDelay:        cfg.Notifier.RetryDelay,
		NetworkRetryDelay: cfg.Notifier.NetworkRetryDelay,
		MaxAttempts:       cfg.Notifier.MaxAttempts,
	}, callStore, trail, log)

	coord := coordinator.New(coordinator.Config{
		HumanNumber:     cfg.Telnyx.HumanNumber,
		NoAnswerTimeout: cfg.Bridge.NoAnswerTimeout,
		GreetingDelay:   cfg.Bridge.GreetingDelay,
		MenuDelay:       cfg.Bridge.MenuDelay,
	}, coordinator.Deps{
		Store:    callStore,
		Carrier:  carrier,
		Trail:    trail,
		Notifier: notify,
		Mirror:   mirror,
		Logger:   log,
	})
	defer coord.Close()

	handlers := httpapi.Handlers{
		Auth:     authManager,
		Store:    callStore,
		Carrier:  carrier,
		Notifier: notify,
		Reports:  reporting.NewService(callStore),
		Trail:    trail,
	}
	hooks := webhook.NewHandler(coord, dedup, trail, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, hooks, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

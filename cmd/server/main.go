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

	"github.com/dom/rally-league/internal/api"
	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/identity"
	"github.com/dom/rally-league/internal/notify"
	"github.com/dom/rally-league/internal/repository/postgres"
	"github.com/dom/rally-league/internal/riot"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/websocket"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	dbLogLevel := logger.Warn
	if !cfg.IsProduction() {
		dbLogLevel = logger.Info
	}
	db, err := postgres.NewConnection(cfg.DatabaseURL, dbLogLevel)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	repos := postgres.NewRepositories(db)

	hub := websocket.NewHub(websocket.RepositoryMembership{Members: repos.PartyMember}, log)
	go hub.Run()

	relays := notify.Multi{hub}
	if cfg.NATSURL != "" {
		natsRelay, err := notify.NewNATSRelay(cfg.NATSURL, log)
		if err != nil {
			log.Error("failed to connect to nats", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer natsRelay.Close()
		relays = append(relays, natsRelay)
	}

	var discord identity.Provider
	if cfg.DiscordEnabled() {
		discord = identity.NewDiscordProvider(cfg)
	} else {
		log.Info("discord login disabled")
	}
	if cfg.RiotAPIKey == "" {
		log.Warn("RIOT_API_KEY is not set; stats lookups will fail")
	}

	services := service.NewServices(repos, cfg, service.Dependencies{
		Stats:    riot.NewClient(cfg, riot.WithLogger(log)),
		Identity: discord,
		Notifier: notify.NewNotifier(relays, log),
		Channels: hub,
		Logger:   log,
	})

	reconciler := service.NewReconciler(services.Party, cfg.ReconcileSchedule, log)
	if err := reconciler.Start(); err != nil {
		log.Error("failed to start reconciler", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(services, hub, cfg)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	reconciler.Stop()
	hub.Stop()

	log.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

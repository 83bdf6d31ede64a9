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
	_ "github.com/jackc/pgx/v5/stdlib"

	"voicedesk/internal/auth"
	"voicedesk/internal/config"
	"voicedesk/internal/conversation"
	"voicedesk/internal/realtime"
	"voicedesk/internal/telephony"
	"voicedesk/internal/voice"
	"voicedesk/pkg/logger"
	"voicedesk/pkg/utils"
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provider, err := telephony.NewTwilioProvider(cfg.Twilio)
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}

	// Call engine wiring. The Redis locker serializes conversation mutations
	// across all API replicas.
	repo := conversation.NewPostgresRepo(db)
	finder := conversation.NewFinderService(repo)
	publisher := realtime.NewPublisher(rdb, log)
	locker := voice.NewRedisLocker(rdb)
	manager := voice.NewManager(repo, publisher, log)
	conference := voice.NewConferenceProcessor(repo, manager, locker, log)
	outgoing := voice.NewOutgoingCallService(repo, finder, provider, manager, locker, log)
	incoming := voice.NewIncomingCallService(repo, finder, locker, publisher, log)

	handlers := &telephony.Handlers{
		Repo:        repo,
		Conference:  conference,
		Incoming:    incoming,
		Outgoing:    outgoing,
		CallbackURL: provider.ConferenceCallbackURL(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireAccessToken(authManager), handlers, db, rdb)

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

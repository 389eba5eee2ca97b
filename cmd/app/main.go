// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-cardkey-platform/internal/config"
	"media-cardkey-platform/internal/domain/ports/repository"
	pg "media-cardkey-platform/internal/infra/db/postgres"
	"media-cardkey-platform/internal/infra/logging"
	"media-cardkey-platform/internal/infra/metrics"
	red "media-cardkey-platform/internal/infra/redis"
	"media-cardkey-platform/internal/infra/sched"
	"media-cardkey-platform/internal/infra/web"
	"media-cardkey-platform/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()

	// ---- Storage backend ----
	var (
		keyRepo       repository.CardKeyRepository
		codeRepo      repository.ActivationCodeRepository
		pointsRepo    repository.PointsRepository
		inviteRepo    repository.InvitationRepository
		inviteCfgRepo repository.InvitationConfigRepository
		tm            repository.TransactionManager
		locker        repository.Locker
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := pg.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		keyRepo = pg.NewCardKeyRepo(pool)
		codeRepo = pg.NewActivationCodeRepo(pool)
		pointsRepo = pg.NewPointsRepo(pool)
		inviteRepo = pg.NewInvitationRepo(pool)
		inviteCfgRepo = pg.NewInvitationConfigRepo(pool)
		tm = pg.NewTxManager(pool)
		locker = pg.NewLocker(pool)
	default: // redis
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		keyRepo = red.NewCardKeyRepo(client)
		codeRepo = red.NewActivationCodeRepo(client)
		pointsRepo = red.NewPointsRepo(client)
		inviteRepo = red.NewInvitationRepo(client)
		inviteCfgRepo = red.NewInvitationConfigRepo(client)
		tm = red.NewTxManager()
		locker = red.NewLocker(client)
	}
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("storage ready")

	// ---- Use cases ----
	keysUC := usecase.NewCardKeyUseCase(keyRepo, logger)
	codesUC := usecase.NewActivationCodeUseCase(codeRepo, logger)
	pointsUC := usecase.NewPointsUseCase(pointsRepo, tm, locker, logger)
	inviteCfgUC := usecase.NewInvitationConfigUseCase(inviteCfgRepo, logger)
	inviteUC := usecase.NewInvitationUseCase(inviteRepo, pointsRepo, inviteCfgRepo, pointsUC, locker, cfg.Site.BaseURL, logger)
	redeemUC := usecase.NewRedeemUseCase(inviteCfgUC, pointsUC, keysUC, locker, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Security.JWTSecret, 30*time.Minute)
	srv := web.NewServer(keysUC, codesUC, pointsUC, inviteUC, inviteCfgUC, redeemUC, auth, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Expiry worker ----
	worker := sched.NewExpiryWorker(cfg.Scheduler.CleanupInterval, keysUC, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/reward-rail/reward_rail/internal/config"
	"github.com/reward-rail/reward_rail/internal/infra"
	"github.com/reward-rail/reward_rail/internal/logging"
	"github.com/reward-rail/reward_rail/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "worker")

	ctx := context.Background()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpt, err := infra.ParseAsynqRedis(cfg.RedisURL)
	if err != nil {
		logger.Error("parse redis url", "error", err)
		os.Exit(1)
	}

	auditor := worker.NewAuditor(db, logger)
	if err := auditor.Start(cfg.AuditSchedule); err != nil {
		logger.Error("schedule ledger audit", "error", err)
		os.Exit(1)
	}
	defer auditor.Stop()

	srv := worker.NewServer(redisOpt, cfg.WorkerConcurrency, logger)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		srv.Shutdown()
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("worker error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("worker exited cleanly")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vishan-khatavkar/echoes-game/internal/app"
	"github.com/vishan-khatavkar/echoes-game/internal/config"
	"github.com/vishan-khatavkar/echoes-game/internal/logger"
	"github.com/vishan-khatavkar/echoes-game/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if !cfg.RedisEnabled() {
		log.Fatalf("The worker reads the turn queue from Redis; STORE must be redis (got %q)", cfg.Store)
	}

	log := logger.Setup(cfg)
	log.Info("Starting Echoes of the Void worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"narrator", cfg.NarratorProvider)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 3*time.Minute)
	game, err := app.Build(buildCtx, cfg, log)
	buildCancel()
	if err != nil {
		log.Error("Failed to start game", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := game.Close(); err != nil {
			log.Error("Error during shutdown", "error", err)
		}
	}()

	if err := game.Scheduler.Start(); err != nil {
		log.Error("Failed to start retry scheduler", "error", err)
		os.Exit(1)
	}

	w := worker.New(game.Queue, game.Processor, log, os.Getenv("WORKER_ID"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())
	if err := w.Run(ctx); err != nil {
		log.Error("Worker error", "error", err)
	}

	retryCtx, retryCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer retryCancel()
	if n, err := game.Processor.RetryPending(retryCtx); err != nil {
		log.Warn("Pending saves remain at shutdown", "saved", n, "error", err)
	}

	log.Info("Worker exited")
}

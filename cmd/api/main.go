package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vishan-khatavkar/echoes-game/internal/app"
	"github.com/vishan-khatavkar/echoes-game/internal/config"
	"github.com/vishan-khatavkar/echoes-game/internal/logger"
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
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Echoes of the Void API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store", cfg.Store,
		"narrator_provider", cfg.NarratorProvider,
		"model_name", cfg.NarratorModel)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	game, err := app.Build(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("Failed to start game", "error", err)
		os.Exit(1)
	}

	if err := game.Scheduler.Start(); err != nil {
		log.Error("Failed to start pending save retries", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     game.Handler(cfg.DisplayHistory),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: turns wait on the narrator and the event stream stays open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Last chance for unsaved turns before exit.
	if n, err := game.Processor.RetryPending(shutdownCtx); err != nil {
		log.Warn("Some pending saves remain", "saved", n, "error", err)
	}

	if err := game.Close(); err != nil {
		log.Error("Error closing game resources", "error", err)
	}

	log.Info("Server exited")
}

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
	"github.com/vishan-khatavkar/echoes-game/internal/telegram"
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
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	log := logger.Setup(cfg)
	log.Info("Starting Echoes of the Void Telegram bot",
		"store", cfg.Store,
		"narrator_provider", cfg.NarratorProvider)

	buildCtx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	game, err := app.Build(buildCtx, cfg, log)
	cancel()
	if err != nil {
		log.Error("Failed to start game", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := game.Close(); err != nil {
			log.Error("Error closing game resources", "error", err)
		}
	}()

	if err := game.Scheduler.Start(); err != nil {
		log.Error("Failed to start pending save retries", "error", err)
		return
	}

	bot, err := telegram.New(cfg.TelegramBotToken, game.Processor, log)
	if err != nil {
		log.Error("Failed to create bot", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot.Start(ctx)
	log.Info("Bot stopped")
}

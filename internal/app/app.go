// Package app assembles the game's collaborators from configuration. The API
// server and the Telegram bot share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vishan-khatavkar/echoes-game/internal/config"
	"github.com/vishan-khatavkar/echoes-game/internal/handlers"
	"github.com/vishan-khatavkar/echoes-game/internal/middleware"
	"github.com/vishan-khatavkar/echoes-game/internal/processor"
	"github.com/vishan-khatavkar/echoes-game/internal/scheduler"
	"github.com/vishan-khatavkar/echoes-game/internal/services"
	"github.com/vishan-khatavkar/echoes-game/internal/services/events"
	"github.com/vishan-khatavkar/echoes-game/internal/services/lock"
	"github.com/vishan-khatavkar/echoes-game/internal/services/queue"
	internalstorage "github.com/vishan-khatavkar/echoes-game/internal/storage"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

// redisWait bounds how long startup waits for Redis.
const redisWait = 2 * time.Minute

// lockGrace covers the storage round trips around a narrator call.
const lockGrace = 30 * time.Second

// lockTTL outlives the longest narrator call a turn can make.
func lockTTL(cfg *config.Config) time.Duration {
	if cfg.NarratorTimeout <= 0 {
		return 0
	}
	return cfg.NarratorTimeout + lockGrace
}

// App holds the wired game.
type App struct {
	Store     storage.Storage
	Processor *processor.Processor
	Scheduler *scheduler.Scheduler

	// Events and Queue are nil unless Redis backs the store.
	Events *events.Broadcaster
	Queue  *queue.TurnQueue

	narrator session.Narrator
	redis    *services.RedisService
	logger   *slog.Logger
}

// Build wires the store, narrator, processor and retry scheduler described
// by cfg. The scheduler is created but not started.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	st := story.Default()
	if cfg.StoryFile != "" {
		var err error
		st, err = story.LoadFile(cfg.StoryFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded story", "file", cfg.StoryFile, "title", st.Title)
	}

	narrator, err := services.NewNarrator(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create narrator: %w", err)
	}

	a := &App{narrator: narrator, logger: logger}
	if err := a.openStore(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	pending, err := internalstorage.NewPendingFile(cfg.PendingFile)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	engineOpts := []session.Option{session.WithLogger(logger)}
	if cfg.LegacyProgression {
		logger.Info("Keyword progression enabled")
		engineOpts = append(engineOpts, session.WithRules(session.KeywordRule{}))
	}
	engine := session.NewEngine(st, narrator, engineOpts...)

	procOpts := []processor.Option{processor.WithPending(pending)}
	if a.redis != nil {
		a.Events = events.NewBroadcaster(a.redis.GetClient(), logger)
		a.Queue = queue.NewTurnQueue(a.redis.GetClient())
		procOpts = append(procOpts,
			processor.WithLocker(lock.NewRedisLocker(a.redis.GetClient(), lockTTL(cfg), logger)),
			processor.WithEvents(a.Events),
		)
	}
	a.Processor = processor.New(engine, a.Store, logger, procOpts...)
	a.Scheduler = scheduler.New(a.Processor, cfg.RetrySchedule, logger)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store {
	case "redis":
		a.redis = services.NewRedisService(cfg.RedisURL, a.logger)
		waitCtx, cancel := context.WithTimeout(ctx, redisWait)
		defer cancel()
		if err := a.redis.WaitForConnection(waitCtx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Store = internalstorage.NewRedisStorage(a.redis.GetClient(), a.logger)

	case "sqlite":
		s, err := internalstorage.NewSQLiteStorage(cfg.SQLitePath, a.logger)
		if err != nil {
			return err
		}
		a.Store = s

	case "sheets":
		creds, err := internalstorage.SheetsCredentials(ctx, cfg.SheetsCredentialsFile, cfg.SheetsCredentialsJSON)
		if err != nil {
			return err
		}
		s, err := internalstorage.NewSheetsStorage(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName, a.logger, creds)
		if err != nil {
			return err
		}
		a.Store = s

	case "memory":
		a.logger.Warn("Using in-memory store; sessions are lost on restart")
		a.Store = storage.NewMockStorage()

	default:
		return fmt.Errorf("unsupported store: %s", cfg.Store)
	}

	a.logger.Info("Session store configured", "store", cfg.Store)
	return nil
}

// Close stops the scheduler and releases the store, Redis, and narrator.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := a.narrator.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close narrator: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP API for the game, wrapped in request logging.
func (a *App) Handler(displayHistory int) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(a.Store, a.logger))

	sessionHandler := handlers.NewSessionHandler(a.Processor, displayHistory, a.logger)
	mux.Handle("/v1/session", sessionHandler)
	mux.Handle("/v1/session/", sessionHandler)

	mux.Handle("/v1/turn", handlers.NewTurnHandler(a.Processor, displayHistory, a.logger))

	if a.Events != nil {
		mux.Handle("/v1/events/", handlers.NewEventsHandler(a.Events, a.logger))
		mux.Handle("/v1/queue", handlers.NewQueueHandler(a.Queue, a.logger))
	} else {
		a.logger.Info("Event stream and turn queue disabled; they require the redis store")
	}

	return middleware.Logger(a.logger, mux)
}

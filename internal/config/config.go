package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level

	// Session store
	Store                 string `env:"STORE" envDefault:"redis"`
	RedisURL              string `env:"REDIS_URL" envDefault:"localhost:6379"`
	SQLitePath            string `env:"SQLITE_PATH" envDefault:"data/sessions.db"`
	SheetsSpreadsheetID   string `env:"SHEETS_SPREADSHEET_ID"`
	SheetsSheetName       string `env:"SHEETS_SHEET_NAME" envDefault:"Sheet1"`
	SheetsCredentialsFile string `env:"SHEETS_CREDENTIALS_FILE"`
	SheetsCredentialsJSON string `env:"SHEETS_CREDENTIALS_JSON"`

	// Narrator
	NarratorProvider string        `env:"NARRATOR_PROVIDER" envDefault:"openai"`
	NarratorAPIKey   string        `env:"NARRATOR_API_KEY"`
	NarratorBaseURL  string        `env:"NARRATOR_BASE_URL"`
	NarratorModel    string        `env:"NARRATOR_MODEL" envDefault:"gpt-4o-mini"`
	NarratorTimeout  time.Duration `env:"NARRATOR_TIMEOUT" envDefault:"60s"`
	ContentRating    string        `env:"CONTENT_RATING" envDefault:"PG-13"`

	// Game
	StoryFile         string `env:"STORY_FILE"`
	LegacyProgression bool   `env:"LEGACY_PROGRESSION" envDefault:"false"`
	DisplayHistory    int    `env:"DISPLAY_HISTORY" envDefault:"20"`

	// Pending saves
	PendingFile   string `env:"PENDING_FILE" envDefault:"data/pending.json"`
	RetrySchedule string `env:"RETRY_SCHEDULE" envDefault:"@every 1m"`

	// Front ends
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	APIBaseURL       string `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.NarratorProvider = strings.ToLower(strings.TrimSpace(cfg.NarratorProvider))
	return &cfg, nil
}

// Validate checks settings that depend on the chosen store and narrator.
func (c *Config) Validate() error {
	switch c.Store {
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case "sheets":
		if c.SheetsSpreadsheetID == "" {
			return fmt.Errorf("SHEETS_SPREADSHEET_ID is required for the sheets store")
		}
		if c.SheetsCredentialsFile == "" && c.SheetsCredentialsJSON == "" {
			return fmt.Errorf("SHEETS_CREDENTIALS_FILE or SHEETS_CREDENTIALS_JSON is required for the sheets store")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store %q (supported: redis, sheets, sqlite, memory)", c.Store)
	}

	switch c.NarratorProvider {
	case "openai", "completions", "gemini":
		if c.NarratorAPIKey == "" {
			return fmt.Errorf("NARRATOR_API_KEY is required for the %s narrator", c.NarratorProvider)
		}
	case "echo":
	default:
		return fmt.Errorf("unsupported narrator provider %q (supported: openai, completions, gemini, echo)", c.NarratorProvider)
	}

	if c.DisplayHistory < 1 {
		return fmt.Errorf("DISPLAY_HISTORY must be at least 1")
	}
	return nil
}

// RedisEnabled reports whether Redis backs the store, and therefore locks and events.
func (c *Config) RedisEnabled() bool {
	return c.Store == "redis"
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

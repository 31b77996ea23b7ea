package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/internal/config"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/textfilter"
)

const (
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 400
)

// NarratorError is returned when the model endpoint answers with a non-2xx
// status or a body that cannot be read as a reply. Transport failures carry
// StatusCode 0.
type NarratorError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *NarratorError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " returned status %d", e.StatusCode)
	} else {
		b.WriteString(" request failed")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString(": ")
		b.WriteString(truncate(body, 200))
	}
	return b.String()
}

func (e *NarratorError) Unwrap() error {
	return e.Err
}

// NewNarrator builds the narrator named by cfg.NarratorProvider. Every call is
// bounded by cfg.NarratorTimeout, and replies pass through a content filter
// when the configured rating asks for one.
func NewNarrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Narrator, error) {
	var (
		n   session.Narrator
		err error
	)

	switch cfg.NarratorProvider {
	case "openai":
		n = NewOpenAINarrator(cfg.NarratorAPIKey, cfg.NarratorBaseURL, cfg.NarratorModel, logger)
	case "completions":
		n = NewCompletionsNarrator(cfg.NarratorAPIKey, cfg.NarratorBaseURL, cfg.NarratorModel, cfg.NarratorTimeout, logger)
	case "gemini":
		n, err = NewGeminiNarrator(ctx, cfg.NarratorAPIKey, cfg.NarratorModel, logger)
		if err != nil {
			return nil, err
		}
	case "echo":
		n = NewEchoNarrator()
	default:
		return nil, fmt.Errorf("unsupported narrator provider: %s", cfg.NarratorProvider)
	}

	if cfg.NarratorTimeout > 0 {
		n = NewTimeoutNarrator(n, cfg.NarratorTimeout)
	}

	if f := textfilter.ForRating(textfilter.Rating(cfg.ContentRating)); f != nil {
		logger.Info("Content filter enabled", "rating", cfg.ContentRating)
		n = NewFilteredNarrator(n, f)
	}

	logger.Info("Narrator configured", "provider", cfg.NarratorProvider, "model", cfg.NarratorModel, "timeout", cfg.NarratorTimeout)
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

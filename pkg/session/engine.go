package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vishan-khatavkar/echoes-game/pkg/prompts"
	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

// Seeder is the slice of a session store needed to start a session.
//
// Seed stores seed for username unless a record already exists, and returns
// whatever is stored afterwards. created is true when seed was written.
type Seeder interface {
	Seed(ctx context.Context, username string, seed Fields) (stored *Fields, created bool, err error)
}

// Engine carries the collaborators a turn needs. It holds no per-session state
// and is safe for concurrent use by different sessions.
type Engine struct {
	story    *story.Story
	narrator Narrator
	rules    []Rule
	window   int
	logger   *slog.Logger
	observer func(TurnState)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules installs progression rules that run after the history length rule.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = append(e.rules, rules...)
	}
}

// WithHistoryWindow overrides how many trailing history entries reach the prompt.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		e.window = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver registers a callback invoked on every turn state transition.
func WithObserver(fn func(TurnState)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// NewEngine creates an engine. The history length rule is always installed first.
func NewEngine(st *story.Story, narrator Narrator, opts ...Option) *Engine {
	if st == nil {
		st = story.Default()
	}
	e := &Engine{
		story:    st,
		narrator: narrator,
		rules:    []Rule{HistoryLengthRule{Interval: LevelUpInterval}},
		window:   prompts.DefaultHistoryWindow,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Story returns the story the engine seeds sessions with.
func (e *Engine) Story() *story.Story {
	return e.story
}

// Initialize loads the session for username, seeding it first if none exists.
// Stored fields that fail to decode are replaced by defaults and reported in
// Repairs; only store failures are returned as errors.
func (e *Engine) Initialize(ctx context.Context, store Seeder, username string) (Record, Repairs, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return Record{}, Repairs{}, err
	}

	seed := ToStoreUpdate(NewRecord(username, e.story))
	stored, created, err := store.Seed(ctx, username, seed)
	if err != nil {
		return Record{}, Repairs{}, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		stored = &seed
	}
	if created {
		e.logger.Info("Seeded new session", "username", username)
	}

	rec, repairs := e.Parse(username, *stored)
	return rec, repairs, nil
}

// Parse decodes stored fields against the engine's story, logging any repairs.
func (e *Engine) Parse(username string, f Fields) (Record, Repairs) {
	rec, repairs := Parse(username, f, e.story)
	if repairs.Any() {
		e.logger.Warn("Recovered malformed session fields",
			"username", username,
			"level", repairs.Level,
			"inventory", repairs.Inventory,
			"history", repairs.History)
	}
	return rec, repairs
}

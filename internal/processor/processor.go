// Package processor runs turns end to end: lock the session, load it, play
// the turn, persist the result, and announce what happened.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vishan-khatavkar/echoes-game/internal/services/lock"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
)

// StoreError reports a failed store operation. Narrator failures never
// produce one: they are recorded in the session history instead.
type StoreError struct {
	Op       string
	Username string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("session %s failed for %s: %v", e.Op, e.Username, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Publisher receives session events. The Redis broadcaster implements it.
type Publisher interface {
	PublishSessionStarted(ctx context.Context, username string, level int) error
	PublishTurnCompleted(ctx context.Context, username string, narratorLine string, level int, leveledUp bool) error
	PublishTurnFailed(ctx context.Context, username string, errorMsg string) error
	PublishSaveFailed(ctx context.Context, username string, errorMsg string) error
}

// Result is the outcome of PlayTurn.
type Result struct {
	Record  session.Record
	Turn    session.Turn
	Repairs session.Repairs
	// Saved is false when the store rejected the new record; it is then
	// held in the pending repository until a retry succeeds.
	Saved bool
}

// Processor handles the session lifecycle for every front end.
type Processor struct {
	engine  *session.Engine
	store   storage.Storage
	pending storage.Pending
	locker  lock.Locker
	events  Publisher
	logger  *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithPending keeps failed saves for retry.
func WithPending(p storage.Pending) Option {
	return func(pr *Processor) {
		pr.pending = p
	}
}

// WithLocker replaces the default in-process locker.
func WithLocker(l lock.Locker) Option {
	return func(pr *Processor) {
		pr.locker = l
	}
}

// WithEvents publishes session events.
func WithEvents(p Publisher) Option {
	return func(pr *Processor) {
		pr.events = p
	}
}

// New creates a processor. Without options it locks in-process, keeps no
// pending saves, and publishes nothing.
func New(engine *session.Engine, store storage.Storage, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		engine: engine,
		store:  store,
		locker: lock.NewLocalLocker(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the session engine.
func (p *Processor) Engine() *session.Engine {
	return p.engine
}

// Start loads or seeds a session and announces it.
func (p *Processor) Start(ctx context.Context, username string) (session.Record, error) {
	rec, _, err := p.Initialize(ctx, username)
	if err != nil {
		return session.Record{}, err
	}
	if p.events != nil {
		if err := p.events.PublishSessionStarted(ctx, rec.Username, rec.Level); err != nil {
			p.logger.Warn("Failed to publish session start", "username", rec.Username, "error", err)
		}
	}
	return rec, nil
}

// Initialize returns the session for username, seeding it when absent.
// A pending save for the user is newer than the store and wins.
func (p *Processor) Initialize(ctx context.Context, username string) (session.Record, session.Repairs, error) {
	username, err := session.NormalizeUsername(username)
	if err != nil {
		return session.Record{}, session.Repairs{}, err
	}

	if p.pending != nil {
		if f, ok := p.pending.Get(username); ok {
			p.logger.Debug("Using pending save", "username", username)
			rec, repairs := p.engine.Parse(username, f)
			return rec, repairs, nil
		}
	}

	rec, repairs, err := p.engine.Initialize(ctx, p.store, username)
	if err != nil {
		return session.Record{}, session.Repairs{}, &StoreError{Op: "load", Username: username, Err: err}
	}
	return rec, repairs, nil
}

// IsPending reports whether username has an unsaved record.
func (p *Processor) IsPending(username string) bool {
	if p.pending == nil {
		return false
	}
	_, ok := p.pending.Get(strings.TrimSpace(username))
	return ok
}

// PlayTurn plays one line of input for username.
//
// Blank input loads the session and returns an idle turn without locking or
// saving. When the save fails the Result still carries the played turn and
// the error is a *StoreError.
func (p *Processor) PlayTurn(ctx context.Context, username, input string) (*Result, error) {
	return p.TryPlayTurn(ctx, username, input, 0)
}

// TryPlayTurn is PlayTurn with a bound on how long it waits for a busy
// session. It returns lock.ErrNotAcquired when lockWait passes first; the
// turn itself still runs under ctx. A lockWait of zero waits as long as ctx.
func (p *Processor) TryPlayTurn(ctx context.Context, username, input string, lockWait time.Duration) (*Result, error) {
	username, err := session.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input) == "" {
		rec, repairs, err := p.Initialize(ctx, username)
		if err != nil {
			return nil, err
		}
		return &Result{Record: rec, Turn: session.Turn{State: session.StateIdle}, Repairs: repairs, Saved: true}, nil
	}

	release, err := p.acquire(ctx, username, lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, repairs, err := p.Initialize(ctx, username)
	if err != nil {
		return nil, err
	}

	next, turn := p.engine.ExecuteTurn(ctx, rec, input)
	res := &Result{Record: next, Turn: turn, Repairs: repairs}

	// The turn already happened; persist it even if the caller has gone.
	saveCtx := context.WithoutCancel(ctx)
	fields := session.ToStoreUpdate(next)
	if err := p.store.Save(saveCtx, username, fields); err != nil {
		p.logger.Error("Failed to save session", "username", username, "history_length", len(next.History), "error", err)
		if p.pending != nil {
			if perr := p.pending.Put(username, fields); perr != nil {
				p.logger.Error("Failed to keep pending save", "username", username, "error", perr)
			}
		}
		p.publish(func(pub Publisher) error {
			return pub.PublishSaveFailed(saveCtx, username, err.Error())
		})
		return res, &StoreError{Op: "save", Username: username, Err: err}
	}
	res.Saved = true

	if p.pending != nil {
		if err := p.pending.Remove(username); err != nil {
			p.logger.Warn("Failed to clear pending save", "username", username, "error", err)
		}
	}

	if turn.State == session.StateFailed {
		p.publish(func(pub Publisher) error {
			return pub.PublishTurnFailed(saveCtx, username, turn.Err.Error())
		})
	} else {
		p.publish(func(pub Publisher) error {
			return pub.PublishTurnCompleted(saveCtx, username, turn.NarratorLine, next.Level, turn.LeveledUp)
		})
	}

	p.logger.Info("Turn played",
		"username", username,
		"state", turn.State.String(),
		"level", next.Level,
		"history_length", len(next.History))
	return res, nil
}

// RetryPending saves every pending record, removing each one that lands.
// It returns how many were saved.
func (p *Processor) RetryPending(ctx context.Context) (int, error) {
	if p.pending == nil {
		return 0, nil
	}

	var (
		saved int
		errs  []error
	)
	for username := range p.pending.All() {
		ok, err := p.retryOne(ctx, username)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			saved++
		}
	}
	if saved > 0 {
		p.logger.Info("Pending saves flushed", "saved", saved)
	}
	return saved, errors.Join(errs...)
}

func (p *Processor) retryOne(ctx context.Context, username string) (bool, error) {
	release, err := p.locker.Acquire(ctx, username)
	if err != nil {
		return false, err
	}
	defer release()

	// A turn may have saved or replaced the entry while we waited.
	f, ok := p.pending.Get(username)
	if !ok {
		return false, nil
	}
	if err := p.store.Save(ctx, username, f); err != nil {
		p.logger.Warn("Pending save still failing", "username", username, "error", err)
		return false, &StoreError{Op: "save", Username: username, Err: err}
	}
	if err := p.pending.Remove(username); err != nil {
		return true, fmt.Errorf("failed to clear pending save: %w", err)
	}
	return true, nil
}

func (p *Processor) acquire(ctx context.Context, username string, wait time.Duration) (func(), error) {
	if wait <= 0 {
		return p.locker.Acquire(ctx, username)
	}
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return p.locker.Acquire(lockCtx, username)
}

func (p *Processor) publish(fn func(Publisher) error) {
	if p.events == nil {
		return
	}
	if err := fn(p.events); err != nil {
		p.logger.Warn("Failed to publish session event", "error", err)
	}
}

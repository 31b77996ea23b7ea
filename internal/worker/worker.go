// Package worker plays queued turns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vishan-khatavkar/echoes-game/internal/processor"
	"github.com/vishan-khatavkar/echoes-game/internal/services/lock"
	"github.com/vishan-khatavkar/echoes-game/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
	turnTimeout   = 2 * time.Minute
	requeueDelay  = 250 * time.Millisecond

	// DefaultLockWait is how long a worker waits on a busy session before
	// putting the request back.
	DefaultLockWait = 5 * time.Second

	// MaxAttempts bounds how often a request is put back for a busy session.
	MaxAttempts = 5
)

// Queue is the slice of the turn queue a worker needs.
type Queue interface {
	Enqueue(ctx context.Context, req *queue.Request) error
	BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error)
}

// Game plays one turn, giving up with lock.ErrNotAcquired when the session
// stays busy for lockWait.
type Game interface {
	TryPlayTurn(ctx context.Context, username, input string, lockWait time.Duration) (*processor.Result, error)
}

// Worker processes requests from the turn queue
type Worker struct {
	id       string
	queue    Queue
	game     Game
	lockWait time.Duration
	log      *slog.Logger
}

// New creates a new worker instance
func New(q Queue, game Game, log *slog.Logger, workerID string) *Worker {
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	return &Worker{
		id:       workerID,
		queue:    q,
		game:     game,
		lockWait: DefaultLockWait,
		log:      log.With("worker_id", workerID),
	}
}

// SetLockWait changes how long a busy session is waited on.
func (w *Worker) SetLockWait(d time.Duration) {
	w.lockWait = d
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run processes requests until ctx is done. A request being played when ctx
// ends is finished first.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Worker starting")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
		}

		if _, err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error("Error processing request", "error", err)
			// Continue processing even on error
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext waits briefly for one request and plays it. It reports
// whether a request was taken off the queue.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	req, err := w.queue.BlockingDequeue(ctx, workerTimeout)
	if err != nil {
		return false, err
	}
	if req == nil {
		return false, nil
	}

	log := w.log.With("request_id", req.RequestID, "username", req.Username)
	log.Info("Received request from queue", "attempts", req.Attempts)

	// The turn is finished even when shutdown begins mid-narration.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnTimeout)
	defer cancel()

	start := time.Now()
	res, err := w.game.TryPlayTurn(turnCtx, req.Username, req.Message, w.lockWait)
	if errors.Is(err, lock.ErrNotAcquired) {
		return true, w.requeue(ctx, req, log)
	}

	var storeErr *processor.StoreError
	switch {
	case err == nil:
	case errors.As(err, &storeErr) && res != nil:
		log.Warn("Queued turn played but not saved", "error", err)
		return true, nil
	default:
		return true, fmt.Errorf("failed to play queued turn %s: %w", req.RequestID, err)
	}

	log.Info("Queued turn processed",
		"state", res.Turn.State.String(),
		"level", res.Record.Level,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

func (w *Worker) requeue(ctx context.Context, req *queue.Request, log *slog.Logger) error {
	req.Attempts++
	if req.Attempts >= MaxAttempts {
		log.Error("Dropping queued turn; session stayed busy", "attempts", req.Attempts)
		return nil
	}

	log.Info("Session busy, re-queueing request", "attempts", req.Attempts)
	select {
	case <-ctx.Done():
	case <-time.After(requeueDelay):
	}
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), req); err != nil {
		return fmt.Errorf("failed to re-queue request: %w", err)
	}
	return nil
}

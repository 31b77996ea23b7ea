package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
	"github.com/vishan-khatavkar/echoes-game/internal/services"
	"github.com/vishan-khatavkar/echoes-game/internal/services/lock"
	internalstorage "github.com/vishan-khatavkar/echoes-game/internal/storage"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

type recordedEvent struct {
	kind     string
	username string
	level    int
	detail   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingPublisher) add(e recordedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) PublishSessionStarted(ctx context.Context, username string, level int) error {
	return r.add(recordedEvent{kind: "started", username: username, level: level})
}

func (r *recordingPublisher) PublishTurnCompleted(ctx context.Context, username, narratorLine string, level int, leveledUp bool) error {
	kind := "completed"
	if leveledUp {
		kind = "completed+levelup"
	}
	return r.add(recordedEvent{kind: kind, username: username, level: level, detail: narratorLine})
}

func (r *recordingPublisher) PublishTurnFailed(ctx context.Context, username, errorMsg string) error {
	return r.add(recordedEvent{kind: "failed", username: username, detail: errorMsg})
}

func (r *recordingPublisher) PublishSaveFailed(ctx context.Context, username, errorMsg string) error {
	return r.add(recordedEvent{kind: "save_failed", username: username, detail: errorMsg})
}

func (r *recordingPublisher) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

type fixture struct {
	proc     *Processor
	store    *storage.MockStorage
	narrator *services.MockNarrator
	pending  *internalstorage.PendingFile
	events   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMockStorage()
	narrator := services.NewMockNarrator()
	pending, err := internalstorage.NewPendingFile("")
	require.NoError(t, err)
	events := &recordingPublisher{}

	engine := session.NewEngine(story.Default(), narrator)
	proc := New(engine, store, logger.Discard(),
		WithPending(pending),
		WithEvents(events),
	)
	return &fixture{proc: proc, store: store, narrator: narrator, pending: pending, events: events}
}

func TestStart_SeedsAndAnnounces(t *testing.T) {
	f := newFixture(t)

	rec, err := f.proc.Start(context.Background(), "  Spectre-41 ")
	require.NoError(t, err)
	assert.Equal(t, "Spectre-41", rec.Username)
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, []string{story.DefaultOpening}, rec.History)

	stored, err := f.store.Load(context.Background(), "Spectre-41")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"started"}, f.events.kinds())
}

func TestInitialize_EmptyUsername(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.proc.Initialize(context.Background(), " ")
	assert.ErrorIs(t, err, session.ErrEmptyUsername)

	var storeErr *StoreError
	assert.False(t, errors.As(err, &storeErr))
}

func TestInitialize_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.store.SetLoadError(errors.New("sheet offline"))

	_, _, err := f.proc.Initialize(context.Background(), "alice")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "load", storeErr.Op)
	assert.Equal(t, "alice", storeErr.Username)
	assert.Contains(t, err.Error(), "sheet offline")
}

func TestPlayTurn_Spectre41(t *testing.T) {
	f := newFixture(t)
	f.narrator.SetReply("Your HUD shows 12% power.")
	ctx := context.Background()

	res, err := f.proc.PlayTurn(ctx, "Spectre-41", "examine HUD")
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, session.StateCompleted, res.Turn.State)
	assert.Equal(t, []string{story.DefaultOpening, "You: examine HUD", "Your HUD shows 12% power."}, res.Record.History)
	assert.Equal(t, 1, res.Record.Level)

	// The stored row decodes to the same record.
	stored, err := f.store.Load(ctx, "Spectre-41")
	require.NoError(t, err)
	parsed, repairs := session.Parse("Spectre-41", *stored, story.Default())
	assert.False(t, repairs.Any())
	assert.Equal(t, res.Record, parsed)

	assert.Equal(t, []string{"completed"}, f.events.kinds())
}

func TestPlayTurn_BlankInputIsNoop(t *testing.T) {
	f := newFixture(t)

	res, err := f.proc.PlayTurn(context.Background(), "alice", "   ")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, res.Turn.State)
	assert.Len(t, res.Record.History, 1)
	assert.Empty(t, f.narrator.GetCalls())
	assert.Equal(t, 0, f.store.SaveCount())
	assert.Empty(t, f.events.kinds())
}

func TestPlayTurn_LevelUp(t *testing.T) {
	f := newFixture(t)
	f.narrator.SetReply("A panel slides open.")

	rec := session.NewRecord("alice", story.Default())
	rec.History = []string{"a", "b", "c", "d"}
	f.store.Put("alice", session.ToStoreUpdate(rec))

	res, err := f.proc.PlayTurn(context.Background(), "alice", "push panel")
	require.NoError(t, err)
	assert.True(t, res.Turn.LeveledUp)
	assert.Equal(t, 2, res.Record.Level)
	assert.Len(t, res.Record.History, 7)
	assert.Equal(t, session.LevelUpLine(2), res.Record.History[6])
	assert.Equal(t, []string{"completed+levelup"}, f.events.kinds())
}

func TestPlayTurn_NarratorFailureIsSaved(t *testing.T) {
	f := newFixture(t)
	f.narrator.SetError(&services.NarratorError{Provider: "completions", StatusCode: 503, Body: "overloaded"})

	res, err := f.proc.PlayTurn(context.Background(), "alice", "hello?")
	require.NoError(t, err, "narrator failures are not processor errors")
	assert.True(t, res.Saved)
	assert.Equal(t, session.StateFailed, res.Turn.State)
	assert.Equal(t, 1, res.Record.Level)
	require.Len(t, res.Record.History, 3)
	assert.Equal(t, "You: hello?", res.Record.History[1])
	assert.Contains(t, res.Record.History[2], "overloaded")
	assert.Equal(t, []string{"failed"}, f.events.kinds())
}

func TestPlayTurn_SaveFailureGoesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proc.Start(ctx, "alice")
	require.NoError(t, err)

	f.store.SetSaveError(errors.New("quota exceeded"))
	res, err := f.proc.PlayTurn(ctx, "alice", "look")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "save", storeErr.Op)
	require.NotNil(t, res)
	assert.False(t, res.Saved)
	assert.Len(t, res.Record.History, 3)
	assert.True(t, f.proc.IsPending("alice"))

	// The next turn builds on the pending record, not the stale stored one.
	f.store.SetSaveError(nil)
	res, err = f.proc.PlayTurn(ctx, "alice", "look again")
	require.NoError(t, err)
	assert.Len(t, res.Record.History, 5)
	assert.False(t, f.proc.IsPending("alice"))

	assert.Equal(t, []string{"started", "save_failed", "completed"}, f.events.kinds())
}

func TestRetryPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.SetSaveError(errors.New("offline"))
	_, err := f.proc.PlayTurn(ctx, "alice", "look")
	require.Error(t, err)
	_, err = f.proc.PlayTurn(ctx, "bob", "look")
	require.Error(t, err)

	saved, err := f.proc.RetryPending(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, saved)
	assert.Len(t, f.pending.All(), 2)

	f.store.SetSaveError(nil)
	saved, err = f.proc.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
	assert.Empty(t, f.pending.All())

	stored, err := f.store.Load(ctx, "alice")
	require.NoError(t, err)
	rec, _ := session.Parse("alice", *stored, story.Default())
	assert.Len(t, rec.History, 3)
}

func TestRetryPending_NoRepository(t *testing.T) {
	proc := New(session.NewEngine(nil, services.NewMockNarrator()), storage.NewMockStorage(), logger.Discard())
	saved, err := proc.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, saved)
	assert.False(t, proc.IsPending("anyone"))
}

func TestPlayTurn_ConcurrentTurnsKeepEveryLine(t *testing.T) {
	f := newFixture(t)
	f.narrator.SetReply("ok")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proc.PlayTurn(ctx, "alice", "step")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.store.Load(ctx, "alice")
	require.NoError(t, err)
	rec, _ := session.Parse("alice", *stored, story.Default())
	assert.Len(t, rec.History, 21)
}

func TestPlayTurn_CancelledContextStillSaves(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.narrator.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		cancel()
		return "", ctx.Err()
	}

	res, err := f.proc.PlayTurn(ctx, "alice", "wait")
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, session.StateFailed, res.Turn.State)
	assert.Equal(t, 1, f.store.SaveCount())
}

func TestTryPlayTurn_BusySessionGivesUpQuickly(t *testing.T) {
	store := storage.NewMockStorage()
	narrator := services.NewMockNarrator()
	locker := lock.NewLocalLocker()
	proc := New(session.NewEngine(story.Default(), narrator), store, logger.Discard(), WithLocker(locker))

	release, err := locker.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	_, err = proc.TryPlayTurn(ctx, "alice", "look", 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lock.ErrNotAcquired))
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, narrator.GetCalls())
	assert.Zero(t, store.SaveCount())

	release()
	res, err := proc.TryPlayTurn(ctx, "alice", "look", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Saved)
}

func TestTryPlayTurn_LockWaitDoesNotBoundTheTurn(t *testing.T) {
	f := newFixture(t)
	f.narrator.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return "slow but fine", nil
		}
	}

	res, err := f.proc.TryPlayTurn(context.Background(), "alice", "look", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, res.Turn.State)
	assert.Equal(t, "slow but fine", res.Turn.NarratorLine)
}

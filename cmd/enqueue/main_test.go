package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/internal/app"
	"github.com/vishan-khatavkar/echoes-game/internal/config"
	"github.com/vishan-khatavkar/echoes-game/internal/logger"
	"github.com/vishan-khatavkar/echoes-game/internal/worker"
	"github.com/vishan-khatavkar/echoes-game/pkg/client"
)

func startGame(t *testing.T, withWorker bool) (*app.App, *client.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Store:            "redis",
		RedisURL:         mr.Addr(),
		NarratorProvider: "echo",
		ContentRating:    "R",
		PendingFile:      filepath.Join(t.TempDir(), "pending.json"),
		RetrySchedule:    "@every 1m",
		DisplayHistory:   20,
	}
	game, err := app.Build(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)

	server := httptest.NewServer(game.Handler(cfg.DisplayHistory))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if withWorker {
			_ = worker.New(game.Queue, game.Processor, logger.Discard(), "test").Run(ctx)
		}
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		server.Close()
		_ = game.Close()
	})
	return game, client.New(server.URL, nil)
}

func TestRun_WaitsForOutcome(t *testing.T) {
	game, api := startGame(t, true)

	err := run(context.Background(), api, "Spectre-41", "hello", 20*time.Second)
	require.NoError(t, err)

	rec, _, err := game.Processor.Initialize(context.Background(), "Spectre-41")
	require.NoError(t, err)
	assert.Equal(t, "The void echoes back: hello", rec.History[len(rec.History)-1])
}

func TestRun_NoWait(t *testing.T) {
	game, api := startGame(t, false)

	require.NoError(t, run(context.Background(), api, "alice", "look", 0))

	depth, err := game.Queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestRun_Timeout(t *testing.T) {
	_, api := startGame(t, false)

	err := run(context.Background(), api, "alice", "look", 300*time.Millisecond)
	require.Error(t, err)
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
)

type countingRetrier struct {
	calls atomic.Int32
	err   error
}

func (c *countingRetrier) RetryPending(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestScheduler_RunsRetries(t *testing.T) {
	r := &countingRetrier{}
	s := New(r, "@every 1s", logger.Discard())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(&countingRetrier{}, "whenever", logger.Discard())
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whenever")
	assert.False(t, s.IsRunning())
}

func TestScheduler_RunSurvivesErrors(t *testing.T) {
	r := &countingRetrier{err: errors.New("still offline")}
	s := New(r, "@every 1m", logger.Discard())

	s.run()
	s.run()
	assert.Equal(t, int32(2), r.calls.Load())
}

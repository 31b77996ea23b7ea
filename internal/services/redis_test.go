package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
)

func TestRedisService_WaitForConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	svc := NewRedisService(mr.Addr(), logger.Discard())
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.WaitForConnection(ctx))
	require.NoError(t, svc.Ping(ctx))
	assert.NotNil(t, svc.GetClient())
}

func TestRedisService_WaitForConnectionGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	svc := NewRedisService(addr, logger.Discard())
	defer func() { _ = svc.Close() }()
	svc.SetRetry(2, 10*time.Millisecond)

	err := svc.WaitForConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestRedisService_WaitForConnectionCancelled(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	svc := NewRedisService(addr, logger.Discard())
	defer func() { _ = svc.Close() }()
	svc.SetRetry(100, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.WaitForConnection(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

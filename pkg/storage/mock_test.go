package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

func TestMockStorage_SeedThenLoad(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()

	got, err := m.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	seed := session.Fields{Level: "1", Inventory: "[]", History: `["start"]`}
	stored, created, err := m.Seed(ctx, "alice", seed)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, seed, *stored)

	other := session.Fields{Level: "9", Inventory: "[]", History: "[]"}
	stored, created, err = m.Seed(ctx, "alice", other)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, seed, *stored)
}

func TestMockStorage_Errors(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()
	boom := errors.New("boom")

	m.SetSaveError(boom)
	assert.ErrorIs(t, m.Save(ctx, "alice", session.Fields{}), boom)
	assert.Equal(t, 0, m.SaveCount())

	m.SetLoadError(boom)
	_, _, err := m.Seed(ctx, "alice", session.Fields{})
	assert.ErrorIs(t, err, boom)

	m.SetPingError(boom)
	assert.ErrorIs(t, m.Ping(ctx), boom)
}

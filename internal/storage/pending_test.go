package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

func TestPendingFile_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pending.json")

	p, err := NewPendingFile(path)
	require.NoError(t, err)
	assert.Empty(t, p.All())

	f := session.Fields{Level: "2", Inventory: "[]", History: `["a"]`}
	require.NoError(t, p.Put("alice", f))
	require.NoError(t, p.Put("bob", f))
	require.NoError(t, p.Remove("bob"))
	require.NoError(t, p.Remove("nobody"))

	reopened, err := NewPendingFile(path)
	require.NoError(t, err)
	got, ok := reopened.Get("alice")
	require.True(t, ok)
	assert.Equal(t, f, got)
	_, ok = reopened.Get("bob")
	assert.False(t, ok)
}

func TestPendingFile_MemoryOnly(t *testing.T) {
	p, err := NewPendingFile("")
	require.NoError(t, err)

	require.NoError(t, p.Put("alice", session.Fields{Level: "1"}))
	all := p.All()
	assert.Len(t, all, 1)

	// All returns a copy.
	delete(all, "alice")
	_, ok := p.Get("alice")
	assert.True(t, ok)
}

func TestPendingFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := NewPendingFile(path)
	assert.Error(t, err)
}

func TestPendingFile_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	p, err := NewPendingFile(path)
	require.NoError(t, err)
	assert.Empty(t, p.All())
}

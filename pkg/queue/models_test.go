package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	a := NewRequest("Spectre-41", "look around")
	b := NewRequest("Spectre-41", "look around")

	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.Equal(t, "Spectre-41", a.Username)
	assert.False(t, a.EnqueuedAt.IsZero())
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("{not json"))
	require.Error(t, err)
}

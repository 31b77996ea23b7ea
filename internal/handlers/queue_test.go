package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
	turnqueue "github.com/vishan-khatavkar/echoes-game/internal/services/queue"
	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
	"github.com/vishan-khatavkar/echoes-game/pkg/queue"
)

type brokenQueue struct{}

func (brokenQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	return errors.New("redis down")
}

func (brokenQueue) Depth(ctx context.Context) (int, error) { return 0, nil }

func postQueue(t *testing.T, h http.Handler, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/v1/queue", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueueHandler_Enqueues(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := turnqueue.NewTurnQueue(rdb)
	h := NewQueueHandler(q, logger.Discard())

	rec := postQueue(t, h, http.MethodPost, `{"username":" Spectre-41 ","message":"scan the hull"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp chat.QueuedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 1, resp.QueueDepth)

	queued, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, queued)
	assert.Equal(t, resp.RequestID, queued.RequestID)
	assert.Equal(t, "Spectre-41", queued.Username)
	assert.Equal(t, "scan the hull", queued.Message)
}

func TestQueueHandler_Rejects(t *testing.T) {
	h := NewQueueHandler(brokenQueue{}, logger.Discard())

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"blank username", http.MethodPost, `{"username":" ","message":"hi"}`, http.StatusBadRequest},
		{"blank message", http.MethodPost, `{"username":"alice","message":"  "}`, http.StatusBadRequest},
		{"queue down", http.MethodPost, `{"username":"alice","message":"hi"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postQueue(t, h, tt.method, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var errResp chat.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

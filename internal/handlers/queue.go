package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
	"github.com/vishan-khatavkar/echoes-game/pkg/queue"
)

// TurnQueue accepts turns for the worker.
type TurnQueue interface {
	Enqueue(ctx context.Context, req *queue.Request) error
	Depth(ctx context.Context) (int, error)
}

// QueueHandler queues turns instead of playing them inline. The outcome
// arrives on the session's event stream.
type QueueHandler struct {
	queue  TurnQueue
	logger *slog.Logger
}

func NewQueueHandler(q TurnQueue, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{queue: q, logger: logger}
}

// ServeHTTP handles POST /v1/queue
func (h *QueueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}

	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'username' and 'message' fields.")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	// Blank input changes nothing, so there is nothing to queue.
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "message cannot be empty")
		return
	}

	qr := queue.NewRequest(strings.TrimSpace(req.Username), req.Message)
	if err := h.queue.Enqueue(r.Context(), qr); err != nil {
		h.logger.Error("Failed to enqueue turn", "username", qr.Username, "error", err)
		writeError(w, h.logger, http.StatusServiceUnavailable, "Turn queue is unavailable. Please try again.")
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Warn("Failed to read queue depth", "error", err)
	}

	h.logger.Info("Turn queued", "username", qr.Username, "request_id", qr.RequestID, "queue_depth", depth)
	writeJSON(w, h.logger, http.StatusAccepted, chat.QueuedResponse{RequestID: qr.RequestID, QueueDepth: depth})
}

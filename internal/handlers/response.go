package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vishan-khatavkar/echoes-game/internal/processor"
	"github.com/vishan-khatavkar/echoes-game/internal/services/lock"
	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

// DefaultDisplayHistory is how many history entries a response shows when
// the handler is not configured otherwise.
const DefaultDisplayHistory = 20

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, chat.ErrorResponse{Error: msg})
}

// errorStatus maps processor errors onto HTTP statuses.
func errorStatus(err error) (int, string) {
	var storeErr *processor.StoreError
	switch {
	case errors.Is(err, session.ErrEmptyUsername):
		return http.StatusBadRequest, "Username cannot be empty."
	case errors.Is(err, lock.ErrNotAcquired):
		return http.StatusConflict, "Another turn for this user is still running."
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, "Session store is unavailable. Please try again."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

func sessionResponse(rec session.Record, display int, pending bool) chat.SessionResponse {
	inventory := rec.Inventory
	if inventory == nil {
		inventory = []string{}
	}
	return chat.SessionResponse{
		Username:      rec.Username,
		Level:         rec.Level,
		Inventory:     inventory,
		Objectives:    rec.Objectives,
		History:       rec.Tail(display),
		HistoryLength: len(rec.History),
		Pending:       pending,
	}
}

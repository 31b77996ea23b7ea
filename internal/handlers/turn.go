package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vishan-khatavkar/echoes-game/internal/processor"
	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
)

// TurnHandler plays one turn per request.
type TurnHandler struct {
	proc           *processor.Processor
	displayHistory int
	logger         *slog.Logger
}

func NewTurnHandler(proc *processor.Processor, displayHistory int, logger *slog.Logger) *TurnHandler {
	if displayHistory < 1 {
		displayHistory = DefaultDisplayHistory
	}
	return &TurnHandler{
		proc:           proc,
		displayHistory: displayHistory,
		logger:         logger,
	}
}

// ServeHTTP handles POST /v1/turn
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for turn endpoint",
			"method", r.Method,
			"path", r.URL.Path)
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

	res, err := h.proc.PlayTurn(r.Context(), req.Username, req.Message)
	var storeErr *processor.StoreError
	switch {
	case err == nil:
	case errors.As(err, &storeErr) && res != nil:
		// The turn was played but not stored. Show it, flagged unsaved.
		h.logger.Error("Turn played but not saved", "username", req.Username, "error", err)
		resp := turnResponse(res, h.displayHistory, true)
		resp.Error = "Your progress could not be saved yet. It will be retried."
		writeJSON(w, h.logger, http.StatusServiceUnavailable, resp)
		return
	default:
		h.logger.Error("Failed to play turn", "username", req.Username, "error", err)
		status, msg := errorStatus(err)
		writeError(w, h.logger, status, msg)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, turnResponse(res, h.displayHistory, h.proc.IsPending(res.Record.Username)))
}

func turnResponse(res *processor.Result, display int, pending bool) chat.TurnResponse {
	resp := chat.TurnResponse{
		State:     res.Turn.State.String(),
		Extra:     res.Turn.Extra,
		LeveledUp: res.Turn.LeveledUp,
		Saved:     res.Saved,
		Session:   sessionResponse(res.Record, display, pending),
	}
	if res.Turn.Played() {
		resp.PlayerLine = res.Turn.PlayerLine
		resp.NarratorLine = res.Turn.NarratorLine
	}
	if res.Turn.Err != nil {
		resp.Error = res.Turn.Err.Error()
	}
	return resp
}

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/internal/processor"
	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
)

// SessionHandler starts and reads sessions.
type SessionHandler struct {
	proc           *processor.Processor
	displayHistory int
	logger         *slog.Logger
}

func NewSessionHandler(proc *processor.Processor, displayHistory int, logger *slog.Logger) *SessionHandler {
	if displayHistory < 1 {
		displayHistory = DefaultDisplayHistory
	}
	return &SessionHandler{
		proc:           proc,
		displayHistory: displayHistory,
		logger:         logger,
	}
}

// ServeHTTP handles HTTP requests for sessions
// Routes:
// POST /v1/session            - Start or resume a session
// GET  /v1/session/{username} - Read a session, seeding it if new
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/session"), "/")

	switch r.Method {
	case http.MethodPost:
		if username != "" {
			writeError(w, h.logger, http.StatusNotFound, "POST /v1/session takes the username in the body.")
			return
		}
		h.handleStart(w, r)

	case http.MethodGet:
		if username == "" {
			writeError(w, h.logger, http.StatusBadRequest, "Username is required for GET requests.")
			return
		}
		h.handleRead(w, r, username)

	default:
		h.logger.Warn("Method not allowed for session endpoint", "method", r.Method)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST, GET")
	}
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req chat.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'username' field.")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.proc.Start(r.Context(), req.Username)
	if err != nil {
		h.logger.Error("Failed to start session", "username", req.Username, "error", err)
		status, msg := errorStatus(err)
		writeError(w, h.logger, status, msg)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, sessionResponse(rec, h.displayHistory, h.proc.IsPending(rec.Username)))
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, username string) {
	rec, _, err := h.proc.Initialize(r.Context(), username)
	if err != nil {
		h.logger.Error("Failed to load session", "username", username, "error", err)
		status, msg := errorStatus(err)
		writeError(w, h.logger, status, msg)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, sessionResponse(rec, h.displayHistory, h.proc.IsPending(rec.Username)))
}

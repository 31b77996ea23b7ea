// Package chat defines the JSON bodies exchanged with the game API.
package chat

import (
	"fmt"
	"strings"
)

const (
	ChatRoleUser   = "user"      // player
	ChatRoleAgent  = "assistant" // narrator
	ChatRoleSystem = "system"    // persona
)

// ChatMessage is one message sent to a chat-completions style model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionRequest starts or resumes a session.
type SessionRequest struct {
	Username string `json:"username"`
}

func (r *SessionRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("username cannot be empty")
	}
	return nil
}

// TurnRequest submits one line of player input.
type TurnRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Validate checks the username only: a blank message is a legal no-op turn.
func (r *TurnRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("username cannot be empty")
	}
	return nil
}

// SessionResponse is a session as shown to a client. History holds the
// display tail, HistoryLength the full transcript length.
type SessionResponse struct {
	Username      string   `json:"username"`
	Level         int      `json:"level"`
	Inventory     []string `json:"inventory"`
	Objectives    []string `json:"objectives"`
	History       []string `json:"history"`
	HistoryLength int      `json:"history_length"`
	Pending       bool     `json:"pending,omitempty"`
}

// TurnResponse is the outcome of a turn.
type TurnResponse struct {
	State        string          `json:"state"`
	PlayerLine   string          `json:"player_line,omitempty"`
	NarratorLine string          `json:"narrator_line,omitempty"`
	Extra        []string        `json:"extra,omitempty"`
	LeveledUp    bool            `json:"leveled_up,omitempty"`
	Saved        bool            `json:"saved"`
	Error        string          `json:"error,omitempty"`
	Session      SessionResponse `json:"session"`
}

// ErrorResponse is returned for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// QueuedResponse acknowledges a turn accepted for a worker to play.
type QueuedResponse struct {
	RequestID  string `json:"request_id"`
	QueueDepth int    `json:"queue_depth"`
}

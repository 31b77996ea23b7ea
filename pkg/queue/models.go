// Package queue defines the jobs carried by the turn queue.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request is one queued turn.
type Request struct {
	RequestID string `json:"request_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`

	// Attempts counts how often a worker found the session busy and put the
	// request back.
	Attempts int `json:"attempts,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRequest returns a request with a fresh ID.
func NewRequest(username, message string) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Username:   username,
		Message:    message,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

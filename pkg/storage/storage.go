// Package storage defines where sessions live between turns.
package storage

import (
	"context"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

// Storage persists session rows keyed by username. Every implementation
// stores the three text fields produced by session.ToStoreUpdate and returns
// them untouched; decoding is the session package's job.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Load returns the stored row, or nil if the username has none.
	Load(ctx context.Context, username string) (*session.Fields, error)

	// Save writes the row, creating it when absent. Last write wins.
	Save(ctx context.Context, username string, fields session.Fields) error

	// Seed writes seed only when no row exists and returns the stored row.
	// created reports whether seed was written.
	Seed(ctx context.Context, username string, seed session.Fields) (stored *session.Fields, created bool, err error)
}

// Pending holds rows whose save failed so they can be retried. An entry is
// newer than whatever the Storage has for the same username.
type Pending interface {
	Put(username string, fields session.Fields) error
	Get(username string) (session.Fields, bool)
	Remove(username string) error
	All() map[string]session.Fields
}

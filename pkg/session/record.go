// Package session holds the per-user record and the turn reducer that advances it.
//
// Nothing in this package keeps state between calls: a Record goes in, an
// updated Record comes out, and persistence is left to the caller.
package session

import (
	"errors"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/pkg/prompts"
	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

// Record is one player's session.
type Record struct {
	Username   string   `json:"username"`
	Level      int      `json:"level"`
	Inventory  []string `json:"inventory"`
	History    []string `json:"history"`
	Objectives []string `json:"objectives"`
}

// NewRecord builds the seed record for a first-time player.
func NewRecord(username string, st *story.Story) Record {
	return Record{
		Username:   username,
		Level:      1,
		Inventory:  []string{},
		History:    []string{st.Opening},
		Objectives: copyStrings(st.Objectives),
	}
}

// Clone returns a deep copy so a turn never writes through to its input.
func (r Record) Clone() Record {
	return Record{
		Username:   r.Username,
		Level:      r.Level,
		Inventory:  copyStrings(r.Inventory),
		History:    copyStrings(r.History),
		Objectives: copyStrings(r.Objectives),
	}
}

// Tail returns the last n history entries for display. Storage always keeps the
// full transcript.
func (r Record) Tail(n int) []string {
	return prompts.Window(r.History, n)
}

// ErrEmptyUsername is returned for a blank username.
var ErrEmptyUsername = errors.New("username cannot be empty")

// NormalizeUsername trims the username and rejects blank ones.
func NormalizeUsername(username string) (string, error) {
	u := strings.TrimSpace(username)
	if u == "" {
		return "", ErrEmptyUsername
	}
	return u, nil
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

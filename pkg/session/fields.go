package session

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/pkg/story"
)

// Fields is the persisted form of a Record: three text cells keyed by username.
// Level holds a decimal integer; Inventory and History hold JSON string arrays.
type Fields struct {
	Level     string `json:"level" db:"level"`
	Inventory string `json:"inventory" db:"inventory"`
	History   string `json:"history" db:"history"`
}

// Repairs reports which stored fields could not be decoded and were replaced
// with defaults during Parse.
type Repairs struct {
	Level     bool `json:"level,omitempty"`
	Inventory bool `json:"inventory,omitempty"`
	History   bool `json:"history,omitempty"`
}

// Any reports whether any field was defaulted.
func (r Repairs) Any() bool {
	return r.Level || r.Inventory || r.History
}

// ToStoreUpdate serializes the writable fields of a record.
// Parse(ToStoreUpdate(r)) reproduces r for any record built by this package.
func ToStoreUpdate(r Record) Fields {
	return Fields{
		Level:     strconv.Itoa(r.Level),
		Inventory: marshalList(r.Inventory),
		History:   marshalList(r.History),
	}
}

// Parse decodes stored fields. It never fails: a level that is not an
// integer >= 1 becomes 1, an undecodable inventory becomes empty, and an
// undecodable or empty history becomes the story opening.
func Parse(username string, f Fields, st *story.Story) (Record, Repairs) {
	var repairs Repairs

	level, err := strconv.Atoi(strings.TrimSpace(f.Level))
	if err != nil || level < 1 {
		level = 1
		repairs.Level = true
	}

	inventory, ok := unmarshalList(f.Inventory)
	if !ok {
		inventory = []string{}
		repairs.Inventory = !isAbsent(f.Inventory)
	}

	history, ok := unmarshalList(f.History)
	if !ok || len(history) == 0 {
		history = []string{st.Opening}
		repairs.History = true
	}

	return Record{
		Username:   username,
		Level:      level,
		Inventory:  inventory,
		History:    history,
		Objectives: copyStrings(st.Objectives),
	}, repairs
}

// isAbsent reports whether a stored cell holds no sequence at all.
func isAbsent(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || text == "null"
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		// a []string always encodes
		return "[]"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// unmarshalList returns false for blank text, malformed JSON, JSON null, or
// arrays containing non-string values.
func unmarshalList(text string) ([]string, bool) {
	if isAbsent(text) {
		return nil, false
	}
	var items []string
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, false
	}
	if items == nil {
		items = []string{}
	}
	return items, true
}

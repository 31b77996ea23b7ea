package session

import (
	"fmt"
	"regexp"
	"strings"
)

// LevelUpInterval is the history length period that grants a level.
const LevelUpInterval = 6

// LevelUpLine is the synthetic history entry announcing a new level.
func LevelUpLine(level int) string {
	return fmt.Sprintf("*** Level up! You are now level %d. ***", level)
}

// Outcome reports what a rule changed on the record.
type Outcome struct {
	LeveledUp bool
	Items     []string
	Lines     []string
}

func (o *Outcome) merge(other Outcome) {
	o.LeveledUp = o.LeveledUp || other.LeveledUp
	o.Items = append(o.Items, other.Items...)
	o.Lines = append(o.Lines, other.Lines...)
}

// Rule advances a record after a successful narrator reply has been appended.
// Rules mutate rec directly and report what they did.
type Rule interface {
	Name() string
	Apply(rec *Record, reply string) Outcome
}

// HistoryLengthRule grants a level whenever the history length reaches a
// multiple of Interval. The announcement line it appends counts toward later
// checks.
type HistoryLengthRule struct {
	Interval int
}

func (HistoryLengthRule) Name() string { return "history_length" }

func (h HistoryLengthRule) Apply(rec *Record, _ string) Outcome {
	interval := h.Interval
	if interval <= 0 {
		interval = LevelUpInterval
	}
	if len(rec.History)%interval != 0 {
		return Outcome{}
	}
	rec.Level++
	line := LevelUpLine(rec.Level)
	rec.History = append(rec.History, line)
	return Outcome{LeveledUp: true, Lines: []string{line}}
}

var (
	levelPhrase = regexp.MustCompile(`(?i)\b(level(ed)?[ -]?up|advance to level)\b`)
	itemPhrase  = regexp.MustCompile(`(?i)\byou (?:received|obtained|picked up|found) (?:a |an |the |some )?([a-z0-9][a-z0-9' -]{0,39}?)\s*[.!,;\n]`)
)

// KeywordRule reads the narrator's prose for "level up" and "you received
// <item>" phrasing. It depends on uncontrolled model wording, so it is never
// installed by default.
type KeywordRule struct{}

func (KeywordRule) Name() string { return "keyword" }

func (KeywordRule) Apply(rec *Record, reply string) Outcome {
	var out Outcome

	for _, m := range itemPhrase.FindAllStringSubmatch(reply, -1) {
		item := strings.TrimSpace(m[1])
		if item == "" {
			continue
		}
		rec.Inventory = append(rec.Inventory, item)
		out.Items = append(out.Items, item)
	}

	if levelPhrase.MatchString(reply) {
		rec.Level++
		line := LevelUpLine(rec.Level)
		rec.History = append(rec.History, line)
		out.LeveledUp = true
		out.Lines = append(out.Lines, line)
	}

	return out
}

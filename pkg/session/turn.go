package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/vishan-khatavkar/echoes-game/pkg/prompts"
)

// PlayerPrefix marks the player's lines in history.
const PlayerPrefix = "You: "

// NarratorErrorLine is the synthetic history entry written when the narrator fails.
func NarratorErrorLine(err error) string {
	return "[System] The narrator is silent: " + err.Error()
}

// Narrator produces the story's next line.
type Narrator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TurnState is a step in a single turn.
type TurnState int

const (
	StateIdle TurnState = iota
	StateInputReceived
	StatePromptBuilt
	StateAwaitingNarrator
	StateCompleted
	StateFailed
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInputReceived:
		return "input_received"
	case StatePromptBuilt:
		return "prompt_built"
	case StateAwaitingNarrator:
		return "awaiting_narrator"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the turn has finished.
func (s TurnState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Turn is the result of one ExecuteTurn call.
type Turn struct {
	State        TurnState
	PlayerLine   string
	NarratorLine string
	// Extra holds synthetic lines appended after the narrated pair.
	Extra     []string
	LeveledUp bool
	Items     []string
	Prompt    prompts.Prompt
	Err       error
}

// Played reports whether the turn changed the record.
func (t Turn) Played() bool {
	return t.State.Terminal()
}

// Lines returns every line the turn appended, in order.
func (t Turn) Lines() []string {
	if !t.Played() {
		return nil
	}
	lines := []string{t.PlayerLine, t.NarratorLine}
	return append(lines, t.Extra...)
}

// ExecuteTurn advances rec by one player input. It never mutates rec.
//
// Blank input returns rec unchanged with an idle turn and no narrator call.
// A narrator failure still records the player's line, followed by an error
// line in place of the reply, and leaves level and inventory untouched.
func (e *Engine) ExecuteTurn(ctx context.Context, rec Record, input string) (Record, Turn) {
	turn := Turn{State: StateIdle}
	if strings.TrimSpace(input) == "" {
		return rec, turn
	}
	e.transition(&turn, StateInputReceived)

	// Stored history is JSON, which cannot carry invalid UTF-8.
	input = validUTF8(input)
	next := rec.Clone()
	turn.PlayerLine = PlayerPrefix + input

	prompt, err := prompts.New().
		WithPersona(e.story.Persona).
		WithLevel(next.Level).
		WithInventory(next.Inventory).
		WithObjectives(next.Objectives).
		WithHistory(next.History).
		WithPlayerInput(input).
		WithHistoryWindow(e.window).
		Build()
	if err != nil {
		return e.fail(next, turn, fmt.Errorf("failed to build prompt: %w", err))
	}
	turn.Prompt = prompt
	e.transition(&turn, StatePromptBuilt)

	e.transition(&turn, StateAwaitingNarrator)
	reply, err := e.narrator.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return e.fail(next, turn, err)
	}

	reply = validUTF8(reply)
	turn.NarratorLine = reply
	next.History = append(next.History, turn.PlayerLine, reply)

	var outcome Outcome
	for _, rule := range e.rules {
		o := rule.Apply(&next, reply)
		if o.LeveledUp || len(o.Items) > 0 {
			e.logger.Debug("Progression rule applied",
				"rule", rule.Name(),
				"username", next.Username,
				"level", next.Level,
				"items", o.Items)
		}
		outcome.merge(o)
	}
	turn.Extra = outcome.Lines
	turn.Items = outcome.Items
	turn.LeveledUp = outcome.LeveledUp

	e.transition(&turn, StateCompleted)
	return next, turn
}

func (e *Engine) fail(next Record, turn Turn, err error) (Record, Turn) {
	e.logger.Warn("Narrator failed, recording error line",
		"username", next.Username,
		"error", err)
	turn.Err = err
	turn.NarratorLine = validUTF8(NarratorErrorLine(err))
	next.History = append(next.History, turn.PlayerLine, turn.NarratorLine)
	e.transition(&turn, StateFailed)
	return next, turn
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

func (e *Engine) transition(turn *Turn, to TurnState) {
	turn.State = to
	if e.observer != nil {
		e.observer(to)
	}
}

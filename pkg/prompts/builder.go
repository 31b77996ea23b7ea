package prompts

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder constructs the narrator prompt using a fluent interface.
// It only reads the values it is given; callers keep ownership of their slices.
type Builder struct {
	persona       string
	level         int
	inventory     []string
	objectives    []string
	history       []string
	playerInput   string
	historyWindow int
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		level:         1,
		historyWindow: DefaultHistoryWindow,
	}
}

// WithPersona sets the system role text.
func (b *Builder) WithPersona(persona string) *Builder {
	b.persona = persona
	return b
}

// WithLevel sets the player's current level.
func (b *Builder) WithLevel(level int) *Builder {
	b.level = level
	return b
}

// WithInventory sets the items the player carries.
func (b *Builder) WithInventory(items []string) *Builder {
	b.inventory = items
	return b
}

// WithObjectives sets the narrative goals.
func (b *Builder) WithObjectives(objectives []string) *Builder {
	b.objectives = objectives
	return b
}

// WithHistory sets the full transcript. Only the trailing window is used.
func (b *Builder) WithHistory(history []string) *Builder {
	b.history = history
	return b
}

// WithPlayerInput sets the raw text the player submitted.
func (b *Builder) WithPlayerInput(input string) *Builder {
	b.playerInput = input
	return b
}

// WithHistoryWindow sets how many trailing history entries are included.
func (b *Builder) WithHistoryWindow(n int) *Builder {
	b.historyWindow = n
	return b
}

// Build returns the system and user prompts. The output depends only on the
// builder's inputs.
func (b *Builder) Build() (Prompt, error) {
	if strings.TrimSpace(b.persona) == "" {
		return Prompt{}, fmt.Errorf("persona is required")
	}
	if strings.TrimSpace(b.playerInput) == "" {
		return Prompt{}, fmt.Errorf("player input is required")
	}

	var sb strings.Builder
	sb.WriteString("Current level: " + strconv.Itoa(b.level) + "\n")
	sb.WriteString("Inventory: " + FormatList(b.inventory, EmptyInventory) + "\n")
	sb.WriteString("Objectives: " + FormatList(b.objectives, NoObjectives) + "\n")

	recent := Window(b.history, b.historyWindow)
	if len(recent) > 0 {
		sb.WriteString("\nRecent history:\n")
		sb.WriteString(strings.Join(recent, HistorySeparator))
		sb.WriteString("\n")
	}

	sb.WriteString("\nPlayer: " + b.playerInput)

	return Prompt{
		System: b.persona,
		User:   sb.String(),
	}, nil
}

package prompts

import "strings"

// DefaultHistoryWindow is how many trailing history entries are shown to the narrator.
const DefaultHistoryWindow = 4

// HistorySeparator joins history entries inside the user prompt.
const HistorySeparator = "\n"

// EmptyInventory is shown when the player carries nothing.
const EmptyInventory = "None"

// NoObjectives is shown when the story has no objectives.
const NoObjectives = "None"

// Prompt is the pair of strings sent to the narrator.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Window returns the trailing n entries of history. The returned slice is a copy.
func Window(history []string, n int) []string {
	if n <= 0 || len(history) == 0 {
		return []string{}
	}
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	out := make([]string, len(history)-start)
	copy(out, history[start:])
	return out
}

// FormatList joins items with ", " and substitutes fallback when empty.
func FormatList(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

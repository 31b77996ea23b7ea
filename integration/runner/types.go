package runner

import (
	"time"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string          `json:"name"`
	Seed  *session.Fields `json:"seed,omitempty"`  // Stored row written before the session starts
	Steps []TestStep      `json:"steps,omitempty"` // Used for regular tests
	Cases []string        `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single turn and its expected outcomes
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	UserPrompt   string       `json:"user_prompt"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Turn outcome
	State     *string  `json:"state,omitempty"`      // idle, completed, failed
	LeveledUp *bool    `json:"leveled_up,omitempty"` // Level rose this turn
	Extra     []string `json:"extra,omitempty"`      // Synthetic lines appended after the reply

	// Session after the turn
	Level         *int     `json:"level,omitempty"`
	Inventory     []string `json:"inventory,omitempty"` // Full inventory contents (order independent)
	HistoryLength *int     `json:"history_length,omitempty"`
	LastHistory   *string  `json:"last_history,omitempty"` // Final transcript entry

	// Response Analysis
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty"`
	ResponseMaxLength   *int     `json:"response_max_length,omitempty"`

	// Event stream; only checked when the runner listens for events
	Events []string `json:"events,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	Username string // Session used for this test
}

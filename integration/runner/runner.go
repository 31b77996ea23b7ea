package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
	"github.com/vishan-khatavkar/echoes-game/pkg/client"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Seeder writes a stored row directly, bypassing the API.
type Seeder func(ctx context.Context, username string, f session.Fields) error

// Runner executes integration tests against a running game API
type Runner struct {
	Client            *client.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode

	// Seed is required by suites that carry a seed row.
	Seed Seeder
	// Events turns on event stream expectations.
	Events bool
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		Client:            client.New(baseURL, nil),
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite plays a suite's steps as a fresh user
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results:  make([]TestResult, 0, len(suite.Steps)),
		Username: "it-" + uuid.NewString()[:8],
	}

	if suite.Seed != nil {
		if r.Seed == nil {
			result.Error = fmt.Errorf("suite %q needs a seed row but the runner cannot write to the store", suite.Name)
			result.Duration = time.Since(start)
			return result, result.Error
		}
		if err := r.Seed(ctx, result.Username, *suite.Seed); err != nil {
			result.Error = fmt.Errorf("failed to seed session: %w", err)
			result.Duration = time.Since(start)
			return result, result.Error
		}
	}

	if _, err := r.Client.StartSession(ctx, result.Username); err != nil {
		result.Error = fmt.Errorf("failed to start session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	var events *EventCollector
	if r.Events {
		var err error
		events, err = StartEventCollector(ctx, r.Client, result.Username)
		if err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result, result.Error
		}
		defer events.Close()
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, result.Username, step, events)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep plays one turn and checks its expectations
func (r *Runner) runStep(ctx context.Context, username string, step TestStep, events *EventCollector) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if events != nil {
		events.Take() // Drop anything left from earlier steps
	}

	resp, err := r.Client.PlayTurn(stepCtx, username, step.UserPrompt)
	if err != nil && !errors.Is(err, client.ErrUnsaved) {
		result.Error = fmt.Errorf("failed to play turn: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.ResponseText = resp.NarratorLine

	if err := checkExpectations(step.Expectations, resp); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	if events != nil && len(step.Expectations.Events) > 0 {
		if err := events.WaitFor(stepCtx, step.Expectations.Events); err != nil {
			result.Error = fmt.Errorf("expectation failed: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// checkExpectations validates the test expectations against a turn response
func checkExpectations(exp Expectations, resp *chat.TurnResponse) error {
	if exp.State != nil && resp.State != *exp.State {
		return fmt.Errorf("expected state %s, got %s", *exp.State, resp.State)
	}

	if exp.LeveledUp != nil && resp.LeveledUp != *exp.LeveledUp {
		return fmt.Errorf("expected leveled_up to be %t, got %t", *exp.LeveledUp, resp.LeveledUp)
	}

	if len(exp.Extra) > 0 && strings.Join(exp.Extra, "\n") != strings.Join(resp.Extra, "\n") {
		return fmt.Errorf("expected extra lines %q, got %q", exp.Extra, resp.Extra)
	}

	s := resp.Session
	if exp.Level != nil && s.Level != *exp.Level {
		return fmt.Errorf("expected level %d, got %d", *exp.Level, s.Level)
	}

	if exp.HistoryLength != nil && s.HistoryLength != *exp.HistoryLength {
		return fmt.Errorf("expected history_length %d, got %d", *exp.HistoryLength, s.HistoryLength)
	}

	if exp.LastHistory != nil {
		if len(s.History) == 0 {
			return fmt.Errorf("expected last history entry %q, got empty history", *exp.LastHistory)
		}
		if last := s.History[len(s.History)-1]; last != *exp.LastHistory {
			return fmt.Errorf("expected last history entry %q, got %q", *exp.LastHistory, last)
		}
	}

	// Full inventory check (order independent)
	if len(exp.Inventory) > 0 {
		expected := make(map[string]bool)
		for _, item := range exp.Inventory {
			expected[item] = true
		}
		actual := make(map[string]bool)
		for _, item := range s.Inventory {
			actual[item] = true
		}
		for item := range expected {
			if !actual[item] {
				return fmt.Errorf("expected inventory to contain '%s', but it's missing. Actual inventory: %v", item, s.Inventory)
			}
		}
		for item := range actual {
			if !expected[item] {
				return fmt.Errorf("inventory contains unexpected item '%s'. Expected inventory: %v, Actual: %v", item, exp.Inventory, s.Inventory)
			}
		}
	}

	responseText := resp.NarratorLine
	if len(exp.ResponseContains) > 0 {
		lowerResponse := strings.ToLower(responseText)
		for _, expectedText := range exp.ResponseContains {
			if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
				return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
			}
		}
	}

	if len(exp.ResponseNotContains) > 0 {
		lowerResponse := strings.ToLower(responseText)
		for _, unexpectedText := range exp.ResponseNotContains {
			if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
				return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
			}
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}

	if exp.ResponseMinLength != nil && len(responseText) < *exp.ResponseMinLength {
		return fmt.Errorf("expected response length >= %d, got %d", *exp.ResponseMinLength, len(responseText))
	}
	if exp.ResponseMaxLength != nil && len(responseText) > *exp.ResponseMaxLength {
		return fmt.Errorf("expected response length <= %d, got %d", *exp.ResponseMaxLength, len(responseText))
	}

	return nil
}

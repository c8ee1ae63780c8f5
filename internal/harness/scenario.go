package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wsync/internal/engine"
	"github.com/roach88/wsync/internal/translog"
)

// Scenario defines one replay/broadcast conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StartCursor positions the replay cursor before the first step.
	// Nil means -1, a fresh process.
	StartCursor *int64 `yaml:"start_cursor,omitempty"`

	// LockMode is "block" (default) or "skip".
	LockMode string `yaml:"lock_mode,omitempty"`

	// FailOps makes the named template ops return status error with the
	// given message.
	FailOps map[string]string `yaml:"fail_ops,omitempty"`

	// Entries is the log content before the first step.
	Entries []Entry `yaml:"entries"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Entry is a log entry as written in a scenario.
type Entry struct {
	Seq     int64          `yaml:"seq"`
	Kind    string         `yaml:"kind"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// LogEntry converts e.
func (e Entry) LogEntry() translog.LogEntry {
	return translog.LogEntry{Seq: e.Seq, Kind: translog.Kind(e.Kind), Payload: translog.Payload(e.Payload)}
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Replay  bool   `yaml:"replay,omitempty"`
	Message string `yaml:"message,omitempty"`
	Append  *Entry `yaml:"append,omitempty"`
}

// Assertion validates the trace or final cursor.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the template op (call_count, call_contains).
	Op string `yaml:"op,omitempty"`

	// Args are the exact call arguments (call_contains).
	Args []string `yaml:"args,omitempty"`

	// Ops is the expected first-call order (call_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of calls (call_count).
	Count int `yaml:"count,omitempty"`

	// Seq is the expected final cursor (cursor).
	Seq int64 `yaml:"seq,omitempty"`

	// Step indexes Steps (step_error).
	Step int `yaml:"step,omitempty"`

	// Code is the expected error code, empty for success (step_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertCallCount    = "call_count"
	AssertCallContains = "call_contains"
	AssertCallOrder    = "call_order"
	AssertCursor       = "cursor"
	AssertStepError    = "step_error"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := engine.ParseLockMode(s.LockMode); err != nil {
		return err
	}

	for i, e := range s.Entries {
		if e.Kind == "" {
			return fmt.Errorf("entries[%d]: kind is required", i)
		}
	}

	for i, step := range s.Steps {
		set := 0
		if step.Replay {
			set++
		}
		if step.Message != "" {
			set++
		}
		if step.Append != nil {
			set++
			if step.Append.Kind == "" {
				return fmt.Errorf("steps[%d].append: kind is required", i)
			}
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of replay, message, append is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion, steps int) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCallCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for call_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for call_count", index)
		}
	case AssertCallContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for call_contains", index)
		}
	case AssertCallOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for call_order", index)
		}
	case AssertCursor:
	case AssertStepError:
		if a.Step < 0 || a.Step >= steps {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, a.Step)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

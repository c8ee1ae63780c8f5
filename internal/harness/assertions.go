package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describe(event))
	}
	return buf.String()
}

func describe(e TraceEvent) string {
	switch e.Type {
	case EventCall:
		return fmt.Sprintf("step %d call %s(%s)", e.Step, e.Op, strings.Join(e.Args, ", "))
	case EventAppend:
		return fmt.Sprintf("step %d append seq=%d kind=%s", e.Step, e.Seq, e.Kind)
	case EventMessage:
		return fmt.Sprintf("step %d message %s cursor=%d error=%q", e.Step, e.Raw, e.Cursor, e.Error)
	default:
		return fmt.Sprintf("step %d %s applied=%d cursor=%d error=%q", e.Step, e.Type, e.Applied, e.Cursor, e.Error)
	}
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertCallCount:
		return assertCallCount(result, a)
	case AssertCallContains:
		return assertCallContains(result, a)
	case AssertCallOrder:
		return assertCallOrder(result, a)
	case AssertCursor:
		if result.Cursor != a.Seq {
			return &AssertionError{
				Type:     AssertCursor,
				Expected: fmt.Sprintf("cursor %d", a.Seq),
				Actual:   fmt.Sprintf("cursor %d", result.Cursor),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertStepError:
		return assertStepError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCallCount(result *Result, a Assertion) error {
	n := 0
	for _, c := range result.Calls() {
		if c.Op == a.Op {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%s called %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("called %d times", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertCallContains(result *Result, a Assertion) error {
	want := a.Args
	if want == nil {
		want = []string{}
	}
	for _, c := range result.Calls() {
		got := c.Args
		if got == nil {
			got = []string{}
		}
		if c.Op == a.Op && slices.Equal(got, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCallContains,
		Expected: fmt.Sprintf("%s(%s)", a.Op, strings.Join(a.Args, ", ")),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertCallOrder checks that each op's first call comes after the
// previous op's first call. Other calls may be interleaved.
func assertCallOrder(result *Result, a Assertion) error {
	first := make(map[string]int)
	for i, c := range result.Calls() {
		if _, ok := first[c.Op]; !ok {
			first[c.Op] = i
		}
	}

	prev := -1
	for _, op := range a.Ops {
		pos, ok := first[op]
		if !ok {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("order %v", a.Ops),
				Actual:   fmt.Sprintf("%s never called", op),
				Trace:    result.Trace,
			}
		}
		if pos < prev {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("order %v", a.Ops),
				Actual:   fmt.Sprintf("%s called before its predecessor", op),
				Trace:    result.Trace,
			}
		}
		prev = pos
	}
	return nil
}

func assertStepError(result *Result, a Assertion) error {
	if a.Step >= len(result.StepErrors) {
		return fmt.Errorf("step %d did not run", a.Step)
	}
	got := result.StepErrors[a.Step]
	if got != a.Code {
		return &AssertionError{
			Type:     AssertStepError,
			Expected: fmt.Sprintf("step %d error %q", a.Step, a.Code),
			Actual:   fmt.Sprintf("error %q", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

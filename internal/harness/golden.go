package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wsync/internal/translog"
)

// TraceSnapshot is the golden-file form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	Cursor       int64
	Trace        []TraceEvent
}

// toCanonicalMap converts s into plain maps for canonical JSON.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, e := range s.Trace {
		m := map[string]any{
			"step": int64(e.Step),
			"type": e.Type,
		}
		switch e.Type {
		case EventReplay:
			m["applied"] = int64(e.Applied)
			m["cursor"] = e.Cursor
		case EventMessage:
			m["raw"] = e.Raw
			m["cursor"] = e.Cursor
		case EventAppend:
			m["seq"] = e.Seq
			m["kind"] = e.Kind
		case EventCall:
			m["op"] = e.Op
			args := e.Args
			if args == nil {
				args = []string{}
			}
			m["args"] = args
		}
		if e.Error != "" {
			m["error"] = e.Error
		}
		trace[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"cursor":        s.Cursor,
		"trace":         trace,
	}
}

// Canonical returns the snapshot as canonical JSON.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	return translog.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Cursor:       result.Cursor,
		Trace:        result.Trace,
	}
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/wsync/internal/broadcast"
	"github.com/roach88/wsync/internal/engine"
	"github.com/roach88/wsync/internal/lock"
	"github.com/roach88/wsync/internal/testutil"
	"github.com/roach88/wsync/internal/translog"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	log        *testutil.MemoryLog
	manager    *testutil.RecordingManager
	processor  *engine.Processor
	dispatcher *broadcast.Dispatcher
	seen       int
}

// New builds a harness for scenario: an in-memory log holding its entries,
// a recording template manager, a processor and a dispatcher.
func New(scenario *Scenario) (*Harness, error) {
	mode, err := engine.ParseLockMode(scenario.LockMode)
	if err != nil {
		return nil, err
	}

	log := testutil.NewMemoryLog()
	for _, e := range scenario.Entries {
		log.Put(e.LogEntry())
	}

	manager := testutil.NewRecordingManager()
	for op, msg := range scenario.FailOps {
		manager.Fail[op] = msg
	}

	cursor := translog.NewCursor()
	if scenario.StartCursor != nil {
		cursor = translog.NewCursorAt(*scenario.StartCursor)
	}

	processor := engine.NewProcessor(log, lock.New(nil), engine.NewLogRegistry(manager),
		engine.WithCursor(cursor),
		engine.WithLockMode(mode),
	)
	dispatcher := broadcast.NewDispatcher(broadcast.NewRegistry(processor, manager), processor)

	return &Harness{
		log:        log,
		manager:    manager,
		processor:  processor,
		dispatcher: dispatcher,
	}, nil
}

// Run executes scenario and evaluates its assertions.
//
// Step failures are recorded in the trace, not returned: a consistency
// violation is a result to assert on. The error return is for scenarios
// that cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	h, err := New(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build harness: %w", err)
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		h.runStep(ctx, i, step, result)
	}
	result.Cursor = h.processor.LastSeq()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) {
	var event TraceEvent
	switch {
	case step.Replay:
		n, err := h.processor.ProcessLog(ctx)
		event = TraceEvent{Step: i, Type: EventReplay, Applied: n, Error: errorCode(err)}
	case step.Message != "":
		err := h.dispatcher.HandleMessage(ctx, []byte(step.Message))
		event = TraceEvent{Step: i, Type: EventMessage, Raw: step.Message, Error: errorCode(err)}
	case step.Append != nil:
		e := step.Append.LogEntry()
		h.log.Put(e)
		event = TraceEvent{Step: i, Type: EventAppend, Seq: e.Seq, Kind: string(e.Kind)}
	}
	event.Cursor = h.processor.LastSeq()

	result.Trace = append(result.Trace, event)
	result.StepErrors = append(result.StepErrors, event.Error)

	calls := h.manager.Calls()
	for _, c := range calls[h.seen:] {
		result.Trace = append(result.Trace, TraceEvent{
			Step:   i,
			Type:   EventCall,
			Cursor: event.Cursor,
			Op:     c.Op,
			Args:   c.Args,
		})
	}
	h.seen = len(calls)
}

// errorCode reduces err to a stable string for traces: the ReplayError
// code when there is one, else the message.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var re *engine.ReplayError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return err.Error()
}

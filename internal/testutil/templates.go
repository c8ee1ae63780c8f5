package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/wsync/internal/templates"
)

// TemplateCall records one call to RecordingManager.
type TemplateCall struct {
	Op   string
	Args []string
}

func (c TemplateCall) String() string {
	return fmt.Sprintf("%s(%s)", c.Op, strings.Join(c.Args, ", "))
}

// RecordingManager is a templates.Manager that records every call.
//
// Results default to status ok. Set Fail[op] to make op return an error
// result; set Block to make every call wait until the channel closes.
//
// Thread-safety: safe for concurrent use.
type RecordingManager struct {
	mu    sync.Mutex
	calls []TemplateCall

	Fail  map[string]string
	Block chan struct{}
}

// NewRecordingManager creates a manager that succeeds on every call.
func NewRecordingManager() *RecordingManager {
	return &RecordingManager{Fail: map[string]string{}}
}

// Calls returns a copy of the recorded calls.
func (m *RecordingManager) Calls() []TemplateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TemplateCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls of one operation.
func (m *RecordingManager) CallsTo(op string) []TemplateCall {
	var out []TemplateCall
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *RecordingManager) record(ctx context.Context, op string, args ...string) templates.Result {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return templates.Errorf("%s: %v", op, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, TemplateCall{Op: op, Args: args})
	if msg, ok := m.Fail[op]; ok {
		return templates.Errorf("%s", msg)
	}
	return templates.OK(op + " ok")
}

func (m *RecordingManager) AddTemplate(ctx context.Context, key, driver, command, templateText string) templates.Result {
	return m.record(ctx, "add_template", key, driver, command, templateText)
}

func (m *RecordingManager) RemoveTemplate(ctx context.Context, template string) templates.Result {
	return m.record(ctx, "remove_template", template)
}

func (m *RecordingManager) PushTemplate(ctx context.Context, driver, command, templateText string) templates.Result {
	return m.record(ctx, "push_template", driver, command, templateText)
}

func (m *RecordingManager) ListTemplates(ctx context.Context) templates.Result {
	return m.record(ctx, "list_templates")
}

package harness

// Trace event types.
const (
	EventReplay  = "replay"
	EventMessage = "message"
	EventAppend  = "append"
	EventCall    = "call"
)

// TraceEvent is one line of a scenario trace: a step outcome, or a
// template call made during the preceding step.
type TraceEvent struct {
	Step int    `json:"step"`
	Type string `json:"type"`

	// Replay and message steps.
	Applied int    `json:"applied,omitempty"`
	Cursor  int64  `json:"cursor"`
	Raw     string `json:"raw,omitempty"`
	Error   string `json:"error,omitempty"`

	// Append steps.
	Seq  int64  `json:"seq,omitempty"`
	Kind string `json:"kind,omitempty"`

	// Calls.
	Op   string   `json:"op,omitempty"`
	Args []string `json:"args,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Cursor is the replay cursor after the last step.
	Cursor int64 `json:"cursor"`

	// StepErrors holds each step's error code, "" on success.
	StepErrors []string `json:"step_errors"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Errors:     []string{},
		StepErrors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Calls returns the call events in trace order.
func (r *Result) Calls() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventCall {
			out = append(out, e)
		}
	}
	return out
}

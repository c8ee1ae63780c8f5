// Package templates is the template-management collaborator workers call
// when replaying the transaction log.
//
// Every operation returns a Result rather than an error: a failed template
// operation is a reportable outcome, logged by the caller, and never stops
// replay.
package templates

import (
	"context"
	"fmt"
)

// Status is the outcome of a template operation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the uniform {status, data} reply of every Manager call.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data"`
}

// OK builds a successful result.
func OK(data any) Result {
	return Result{Status: StatusOK, Data: data}
}

// Errorf builds an error result with a formatted message as data.
func Errorf(format string, args ...any) Result {
	return Result{Status: StatusError, Data: fmt.Sprintf(format, args...)}
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Status == StatusError
}

// Manager adds, removes, pushes and lists command-parsing templates.
//
// Implementations may ignore ctx for short local I/O (Dir does). Replay
// checks for cancellation between entries, not inside a call.
type Manager interface {
	// AddTemplate installs a template for (driver, command). When
	// templateText is empty the template is fetched by key.
	AddTemplate(ctx context.Context, key, driver, command, templateText string) Result

	// RemoveTemplate deletes a template by file name.
	RemoveTemplate(ctx context.Context, template string) Result

	// PushTemplate writes templateText for (driver, command), replacing any
	// existing template.
	PushTemplate(ctx context.Context, driver, command, templateText string) Result

	// ListTemplates returns the installed templates grouped by driver.
	ListTemplates(ctx context.Context) Result
}

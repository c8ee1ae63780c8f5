package engine

import (
	"errors"
	"fmt"
)

// ReplayError represents a failure detected while replaying one log entry.
//
// Replay errors include:
//   - Consistency violation: the next entry's seq is not cursor+1
//   - Unhandled kind: no handler registered for the entry kind
//   - Invalid payload: the payload does not match the kind's schema
//
// All three abort the current batch and leave the cursor at the last entry
// that was applied.
type ReplayError struct {
	// Code identifies the error category.
	Code ReplayErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the sequence number of the offending entry, -1 if not applicable.
	Seq int64

	// Kind is the offending entry or message kind.
	Kind string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ReplayErrorCode categorizes replay errors.
type ReplayErrorCode string

const (
	// ErrCodeConsistencyViolation indicates a gap or reorder in the log.
	ErrCodeConsistencyViolation ReplayErrorCode = "CONSISTENCY_VIOLATION"

	// ErrCodeUnhandledKind indicates a kind with no registered handler.
	ErrCodeUnhandledKind ReplayErrorCode = "UNHANDLED_KIND"

	// ErrCodeInvalidPayload indicates a payload rejected by the kind's schema.
	ErrCodeInvalidPayload ReplayErrorCode = "INVALID_PAYLOAD"
)

// Error implements the error interface.
func (e *ReplayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Seq >= 0 && e.Kind != "":
		msg = fmt.Sprintf("%s (seq=%d, kind=%s)", msg, e.Seq, e.Kind)
	case e.Kind != "":
		msg = fmt.Sprintf("%s (kind=%s)", msg, e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// IsConsistencyViolation returns true if err is a consistency violation.
// Uses errors.As to handle wrapped errors.
func IsConsistencyViolation(err error) bool {
	return hasCode(err, ErrCodeConsistencyViolation)
}

// IsUnhandledKind returns true if err reports a kind with no handler.
func IsUnhandledKind(err error) bool {
	return hasCode(err, ErrCodeUnhandledKind)
}

// IsInvalidPayload returns true if err reports a payload schema mismatch.
func IsInvalidPayload(err error) bool {
	return hasCode(err, ErrCodeInvalidPayload)
}

func hasCode(err error, code ReplayErrorCode) bool {
	var re *ReplayError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewConsistencyError reports that entry got arrived while the cursor was at last.
func NewConsistencyError(last, got int64, kind string) *ReplayError {
	return &ReplayError{
		Code:    ErrCodeConsistencyViolation,
		Message: fmt.Sprintf("can't process %d after %d", got, last),
		Seq:     got,
		Kind:    kind,
		Details: map[string]string{
			"cursor":   fmt.Sprintf("%d", last),
			"expected": fmt.Sprintf("%d", last+1),
		},
	}
}

// NewUnhandledKindError reports a kind with no registered handler.
func NewUnhandledKindError(kind string) *ReplayError {
	return &ReplayError{
		Code:    ErrCodeUnhandledKind,
		Message: "no handler registered",
		Seq:     -1,
		Kind:    kind,
	}
}

// NewInvalidPayloadError reports a payload the kind's schema rejected.
func NewInvalidPayloadError(seq int64, kind string, cause error) *ReplayError {
	return &ReplayError{
		Code:    ErrCodeInvalidPayload,
		Message: "payload does not match schema",
		Seq:     seq,
		Kind:    kind,
		Err:     cause,
	}
}

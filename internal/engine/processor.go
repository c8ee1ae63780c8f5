package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/wsync/internal/translog"
)

// EntrySource reads the shared log. Implemented by store.Store.
type EntrySource interface {
	// FetchEntries returns entries with seq > afterSeq in ascending order.
	FetchEntries(ctx context.Context, afterSeq int64) ([]translog.LogEntry, error)
}

// Locker is the replay lock. Implemented by lock.ReplayLock.
type Locker interface {
	Lock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// LockMode selects what ProcessLog does when another replay is running.
type LockMode int

const (
	// LockModeBlock waits for the running replay to finish, then replays
	// whatever is left. No trigger is ever lost.
	LockModeBlock LockMode = iota

	// LockModeSkip returns 0 immediately. The worker may stay behind until
	// the next trigger, since entries appended during the running replay
	// are not guaranteed to be in its snapshot.
	LockModeSkip
)

// ParseLockMode accepts "block" or "skip".
func ParseLockMode(s string) (LockMode, error) {
	switch s {
	case "block", "":
		return LockModeBlock, nil
	case "skip":
		return LockModeSkip, nil
	default:
		return 0, fmt.Errorf("unknown lock mode %q: must be block or skip", s)
	}
}

func (m LockMode) String() string {
	if m == LockModeSkip {
		return "skip"
	}
	return "block"
}

// Processor replays the shared transaction log into this process.
//
// INVARIANTS:
//   - entries are applied strictly in seq order, each exactly once per process
//   - the cursor only moves after a handler returns nil
//   - at most one ProcessLog runs at a time across all processes sharing the lock
type Processor struct {
	source    EntrySource
	lock      Locker
	registry  *LogRegistry
	validator *Validator
	cursor    *translog.Cursor
	mode      LockMode
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLockMode sets the blocking behavior of ProcessLog.
func WithLockMode(mode LockMode) ProcessorOption {
	return func(p *Processor) { p.mode = mode }
}

// WithCursor replaces the cursor. Used by tests to start mid-log.
func WithCursor(c *translog.Cursor) ProcessorOption {
	return func(p *Processor) { p.cursor = c }
}

// WithValidator replaces the payload validator. A nil validator disables
// schema checks; Decode still rejects unknown keys.
func WithValidator(v *Validator) ProcessorOption {
	return func(p *Processor) { p.validator = v }
}

// NewProcessor creates a Processor with a fresh cursor at -1.
func NewProcessor(source EntrySource, lock Locker, registry *LogRegistry, opts ...ProcessorOption) *Processor {
	p := &Processor{
		source:    source,
		lock:      lock,
		registry:  registry,
		validator: MustValidator(),
		cursor:    translog.NewCursor(),
		mode:      LockModeBlock,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LastSeq returns the cursor position.
func (p *Processor) LastSeq() int64 {
	return p.cursor.Last()
}

// ProcessLog applies every entry appended since the last call and returns
// how many were applied.
//
// A consistency violation, unhandled kind, invalid payload or handler error
// stops the batch, as does ctx ending between two entries. Entries before the failing one stay applied and the
// cursor points at the last of them, so the next call reports the same
// failure until an operator intervenes.
func (p *Processor) ProcessLog(ctx context.Context) (n int, err error) {
	slog.Info("processing transaction log", "cursor", p.cursor.Last())

	switch p.mode {
	case LockModeSkip:
		ok, err := p.lock.TryLock(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			slog.Info("transaction log replay already running, skipping")
			return 0, nil
		}
	default:
		if err := p.lock.Lock(ctx); err != nil {
			return 0, err
		}
	}
	defer func() {
		if uerr := p.lock.Unlock(ctx); uerr != nil {
			slog.Error("replay unlock failed", "error", uerr)
			if err == nil {
				err = uerr
			}
		}
	}()
	slog.Debug("got lock for transaction log processing")

	entries, err := p.source.FetchEntries(ctx, p.cursor.Last())
	if err != nil {
		return 0, fmt.Errorf("process log: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			slog.Info("transaction log replay interrupted", "entries", n, "cursor", p.cursor.Last(), "error", err)
			return n, err
		}
		if err := p.processEntry(ctx, entry); err != nil {
			return n, err
		}
		n++
	}

	slog.Info("transaction log processed", "entries", n, "cursor", p.cursor.Last())
	return n, nil
}

func (p *Processor) processEntry(ctx context.Context, entry translog.LogEntry) error {
	if entry.Seq != p.cursor.Expect() {
		return NewConsistencyError(p.cursor.Last(), entry.Seq, string(entry.Kind))
	}

	handler, err := p.registry.Lookup(entry.Kind)
	if err != nil {
		if re, ok := err.(*ReplayError); ok {
			re.Seq = entry.Seq
		}
		return err
	}

	payload := entry.Payload
	if entry.Kind == translog.KindDelete {
		payload = translog.NormalizeDeletePayload(payload)
	}
	if p.validator != nil {
		if err := p.validator.Validate(entry.Kind, payload); err != nil {
			return NewInvalidPayloadError(entry.Seq, string(entry.Kind), err)
		}
	}

	args, err := translog.Decode(entry)
	if err != nil {
		return NewInvalidPayloadError(entry.Seq, string(entry.Kind), err)
	}

	slog.Debug("applying log entry", "seq", entry.Seq, "kind", entry.Kind)
	if err := handler(ctx, args); err != nil {
		return fmt.Errorf("entry %d (%s): %w", entry.Seq, entry.Kind, err)
	}

	p.cursor.Advance(entry.Seq)
	return nil
}

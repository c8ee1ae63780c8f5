package translog

import "sync/atomic"

// Uninitialized is the cursor value before any entry has been applied.
const Uninitialized int64 = -1

// Cursor is a worker's in-memory record of the last applied sequence number.
//
// It is never persisted: a restarted process starts at Uninitialized and
// replays the whole log. Reads are safe from any goroutine; Advance is called
// only by the replay engine while it holds the replay lock.
type Cursor struct {
	last atomic.Int64
}

// NewCursor returns a cursor at Uninitialized.
func NewCursor() *Cursor {
	return NewCursorAt(Uninitialized)
}

// NewCursorAt returns a cursor positioned after seq.
func NewCursorAt(seq int64) *Cursor {
	c := &Cursor{}
	c.last.Store(seq)
	return c
}

// Last returns the sequence number of the last applied entry.
func (c *Cursor) Last() int64 {
	return c.last.Load()
}

// Initialized reports whether at least one entry has been applied.
func (c *Cursor) Initialized() bool {
	return c.Last() != Uninitialized
}

// Expect returns the only sequence number the next entry may carry.
func (c *Cursor) Expect() int64 {
	return c.Last() + 1
}

// Advance records seq as applied.
func (c *Cursor) Advance(seq int64) {
	c.last.Store(seq)
}

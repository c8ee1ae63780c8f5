package testutil

import (
	"context"
	"sync"

	"github.com/roach88/wsync/internal/translog"
)

// MemoryLog is an in-memory stand-in for the shared log.
//
// Unlike store.Store it does not assign sequence numbers: Put stores
// entries exactly as given, so tests can build logs with gaps or
// duplicates.
//
// Thread-safety: safe for concurrent use.
type MemoryLog struct {
	mu      sync.Mutex
	entries []translog.LogEntry
	fetches int
}

// NewMemoryLog creates a log holding entries in the given order.
func NewMemoryLog(entries ...translog.LogEntry) *MemoryLog {
	l := &MemoryLog{}
	l.Put(entries...)
	return l
}

// Put appends entries verbatim.
func (l *MemoryLog) Put(entries ...translog.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// Append adds an entry with the next sequence number.
func (l *MemoryLog) Append(kind translog.Kind, payload translog.Payload) translog.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq := int64(0)
	if n := len(l.entries); n > 0 {
		seq = l.entries[n-1].Seq + 1
	}
	e := translog.LogEntry{Seq: seq, Kind: kind, Payload: payload}
	l.entries = append(l.entries, e)
	return e
}

// FetchEntries returns stored entries with Seq > afterSeq, in stored order.
func (l *MemoryLog) FetchEntries(ctx context.Context, afterSeq int64) ([]translog.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetches++
	out := []translog.LogEntry{}
	for _, e := range l.entries {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

// Fetches returns how many times FetchEntries was called.
func (l *MemoryLog) Fetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches
}

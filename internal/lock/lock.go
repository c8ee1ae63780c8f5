// Package lock provides the replay lock shared by worker processes.
//
// A ReplayLock is two locks taken in order:
//
//  1. a process-local semaphore, so goroutines in one process serialize
//     without touching the backend
//  2. a lease row in the shared store, so separate OS processes serialize
//
// The lease has a bounded TTL. A holder that crashes mid-replay blocks the
// others for at most one TTL.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultName is the lease name used for log replay.
const DefaultName = "transaction_log_replay"

const (
	// DefaultTTL bounds how long a crashed holder can block other workers.
	DefaultTTL = 30 * time.Second

	// DefaultPollInterval is the wait between lease attempts in Lock.
	DefaultPollInterval = 50 * time.Millisecond
)

// ErrNotHeld is returned by Unlock when the lock is not held.
var ErrNotHeld = errors.New("replay lock not held")

// LeaseStore is the backend side of the lock. Implemented by store.Store.
type LeaseStore interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) (bool, error)
}

// ReplayLock serializes log replay within a process and across processes.
type ReplayLock struct {
	sem   chan struct{}
	store LeaseStore
	name  string
	owner string
	ttl   time.Duration
	poll  time.Duration
	now   func() time.Time
}

// Option configures a ReplayLock.
type Option func(*ReplayLock)

// WithTTL sets the lease duration.
func WithTTL(ttl time.Duration) Option {
	return func(l *ReplayLock) { l.ttl = ttl }
}

// WithPollInterval sets the wait between lease attempts.
func WithPollInterval(d time.Duration) Option {
	return func(l *ReplayLock) { l.poll = d }
}

// WithName sets the lease name.
func WithName(name string) Option {
	return func(l *ReplayLock) { l.name = name }
}

// WithOwner sets the owner id recorded in the lease row.
func WithOwner(owner string) Option {
	return func(l *ReplayLock) { l.owner = owner }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *ReplayLock) { l.now = now }
}

// New creates a replay lock backed by store.
// A nil store gives a process-local lock only.
func New(store LeaseStore, opts ...Option) *ReplayLock {
	l := &ReplayLock{
		sem:   make(chan struct{}, 1),
		store: store,
		name:  DefaultName,
		owner: uuid.Must(uuid.NewV7()).String(),
		ttl:   DefaultTTL,
		poll:  DefaultPollInterval,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Owner returns the id this lock writes into the lease row.
func (l *ReplayLock) Owner() string {
	return l.owner
}

// Lock blocks until the lock is held or ctx is done.
func (l *ReplayLock) Lock(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if l.store == nil {
		return nil
	}

	for {
		ok, err := l.store.AcquireLease(ctx, l.name, l.owner, l.ttl, l.now())
		if err != nil {
			<-l.sem
			return fmt.Errorf("replay lock: %w", err)
		}
		if ok {
			return nil
		}

		slog.Debug("replay lease held by another process, waiting",
			"lease", l.name,
			"owner", l.owner,
		)

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			<-l.sem
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryLock makes one attempt to take the lock without waiting.
func (l *ReplayLock) TryLock(ctx context.Context) (bool, error) {
	select {
	case l.sem <- struct{}{}:
	default:
		return false, nil
	}

	if l.store == nil {
		return true, nil
	}

	ok, err := l.store.AcquireLease(ctx, l.name, l.owner, l.ttl, l.now())
	if err != nil {
		<-l.sem
		return false, fmt.Errorf("replay lock: %w", err)
	}
	if !ok {
		<-l.sem
		return false, nil
	}
	return true, nil
}

// Unlock releases the lease and then the local semaphore.
// The lease goes first: goroutines in this process share the owner id, so
// the next local holder must not renew a row that is about to be deleted.
// The semaphore is released even when the backend call fails; the lease
// then simply expires.
func (l *ReplayLock) Unlock(ctx context.Context) error {
	if len(l.sem) == 0 {
		return ErrNotHeld
	}
	defer func() { <-l.sem }()

	if l.store == nil {
		return nil
	}

	released, err := l.store.ReleaseLease(context.WithoutCancel(ctx), l.name, l.owner)
	if err != nil {
		return fmt.Errorf("replay unlock: %w", err)
	}
	if !released {
		slog.Warn("replay lease expired before release",
			"lease", l.name,
			"owner", l.owner,
			"ttl", l.ttl,
		)
	}
	return nil
}

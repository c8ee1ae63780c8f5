// Package worker starts the broadcast listener of a worker process.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/wsync/internal/broadcast"
)

// Listener is the run loop started by Start. Implemented by
// broadcast.Dispatcher.
type Listener interface {
	Listen(ctx context.Context, sub broadcast.Subscriber, channel string) error
}

// Handle tracks a listener started by Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Start runs the listener on its own goroutine and returns at once.
//
// The listener performs its catch-up replay before subscribing. It runs
// until ctx is cancelled, Stop is called, or it fails; there is no restart.
func Start(ctx context.Context, l Listener, sub broadcast.Subscriber, channel string) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()

		err := l.Listen(ctx, sub, channel)
		if err != nil {
			slog.Error("broadcast listener exited", "channel", channel, "error", err)
		}
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()

	slog.Info("broadcast listener started", "channel", channel)
	return h
}

// Done is closed when the listener has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the listener's error once Done is closed, nil before.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop cancels the listener and waits for it to return.
func (h *Handle) Stop() error {
	h.cancel()
	<-h.done
	return h.Err()
}

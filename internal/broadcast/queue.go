package broadcast

import "sync"

// payloadQueue is an unbounded FIFO of raw payloads for one subscription.
//
// Publishers never block on a slow subscriber. The signal channel has a
// buffer of 1 and coalesces wake-ups; Next re-checks the queue after every
// wake-up.
type payloadQueue struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
	signal   chan struct{}
}

func newPayloadQueue() *payloadQueue {
	return &payloadQueue{signal: make(chan struct{}, 1)}
}

// push appends raw. Returns false if the queue is closed.
func (q *payloadQueue) push(raw []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.payloads = append(q.payloads, raw)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the front payload. done is true once the queue is closed and
// drained.
func (q *payloadQueue) pop() (raw []byte, ok, done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.payloads) == 0 {
		return nil, false, q.closed
	}
	raw = q.payloads[0]
	q.payloads[0] = nil
	q.payloads = q.payloads[1:]
	if len(q.payloads) == 0 {
		q.payloads = nil
	}
	return raw, true, false
}

func (q *payloadQueue) wait() <-chan struct{} {
	return q.signal
}

// close wakes all waiters. Payloads already queued can still be popped.
func (q *payloadQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

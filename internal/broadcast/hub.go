package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrHubClosed is returned by Subscribe and Publish after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

// Hub is an in-process broadcast channel implementing both Subscriber and
// Publisher. Every subscription of a channel receives every payload
// published after it subscribed, in publish order.
//
// Thread-safety: safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*hubSubscription]struct{}
	closed bool

	// FailSubscribe, when set, is returned by Subscribe.
	FailSubscribe error
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSubscription]struct{})}
}

func (h *Hub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.FailSubscribe != nil {
		return nil, h.FailSubscribe
	}

	s := &hubSubscription{hub: h, channel: channel, q: newPayloadQueue()}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*hubSubscription]struct{})
	}
	h.subs[channel][s] = struct{}{}
	return s, nil
}

func (h *Hub) Publish(ctx context.Context, channel string, raw []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	for s := range h.subs[channel] {
		s.q.push(append([]byte(nil), raw...))
	}
	return nil
}

// Subscribers returns the number of open subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

// Close ends every subscription. Queued payloads are still delivered.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for _, set := range h.subs {
		for s := range set {
			s.q.close()
		}
	}
	h.subs = nil
	return nil
}

func (h *Hub) remove(s *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subs[s.channel]; set != nil {
		delete(set, s)
	}
}

type hubSubscription struct {
	hub     *Hub
	channel string
	q       *payloadQueue
}

func (s *hubSubscription) Next(ctx context.Context) ([]byte, error) {
	for {
		raw, ok, done := s.q.pop()
		if ok {
			return raw, nil
		}
		if done {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.q.wait():
		}
	}
}

func (s *hubSubscription) Close() error {
	s.hub.remove(s)
	s.q.close()
	return nil
}

package broadcast

import (
	"context"
	"errors"
)

// ErrSubscriptionClosed is returned by Subscription.Next once the stream
// has ended.
var ErrSubscriptionClosed = errors.New("broadcast subscription closed")

// Subscriber opens subscriptions on the broadcast channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a stream of raw payloads from one channel.
// Payloads may include transport control frames that do not decode.
type Subscription interface {
	// Next blocks until a payload arrives, ctx is done or the stream ends.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Publisher sends raw payloads to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, raw []byte) error
}

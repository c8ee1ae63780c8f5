package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// maxLoggedPayload bounds how much of an undecodable payload is logged.
const maxLoggedPayload = 256

// Dispatcher decodes broadcast payloads and routes them to handlers.
type Dispatcher struct {
	registry *Registry
	replayer Replayer
	codec    Codec
	timeout  time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCodec sets the wire codec. Defaults to JSONCodec.
func WithCodec(c Codec) DispatcherOption {
	return func(d *Dispatcher) { d.codec = c }
}

// WithHandlerTimeout bounds each handler call. Zero means no bound.
func WithHandlerTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a dispatcher over registry. replayer runs the
// catch-up replay at the start of Listen.
func NewDispatcher(registry *Registry, replayer Replayer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		replayer: replayer,
		codec:    JSONCodec{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleMessage decodes raw and runs its handler.
//
// Undecodable payloads and unregistered kinds are logged and dropped; only
// a handler's own error is returned.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) error {
	msg, err := d.codec.Decode(raw)
	if err != nil {
		slog.Error("discarding undecodable broadcast message",
			"error", err,
			"codec", d.codec.Name(),
			"raw", truncate(raw),
		)
		return nil
	}

	handler, err := d.registry.Lookup(msg.Kind)
	if err != nil {
		slog.Error("discarding broadcast message with unknown kind",
			"kind", msg.Kind,
			"args", msg.Arguments,
		)
		return nil
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	slog.Debug("dispatching broadcast message", "kind", msg.Kind)
	if err := handler(ctx, msg.Arguments); err != nil {
		return fmt.Errorf("%s: %w", msg.Kind, err)
	}
	return nil
}

// Listen catches up on the log, subscribes to channel and handles every
// payload until ctx is done or the stream ends.
//
// Failures of one message are logged and contained. Listen returns an
// error only when the subscription cannot be opened or the transport
// fails; it returns nil when ctx is cancelled or the stream ends.
func (d *Dispatcher) Listen(ctx context.Context, sub Subscriber, channel string) error {
	if d.replayer != nil {
		if _, err := d.replayer.ProcessLog(ctx); err != nil {
			slog.Error("startup log replay failed", "error", err)
		}
	}

	subscription, err := sub.Subscribe(ctx, channel)
	if err != nil {
		slog.Error("broadcast subscription failed", "channel", channel, "error", err)
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	defer subscription.Close()
	slog.Info("listening for broadcast messages", "channel", channel, "codec", d.codec.Name())

	for {
		raw, err := subscription.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSubscriptionClosed) {
				slog.Info("broadcast listener stopped", "channel", channel)
				return nil
			}
			return fmt.Errorf("receive on %s: %w", channel, err)
		}
		d.handleContained(ctx, raw)
	}
}

// handleContained runs HandleMessage and absorbs its error or panic.
func (d *Dispatcher) handleContained(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("broadcast handler panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := d.HandleMessage(ctx, raw); err != nil {
		slog.Error("broadcast handler failed", "error", err)
	}
}

func truncate(raw []byte) string {
	if len(raw) > maxLoggedPayload {
		return fmt.Sprintf("%q...", raw[:maxLoggedPayload])
	}
	return fmt.Sprintf("%q", raw)
}

package zmqbus

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"syscall"

	zmq "github.com/pebbe/zmq4"

	"github.com/roach88/wsync/internal/broadcast"
)

// Subscriber opens SUB sockets on the broker's XPUB endpoint.
type Subscriber struct {
	endpoint string
	opts     Options
}

// NewSubscriber creates a subscriber for endpoint.
func NewSubscriber(endpoint string, opts Options) *Subscriber {
	return &Subscriber{endpoint: endpoint, opts: opts}
}

// Subscribe connects a SUB socket filtered on channel.
func (s *Subscriber) Subscribe(ctx context.Context, channel string) (broadcast.Subscription, error) {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("zmq sub socket: %w", err)
	}
	if err := s.setup(sock, channel); err != nil {
		sock.Close()
		return nil, err
	}

	slog.Info("subscribed to broadcast channel", "endpoint", s.endpoint, "channel", channel)
	return &subscription{sock: sock, channel: channel}, nil
}

func (s *Subscriber) setup(sock *zmq.Socket, channel string) error {
	if err := s.opts.apply(sock); err != nil {
		return err
	}
	if err := sock.SetRcvtimeo(s.opts.poll()); err != nil {
		return err
	}
	if err := sock.SetSubscribe(channel); err != nil {
		return err
	}
	if err := sock.Connect(s.endpoint); err != nil {
		return fmt.Errorf("connect %s: %w", s.endpoint, err)
	}
	return nil
}

// subscription is used from a single goroutine; zmq sockets are not safe
// for concurrent use.
type subscription struct {
	sock    *zmq.Socket
	channel string
}

func (s *subscription) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parts, err := s.sock.RecvMessageBytes(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				continue
			}
			if zmq.AsErrno(err) == zmq.ETERM {
				return nil, broadcast.ErrSubscriptionClosed
			}
			return nil, err
		}
		return payloadOf(s.channel, parts), nil
	}
}

func (s *subscription) Close() error {
	return s.sock.Close()
}

// payloadOf extracts the payload frame. Messages that are not exactly
// [channel, payload] are returned whole so the decoder rejects and logs
// them.
func payloadOf(channel string, parts [][]byte) []byte {
	if len(parts) == 2 && string(parts[0]) == channel {
		return parts[1]
	}
	return bytes.Join(parts, nil)
}

package zmqbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Publisher sends broadcast messages through a PUB socket connected to the
// broker's XSUB endpoint.
//
// Thread-safety: Publish is safe for concurrent use.
type Publisher struct {
	mu   sync.Mutex
	sock *zmq.Socket
}

// NewPublisher connects a PUB socket to endpoint and waits settle before
// returning. PUB/SUB drops messages sent before the subscription handshake
// completes, so one-shot producers need a short settle.
func NewPublisher(endpoint string, opts Options, settle time.Duration) (*Publisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("zmq pub socket: %w", err)
	}
	if err := opts.apply(sock); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	if settle > 0 {
		time.Sleep(settle)
	}
	return &Publisher{sock: sock}, nil
}

// Publish sends [channel, raw].
func (p *Publisher) Publish(ctx context.Context, channel string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.sock.SendMessage(channel, raw); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close closes the socket.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sock.Close()
}

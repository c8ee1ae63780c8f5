package zmqbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	zmq "github.com/pebbe/zmq4"
)

var brokerSeq atomic.Int64

// BrokerOptions configures server-side security on both broker sockets.
type BrokerOptions struct {
	// PLAIN users allowed to connect. Enables PLAIN when non-empty.
	Users map[string]string

	// CURVE server secret key in Z85. Enables CURVE when set.
	SecretKey string
}

// RunBroker binds an XSUB socket on frontend and an XPUB socket on backend
// and forwards between them until ctx is done.
func RunBroker(ctx context.Context, frontend, backend string, opts BrokerOptions) error {
	secured := len(opts.Users) > 0 || opts.SecretKey != ""
	if secured {
		if err := zmq.AuthStart(); err != nil {
			return fmt.Errorf("zmq auth: %w", err)
		}
		defer zmq.AuthStop()
		for user, pass := range opts.Users {
			zmq.AuthPlainAdd("wsync", user, pass)
		}
		if opts.SecretKey != "" {
			zmq.AuthCurveAdd("wsync", zmq.CURVE_ALLOW_ANY)
		}
	}

	xsub, err := bindSocket(zmq.XSUB, frontend, opts)
	if err != nil {
		return err
	}
	defer xsub.Close()

	xpub, err := bindSocket(zmq.XPUB, backend, opts)
	if err != nil {
		return err
	}
	defer xpub.Close()

	// The proxy owns xsub and xpub; it is stopped through a PAIR control
	// socket from the goroutine watching ctx.
	controlAddr := fmt.Sprintf("inproc://wsync-broker-control-%d", brokerSeq.Add(1))
	control, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		return err
	}
	defer control.Close()
	if err := control.Bind(controlAddr); err != nil {
		return err
	}

	controller, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		return err
	}
	if err := controller.Connect(controlAddr); err != nil {
		controller.Close()
		return err
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		defer controller.Close()
		select {
		case <-ctx.Done():
			if _, err := controller.Send("TERMINATE", 0); err != nil {
				slog.Error("broker terminate failed", "error", err)
			}
		case <-stopped:
		}
	}()

	slog.Info("broadcast broker running", "frontend", frontend, "backend", backend)
	if err := zmq.ProxySteerable(xsub, xpub, nil, control); err != nil {
		return fmt.Errorf("broker proxy: %w", err)
	}
	slog.Info("broadcast broker stopped")
	return nil
}

func bindSocket(t zmq.Type, endpoint string, opts BrokerOptions) (*zmq.Socket, error) {
	sock, err := zmq.NewSocket(t)
	if err != nil {
		return nil, fmt.Errorf("zmq %s socket: %w", t, err)
	}
	if err := setupBrokerSocket(sock, endpoint, opts); err != nil {
		sock.Close()
		return nil, err
	}
	return sock, nil
}

func setupBrokerSocket(sock *zmq.Socket, endpoint string, opts BrokerOptions) error {
	if err := sock.SetLinger(0); err != nil {
		return err
	}
	if opts.SecretKey != "" {
		if err := sock.ServerAuthCurve("wsync", opts.SecretKey); err != nil {
			return fmt.Errorf("curve: %w", err)
		}
	} else if len(opts.Users) > 0 {
		if err := sock.ServerAuthPlain("wsync"); err != nil {
			return fmt.Errorf("plain: %w", err)
		}
	}
	if err := sock.Bind(endpoint); err != nil {
		return fmt.Errorf("bind %s: %w", endpoint, err)
	}
	return nil
}

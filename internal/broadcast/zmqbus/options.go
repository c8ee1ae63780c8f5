// Package zmqbus carries broadcast messages over ZeroMQ PUB/SUB.
//
// Publishers connect to the broker's XSUB side and subscribers to its XPUB
// side; RunBroker forwards between the two. Each message is two frames:
// the channel name as topic, then the encoded payload.
package zmqbus

import (
	"fmt"
	"os"
	"strings"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// DefaultReceivePoll is how often a blocked receive checks its context.
const DefaultReceivePoll = 100 * time.Millisecond

// Options holds the security settings shared by subscribers and publishers.
type Options struct {
	// PLAIN credentials. Used when Username is set.
	Username string
	Password string

	// CURVE keys in Z85 text. Used when ServerKey is set.
	ServerKey string
	PublicKey string
	SecretKey string

	ReceivePoll time.Duration
}

// LoadKey reads one Z85 key file.
func LoadKey(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read curve key: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if len(key) != 40 {
		return "", fmt.Errorf("curve key %s: want 40 Z85 characters, got %d", path, len(key))
	}
	return key, nil
}

// LoadCurveKeys reads the three Z85 key files a CURVE client needs.
func LoadCurveKeys(serverKeyFile, publicKeyFile, secretKeyFile string) (server, public, secret string, err error) {
	if server, err = LoadKey(serverKeyFile); err != nil {
		return "", "", "", err
	}
	if public, err = LoadKey(publicKeyFile); err != nil {
		return "", "", "", err
	}
	if secret, err = LoadKey(secretKeyFile); err != nil {
		return "", "", "", err
	}
	return server, public, secret, nil
}

func (o Options) apply(sock *zmq.Socket) error {
	if err := sock.SetLinger(0); err != nil {
		return err
	}
	if o.ServerKey != "" {
		if err := sock.ClientAuthCurve(o.ServerKey, o.PublicKey, o.SecretKey); err != nil {
			return fmt.Errorf("curve: %w", err)
		}
	}
	if o.Username != "" {
		if err := sock.ClientAuthPlain(o.Username, o.Password); err != nil {
			return fmt.Errorf("plain: %w", err)
		}
	}
	return nil
}

func (o Options) poll() time.Duration {
	if o.ReceivePoll > 0 {
		return o.ReceivePoll
	}
	return DefaultReceivePoll
}

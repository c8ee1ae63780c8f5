// Package config loads worker settings from WSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/wsync/internal/broadcast"
	"github.com/roach88/wsync/internal/broadcast/zmqbus"
	"github.com/roach88/wsync/internal/engine"
)

// Config is the worker configuration. Command-line flags override it.
type Config struct {
	DB string `env:"WSYNC_DB" envDefault:"wsync.db"`

	BroadcastEndpoint string `env:"WSYNC_BROADCAST_ENDPOINT" envDefault:"tcp://127.0.0.1:5560"`
	PublishEndpoint   string `env:"WSYNC_PUBLISH_ENDPOINT"   envDefault:"tcp://127.0.0.1:5559"`
	BroadcastChannel  string `env:"WSYNC_BROADCAST_CHANNEL"  envDefault:"broadcast_queue"`
	Codec             string `env:"WSYNC_CODEC"              envDefault:"json"`

	BrokerFrontend      string `env:"WSYNC_BROKER_FRONTEND"       envDefault:"tcp://*:5559"`
	BrokerBackend       string `env:"WSYNC_BROKER_BACKEND"        envDefault:"tcp://*:5560"`
	BrokerSecretKeyFile string `env:"WSYNC_BROKER_SECRET_KEY_FILE"`

	Username   string `env:"WSYNC_USERNAME"`
	Credential string `env:"WSYNC_CREDENTIAL"`

	TLSEnabled  bool   `env:"WSYNC_TLS_ENABLED" envDefault:"false"`
	TLSKeyFile  string `env:"WSYNC_TLS_KEY_FILE"`
	TLSCertFile string `env:"WSYNC_TLS_CERT_FILE"`
	TLSCAFile   string `env:"WSYNC_TLS_CA_FILE"`

	LeaseTTL       time.Duration `env:"WSYNC_LEASE_TTL"        envDefault:"30s"`
	LeasePoll      time.Duration `env:"WSYNC_LEASE_POLL"       envDefault:"50ms"`
	LockMode       string        `env:"WSYNC_LOCK_MODE"        envDefault:"block"`
	HandlerTimeout time.Duration `env:"WSYNC_HANDLER_TIMEOUT"  envDefault:"0"`

	TemplateDir     string `env:"WSYNC_TEMPLATE_DIR" envDefault:"templates"`
	TemplateLibrary string `env:"WSYNC_TEMPLATE_LIBRARY"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that env parsing cannot.
func (c Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("WSYNC_DB must not be empty"))
	}
	if c.BroadcastChannel == "" {
		errs = append(errs, errors.New("WSYNC_BROADCAST_CHANNEL must not be empty"))
	}
	if _, err := broadcast.CodecByName(c.Codec); err != nil {
		errs = append(errs, fmt.Errorf("WSYNC_CODEC: %w", err))
	}
	if _, err := engine.ParseLockMode(c.LockMode); err != nil {
		errs = append(errs, fmt.Errorf("WSYNC_LOCK_MODE: %w", err))
	}
	if c.LeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("WSYNC_LEASE_TTL must be positive, got %s", c.LeaseTTL))
	}
	if c.LeasePoll <= 0 {
		errs = append(errs, fmt.Errorf("WSYNC_LEASE_POLL must be positive, got %s", c.LeasePoll))
	}
	if c.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("WSYNC_HANDLER_TIMEOUT must not be negative, got %s", c.HandlerTimeout))
	}
	if c.TLSEnabled && (c.TLSKeyFile == "" || c.TLSCertFile == "" || c.TLSCAFile == "") {
		errs = append(errs, errors.New("WSYNC_TLS_ENABLED requires WSYNC_TLS_KEY_FILE, WSYNC_TLS_CERT_FILE and WSYNC_TLS_CA_FILE"))
	}
	return errors.Join(errs...)
}

// BroadcastCodec returns the configured codec.
func (c Config) BroadcastCodec() (broadcast.Codec, error) {
	return broadcast.CodecByName(c.Codec)
}

// ReplayLockMode returns the configured lock mode.
func (c Config) ReplayLockMode() (engine.LockMode, error) {
	return engine.ParseLockMode(c.LockMode)
}

// TransportOptions builds the zmq client options. With TLS enabled the
// key file is the client secret key, the cert file the client public key
// and the CA file the server public key, all Z85 text.
func (c Config) TransportOptions() (zmqbus.Options, error) {
	opts := zmqbus.Options{
		Username: c.Username,
		Password: c.Credential,
	}
	if !c.TLSEnabled {
		return opts, nil
	}
	server, public, secret, err := zmqbus.LoadCurveKeys(c.TLSCAFile, c.TLSCertFile, c.TLSKeyFile)
	if err != nil {
		return zmqbus.Options{}, err
	}
	opts.ServerKey, opts.PublicKey, opts.SecretKey = server, public, secret
	return opts, nil
}

// BrokerOptions builds the broker security settings. PLAIN is enabled when
// a username is configured, CURVE when a broker secret key file is set.
func (c Config) BrokerOptions() (zmqbus.BrokerOptions, error) {
	var opts zmqbus.BrokerOptions
	if c.Username != "" {
		opts.Users = map[string]string{c.Username: c.Credential}
	}
	if c.BrokerSecretKeyFile != "" {
		key, err := zmqbus.LoadKey(c.BrokerSecretKeyFile)
		if err != nil {
			return zmqbus.BrokerOptions{}, err
		}
		opts.SecretKey = key
	}
	return opts, nil
}

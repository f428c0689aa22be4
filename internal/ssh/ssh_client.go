// internal/ssh/ssh_client.go

// Package ssh is the secure transport used by the deployer: it dials hosts
// with golang.org/x/crypto/ssh, uploads artifacts over SCP or SFTP and runs
// remote commands.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"fleetdeploy/internal/deployerr"
	"fleetdeploy/internal/models"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultTransferTimeout = 30 * time.Minute
	knownHostsFileName     = "known_hosts"
)

var (
	// ErrAuth means the server rejected every offered credential.
	ErrAuth = errors.New("authentication failed")
	// ErrHostKey means the server's host key did not pass verification.
	ErrHostKey = errors.New("host key verification failed")
	// ErrNoAuthMethods means the credentials produced nothing to offer.
	ErrNoAuthMethods = fmt.Errorf("%w: no usable authentication method", deployerr.ErrCredentials)
)

// Config holds transport settings shared by every host.
type Config struct {
	// ConnectTimeout bounds TCP dial plus SSH handshake. Zero means 10s.
	ConnectTimeout time.Duration

	// TransferTimeout bounds a single SCP upload. Zero means 30m.
	TransferTimeout time.Duration

	// KeepAlive is the interval between keepalive requests on an open
	// session. Zero disables keepalives.
	KeepAlive time.Duration

	HostKeyPolicy  HostKeyPolicy
	KnownHostsPath string

	// AgentSocket is the ssh-agent socket used when credentials ask for the
	// agent. Empty disables agent auth.
	AgentSocket string

	Log logr.Logger
}

// Client opens sessions to hosts. It is safe for concurrent use.
type Client struct {
	config   Config
	hostKeys *hostKeyStore
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = defaultTransferTimeout
	}
	if cfg.HostKeyPolicy == "" {
		cfg.HostKeyPolicy = HostKeyStrict
	}
	if _, err := ParseHostKeyPolicy(string(cfg.HostKeyPolicy)); err != nil {
		return nil, err
	}
	if cfg.KnownHostsPath == "" && cfg.HostKeyPolicy != HostKeyInsecure {
		path, err := DefaultKnownHostsPath()
		if err != nil {
			return nil, err
		}
		cfg.KnownHostsPath = path
	}

	return &Client{
		config: cfg,
		hostKeys: &hostKeyStore{
			policy: cfg.HostKeyPolicy,
			path:   cfg.KnownHostsPath,
			log:    cfg.Log,
		},
	}, nil
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts.
func DefaultKnownHostsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", knownHostsFileName), nil
}

// Open dials target with opts and returns a session. The connection is
// closed when ctx ends, so in-flight work on the session fails fast.
func (c *Client) Open(ctx context.Context, target models.HostTarget, opts models.DeployOptions) (*Session, error) {
	addr := target.Address(opts.Port)
	client, err := c.dial(ctx, addr, opts)
	if err != nil {
		return nil, err
	}

	log := c.config.Log.WithValues("host", target.Label())
	log.V(1).Info("connected", "addr", addr, "user", opts.User)
	return newSession(ctx, client, sessionConfig{
		transfer:        opts.Transfer,
		keepAlive:       c.config.KeepAlive,
		transferTimeout: c.config.TransferTimeout,
		log:             log,
	}), nil
}

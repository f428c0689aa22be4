// internal/ssh/connect.go

package ssh

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"fleetdeploy/internal/models"
	"fleetdeploy/internal/retry"
)

// dial opens a TCP connection to addr and runs the SSH handshake, both bounded
// by ctx and the connect timeout. Authentication and host key failures are
// marked fatal so the caller does not retry them.
func (c *Client) dial(ctx context.Context, addr string, opts models.DeployOptions) (*ssh.Client, error) {
	auths, release, err := authMethods(opts.Credentials, c.config.AgentSocket)
	defer release()
	if err != nil {
		return nil, retry.Fatal(err)
	}

	verify, err := c.hostKeys.callback()
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("%w: %v", ErrHostKey, err))
	}

	var (
		mu         sync.Mutex
		hostKeyErr error
	)
	sshConfig := &ssh.ClientConfig{
		User: opts.User,
		Auth: auths,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			err := verify(hostname, remote, key)
			if err != nil {
				mu.Lock()
				hostKeyErr = err
				mu.Unlock()
			}
			return err
		},
		Timeout: c.config.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	// The handshake has no context of its own; closing the socket aborts it.
	stop := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if !stop() {
		if err == nil {
			_ = sshConn.Close()
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, dialCtx.Err())
	}
	if err != nil {
		_ = conn.Close()
		mu.Lock()
		keyErr := hostKeyErr
		mu.Unlock()
		switch {
		case keyErr != nil:
			return nil, retry.Fatal(fmt.Errorf("%w for %s: %v", ErrHostKey, addr, keyErr))
		case strings.Contains(err.Error(), "unable to authenticate"):
			return nil, retry.Fatal(fmt.Errorf("%w as %s on %s: %v", ErrAuth, opts.User, addr, err))
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

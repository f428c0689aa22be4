// internal/ssh/session.go

package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	"fleetdeploy/internal/models"
)

type sessionConfig struct {
	transfer        models.TransferMode
	keepAlive       time.Duration
	transferTimeout time.Duration
	log             logr.Logger
}

// Session is an open connection to one host.
type Session struct {
	client    *ssh.Client
	config    sessionConfig
	stop      func() bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newSession(ctx context.Context, client *ssh.Client, cfg sessionConfig) *Session {
	s := &Session{
		client: client,
		config: cfg,
		done:   make(chan struct{}),
	}
	s.stop = context.AfterFunc(ctx, func() {
		cfg.log.V(1).Info("context done, closing connection")
		_ = client.Close()
	})
	if cfg.keepAlive > 0 {
		go s.keepAliveLoop(cfg.keepAlive)
	}
	return s
}

// Exec runs command and returns its exit status and combined output. An
// error is returned only when no exit status could be obtained; the output
// collected so far is returned with it.
func (s *Session) Exec(ctx context.Context, command string) (int, []byte, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return -1, nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var out outputBuffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		if err == nil {
			return 0, out.Bytes(), nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), out.Bytes(), nil
		}
		return -1, out.Bytes(), fmt.Errorf("remote command: %w", err)
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return -1, out.Bytes(), ctx.Err()
	}
}

// outputBuffer collects stdout and stderr of one command. Both streams are
// copied by separate goroutines.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Upload copies localPath to remotePath with the session's transfer mode,
// creating the remote directory first.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	if s.config.transfer == models.TransferSFTP {
		return s.uploadSFTP(ctx, localPath, remotePath)
	}
	return s.uploadSCP(ctx, localPath, remotePath)
}

func (s *Session) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if _, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				s.config.log.V(1).Info("keepalive failed", "error", err.Error())
				return
			}
		}
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stop()
		close(s.done)
		if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

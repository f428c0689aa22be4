package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy decides how server host keys are checked.
type HostKeyPolicy string

const (
	// HostKeyStrict requires the key to be in known_hosts already.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyAcceptNew records keys of unknown hosts but rejects changed keys.
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyInsecure accepts any key.
	HostKeyInsecure HostKeyPolicy = "insecure"
)

func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(s); p {
	case HostKeyStrict, HostKeyAcceptNew, HostKeyInsecure:
		return p, nil
	}
	return "", fmt.Errorf("unknown host key policy %q (want strict, accept-new or insecure)", s)
}

type hostKeyStore struct {
	policy HostKeyPolicy
	path   string
	log    logr.Logger
	mu     sync.Mutex
}

// callback builds a fresh verifier so keys recorded by earlier dials are seen.
func (h *hostKeyStore) callback() (ssh.HostKeyCallback, error) {
	switch h.policy {
	case HostKeyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil
	case HostKeyStrict:
		if _, err := os.Stat(h.path); err != nil {
			return nil, fmt.Errorf("known_hosts file %s: %w", h.path, err)
		}
		return knownhosts.New(h.path)
	case HostKeyAcceptNew:
		if err := h.ensureFile(); err != nil {
			return nil, err
		}
		known, err := knownhosts.New(h.path)
		if err != nil {
			return nil, err
		}
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			err := known(hostname, remote, key)
			var keyErr *knownhosts.KeyError
			if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
				return h.add(hostname, key)
			}
			return err
		}, nil
	}
	return nil, fmt.Errorf("unknown host key policy %q", h.policy)
}

func (h *hostKeyStore) ensureFile() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", h.path, err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", h.path, err)
	}
	return f.Close()
}

func (h *hostKeyStore) add(hostname string, key ssh.PublicKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", h.path, err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", h.path, err)
	}
	h.log.Info("recorded new host key", "host", hostname, "fingerprint", ssh.FingerprintSHA256(key))
	return f.Close()
}

package deploy

import (
	"context"

	"fleetdeploy/internal/models"
)

// Transport opens an authenticated session to one host.
type Transport interface {
	Open(ctx context.Context, target models.HostTarget, opts models.DeployOptions) (Session, error)
}

// Session is one host's secure shell session.
//
// Exec returns the remote exit status and combined output when the command
// ran, even if it exited non-zero. A non-nil error means no exit status was
// obtained.
type Session interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Exec(ctx context.Context, command string) (int, []byte, error)
	Close() error
}

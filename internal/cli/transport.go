package cli

import (
	"context"
	"os"

	"github.com/go-logr/logr"

	"fleetdeploy/internal/config"
	"fleetdeploy/internal/deploy"
	"fleetdeploy/internal/models"
	"fleetdeploy/internal/ssh"
)

// sshTransport adapts *ssh.Client to deploy.Transport.
type sshTransport struct {
	client *ssh.Client
}

func (t sshTransport) Open(ctx context.Context, target models.HostTarget, opts models.DeployOptions) (deploy.Session, error) {
	sess, err := t.client.Open(ctx, target, opts)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func newSSHTransport(s config.Settings, log logr.Logger) (deploy.Transport, error) {
	policy, err := ssh.ParseHostKeyPolicy(s.HostKeyPolicy)
	if err != nil {
		return nil, err
	}
	client, err := ssh.NewClient(ssh.Config{
		ConnectTimeout: s.ConnectTimeout,
		KeepAlive:      s.KeepAlive,
		HostKeyPolicy:  policy,
		KnownHostsPath: s.KnownHosts,
		AgentSocket:    os.Getenv("SSH_AUTH_SOCK"),
		Log:            log.WithName("ssh"),
	})
	if err != nil {
		return nil, err
	}
	return sshTransport{client: client}, nil
}

package deploy

import (
	"errors"
	"fmt"
	"os"

	"fleetdeploy/internal/models"
)

var (
	errNoOptions = errors.New("no deploy options bound to host and defaults not requested")
	errNoUser    = errors.New("no remote user configured")
	errNoAuth    = errors.New("no credentials configured (identity file, agent or password)")
)

// resolve computes the effective options for target without touching the
// network. Options bound to the target win; with defaults requested the
// defaults fill what the binding leaves empty.
func (d *Deployer) resolve(target models.HostTarget) (models.DeployOptions, error) {
	if target.Hostname == "" {
		return models.DeployOptions{}, errors.New("empty hostname")
	}

	bound, ok := target.Binding.Options()
	var opts models.DeployOptions
	switch {
	case ok && d.useDefaults:
		opts = bound.WithDefaults(d.defaults)
	case ok:
		opts = bound.WithSettings(d.defaults)
	case d.useDefaults:
		opts = d.defaults.Clone()
	default:
		return models.DeployOptions{}, errNoOptions
	}

	if target.User != "" {
		opts.User = target.User
	}
	if target.Port != 0 {
		opts.Port = target.Port
	}
	opts = opts.WithSettings(models.DeployOptions{
		Port:      22,
		RemoteDir: DefaultRemoteDir,
		Activate:  DefaultActivateCommand,
		Transfer:  models.TransferSCP,
	})

	if opts.User == "" {
		return models.DeployOptions{}, errNoUser
	}
	if opts.Credentials.Empty() {
		return models.DeployOptions{}, errNoAuth
	}
	if opts.Transfer != models.TransferSCP && opts.Transfer != models.TransferSFTP {
		return models.DeployOptions{}, fmt.Errorf("unknown transfer mode %q", opts.Transfer)
	}
	if opts.DistFile == "" {
		return models.DeployOptions{}, errors.New("no distribution file configured")
	}
	info, err := os.Stat(opts.DistFile)
	if err != nil {
		return models.DeployOptions{}, fmt.Errorf("distribution file: %w", err)
	}
	if info.IsDir() {
		return models.DeployOptions{}, fmt.Errorf("distribution file %s is a directory", opts.DistFile)
	}
	return opts, nil
}

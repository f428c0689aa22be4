// Package deploy uploads an artifact to a fleet of hosts and runs an
// activation command on each, recording one result per host.
//
// Hosts are independent: a failure on one host is recorded in its result and
// never stops the others. Results always come back in input order, whatever
// the concurrency.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"fleetdeploy/internal/deployerr"
	"fleetdeploy/internal/models"
	"fleetdeploy/internal/retry"
	"fleetdeploy/internal/utils"
)

type Deployer struct {
	transport      Transport
	defaults       models.DeployOptions
	useDefaults    bool
	concurrency    int
	retries        int
	retryDelay     time.Duration
	commandTimeout time.Duration
	observer       Observer
	log            logr.Logger
	now            func() time.Time
}

type Option func(*Deployer)

// WithDefaults turns on the "use defaults" switch. d is copied, so later
// changes by the caller are not seen by the deployer.
func WithDefaults(d models.DeployOptions) Option {
	return func(dep *Deployer) {
		dep.defaults = d.Clone()
		dep.useDefaults = true
	}
}

// WithSettings supplies non-secret fallbacks (artifact, port, remote dir,
// activation command, transfer mode) without turning on defaults.
func WithSettings(d models.DeployOptions) Option {
	return func(dep *Deployer) {
		dep.defaults = d.Clone()
	}
}

// WithConcurrency bounds how many hosts are processed at once. Values below
// one mean sequential.
func WithConcurrency(n int) Option {
	return func(dep *Deployer) {
		dep.concurrency = n
	}
}

// WithRetries retries the connect step up to n more times. Upload and
// activation are never retried.
func WithRetries(n int, delay time.Duration) Option {
	return func(dep *Deployer) {
		dep.retries = n
		dep.retryDelay = delay
	}
}

func WithCommandTimeout(d time.Duration) Option {
	return func(dep *Deployer) {
		dep.commandTimeout = d
	}
}

func WithObserver(o Observer) Option {
	return func(dep *Deployer) {
		dep.observer = o
	}
}

func WithLogger(l logr.Logger) Option {
	return func(dep *Deployer) {
		dep.log = l
	}
}

func New(transport Transport, opts ...Option) *Deployer {
	d := &Deployer{
		transport:   transport,
		concurrency: 1,
		retryDelay:  2 * time.Second,
		log:         logr.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	return d
}

// Deploy processes every target and returns exactly one result per target,
// in the same order. Targets not started when ctx ends are recorded as
// canceled.
func (d *Deployer) Deploy(ctx context.Context, targets []models.HostTarget) []models.DeployResult {
	results := make([]models.DeployResult, len(targets))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, target := range targets {
		if ctx.Err() != nil {
			results[i] = d.canceled(i, target)
			continue
		}
		g.Go(func() error {
			results[i] = d.deployHost(ctx, i, target)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Deployer) canceled(index int, target models.HostTarget) models.DeployResult {
	host := target.Label()
	result := models.Failure(host, deployerr.New(deployerr.Canceled, host, "not started", context.Canceled), 0, 0)
	d.emit(Event{Kind: HostFinished, Index: index, Host: host, Result: &result})
	return result
}

func (d *Deployer) deployHost(ctx context.Context, index int, target models.HostTarget) models.DeployResult {
	host := target.Label()
	log := d.log.WithValues("host", host)
	start := d.now()
	attempts := 0

	finish := func(err *deployerr.Error) models.DeployResult {
		var result models.DeployResult
		if err == nil {
			result = models.Success(host, d.now().Sub(start), attempts)
			log.Info("deployed", "duration", result.Duration)
		} else {
			result = models.Failure(host, err, d.now().Sub(start), attempts)
			log.Error(err.Err, "deploy failed", "kind", err.Kind.String(), "reason", err.Message)
		}
		d.emit(Event{Kind: HostFinished, Index: index, Host: host, Result: &result})
		return result
	}

	d.emit(Event{Kind: HostStarted, Index: index, Host: host})
	if ctx.Err() != nil {
		return finish(deployerr.New(deployerr.Canceled, host, "not started", ctx.Err()))
	}

	d.emit(Event{Kind: StepStarted, Index: index, Host: host, Step: StepResolve})
	opts, err := d.resolve(target)
	if err != nil {
		return finish(deployerr.New(deployerr.ConfigurationError, host, "cannot resolve options", err))
	}
	log = log.WithValues("user", opts.User, "port", opts.Port)

	d.emit(Event{Kind: StepStarted, Index: index, Host: host, Step: StepConnect})
	var sess Session
	attempts, err = retry.Do(ctx, func() error {
		s, err := d.transport.Open(ctx, target, opts)
		if err != nil {
			return err
		}
		sess = s
		return nil
	},
		retry.WithMaxRetries(d.retries),
		retry.WithInitialDelay(d.retryDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.V(1).Info("connect failed, retrying", "attempt", attempt, "delay", delay, "error", err.Error())
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return finish(deployerr.New(deployerr.Canceled, host, "canceled while connecting", err))
		}
		if errors.Is(err, deployerr.ErrCredentials) {
			return finish(deployerr.New(deployerr.ConfigurationError, host, "cannot use credentials", err))
		}
		return finish(deployerr.New(deployerr.ConnectionError, host, "cannot open session", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.V(1).Info("closing session", "error", err.Error())
		}
	}()

	remotePath := utils.RemoteArtifactPath(opts.RemoteDir, opts.DistFile)
	d.emit(Event{Kind: StepStarted, Index: index, Host: host, Step: StepUpload})
	log.V(1).Info("uploading", "local", opts.DistFile, "remote", remotePath, "transfer", string(opts.Transfer))
	if err := sess.Upload(ctx, opts.DistFile, remotePath); err != nil {
		if ctx.Err() != nil {
			return finish(deployerr.New(deployerr.Canceled, host, "canceled during upload", err))
		}
		return finish(deployerr.New(deployerr.TransferError, host, fmt.Sprintf("cannot upload to %s", remotePath), err))
	}

	command := ActivationCommand(opts.Activate, remotePath)
	d.emit(Event{Kind: StepStarted, Index: index, Host: host, Step: StepActivate})
	log.V(1).Info("activating", "command", command)

	cmdCtx := ctx
	if d.commandTimeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, d.commandTimeout)
		defer cancel()
	}
	exitStatus, output, err := sess.Exec(cmdCtx, command)
	switch {
	case err != nil && ctx.Err() != nil:
		return finish(deployerr.New(deployerr.Canceled, host, "canceled during activation", err))
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return finish(deployerr.Activation(host, -1, output, fmt.Errorf("timed out after %s: %w", d.commandTimeout, err)))
	case err != nil:
		return finish(deployerr.Activation(host, -1, output, err))
	case exitStatus != 0:
		return finish(deployerr.Activation(host, exitStatus, output, nil))
	}

	return finish(nil)
}

func (d *Deployer) emit(e Event) {
	if d.observer != nil {
		d.observer(e)
	}
}

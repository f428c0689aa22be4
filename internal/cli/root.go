// Package cli is the fleetdeploy command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"fleetdeploy/internal/config"
	"fleetdeploy/internal/crypto"
	"fleetdeploy/internal/deploy"
	"fleetdeploy/internal/logging"
	"fleetdeploy/internal/models"
	"fleetdeploy/internal/report"
	"fleetdeploy/internal/ui"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// TransportFactory builds the transport used to reach hosts.
type TransportFactory func(s config.Settings, log logr.Logger) (deploy.Transport, error)

type app struct {
	v            *viper.Viper
	newTransport TransportFactory
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	configPath   string
}

type Option func(*app)

func WithTransport(f TransportFactory) Option {
	return func(a *app) {
		a.newTransport = f
	}
}

func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(a *app) {
		a.stdin = stdin
		a.stdout = stdout
		a.stderr = stderr
	}
}

// exitError carries the process exit code. A nil err means the reason has
// already been printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func usageError(err error) error {
	return &exitError{code: report.ExitUsage, err: err}
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return report.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return report.ExitFailed
}

// NewRootCommand builds the command tree. Every call gets its own settings
// so commands can be built repeatedly in tests.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		v:            config.New(),
		newTransport: newSSHTransport,
		stdin:        os.Stdin,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	cmd := &cobra.Command{
		Use:   "fleetdeploy [flags] [user@]host[:port]...",
		Short: "Upload a distribution artifact to many hosts over SSH and activate it",
		Long: `fleetdeploy copies a packaged artifact (dist.tar.gz by default) to every
given host over SSH and runs an activation command there. Each host is
handled independently; a failing host never stops the others.

Hosts are either plain [user@]host[:port] arguments or names from an
inventory file (--inventory). Plain hosts need --defaults (-d) to pick up
the default user and credentials.`,
		Example: `  fleetdeploy -d web1.example.com web2.example.com
  fleetdeploy -d -t build/app.tar.gz --activate 'sudo /opt/app/install.sh {artifact}' 10.0.0.5
  fleetdeploy --inventory hosts.yaml --all --concurrency 4`,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runDeploy,
	}
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $HOME/.config/fleetdeploy/config.yaml)")
	pf.CountP(config.KeyVerbose, "v", "increase log verbosity (repeatable)")
	pf.String(config.KeyLogFile, "", "write logs to this file instead of stderr")

	f := cmd.Flags()
	f.BoolP(config.KeyDefaults, "d", false, "use default user and credentials for hosts without their own")
	f.StringP(config.KeyDistFile, "t", config.DefaultDistFile, "distribution artifact to upload")
	f.String(config.KeyInventory, "", "YAML inventory of hosts")
	f.Bool(config.KeyAll, false, "deploy to every host in the inventory")
	f.StringP(config.KeyUser, "u", config.DefaultUser, "default SSH user")
	f.StringSliceP(config.KeyIdentity, "i", nil, "default private key file (repeatable)")
	f.IntP(config.KeyPort, "p", config.DefaultPort, "default SSH port")
	f.String(config.KeyRemoteDir, deploy.DefaultRemoteDir, "remote directory the artifact is uploaded to")
	f.String(config.KeyActivate, deploy.DefaultActivateCommand,
		"remote activation command; {artifact}, {dir} and {name} are replaced")
	f.String(config.KeyTransfer, string(models.TransferSCP), "upload protocol: scp or sftp")
	f.Int(config.KeyConcurrency, 1, "hosts processed at once")
	f.Duration(config.KeyConnectTimeout, 10*time.Second, "TCP connect and SSH handshake timeout")
	f.Duration(config.KeyCommandTimeout, 0, "activation command timeout (0 disables)")
	f.Duration(config.KeyKeepAlive, 0, "SSH keepalive interval (0 disables)")
	f.Int(config.KeyRetries, 0, "extra connection attempts per host")
	f.Duration(config.KeyRetryDelay, 2*time.Second, "delay before the first connection retry")
	f.String(config.KeyHostKeyPolicy, "accept-new", "host key checking: strict, accept-new or insecure")
	f.String(config.KeyKnownHosts, "", "known_hosts file (default ~/.ssh/known_hosts)")
	f.Bool(config.KeyNoProgress, false, "disable the live progress display")
	f.String(config.KeyTheme, ui.DefaultTheme, "colour theme for terminal output")

	_ = a.v.BindPFlags(pf)
	_ = a.v.BindPFlags(f)

	cmd.AddCommand(newSealCommand(a))
	return cmd
}

func (a *app) loadSettings() (config.Settings, error) {
	if err := config.ReadConfigFile(a.v, a.configPath); err != nil {
		return config.Settings{}, usageError(err)
	}
	s, err := config.Load(a.v)
	if err != nil {
		return config.Settings{}, usageError(err)
	}
	return s, nil
}

func (a *app) runDeploy(cmd *cobra.Command, args []string) error {
	s, err := a.loadSettings()
	if err != nil {
		return err
	}
	theme, err := ui.ThemeByName(s.Theme)
	if err != nil {
		return usageError(err)
	}

	targets, err := a.targets(s, args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		_ = cmd.Help()
		return &exitError{code: report.ExitUsage}
	}

	progress := !s.NoProgress && isTerminal(a.stdout) && isTerminal(a.stdin)
	logOut := a.stderr
	if progress {
		logOut = io.Discard
	}
	log, closeLog, err := logging.New(logging.Options{Verbosity: s.Verbose, File: s.LogFile, Output: logOut})
	if err != nil {
		return err
	}
	defer closeLog()

	transport, err := a.newTransport(s, log)
	if err != nil {
		return usageError(err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	deployOpts := []deploy.Option{
		deploy.WithConcurrency(s.Concurrency),
		deploy.WithRetries(s.Retries, s.RetryDelay),
		deploy.WithCommandTimeout(s.CommandTimeout),
		deploy.WithLogger(log.WithName("deploy")),
	}
	if s.UseDefaults {
		deployOpts = append(deployOpts, deploy.WithDefaults(s.DeployDefaults()))
	} else {
		deployOpts = append(deployOpts, deploy.WithSettings(s.DeploySettings()))
	}

	log.Info("starting deploy", "artifact", s.DistFile, "hosts", len(targets), "concurrency", s.Concurrency)

	var results []models.DeployResult
	if progress {
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = t.Label()
		}
		title := fmt.Sprintf("Deploying %s to %d host(s)", filepath.Base(s.DistFile), len(targets))
		results, err = ui.RunProgress(a.stdout, title, names, theme, cancel,
			func(observer deploy.Observer) []models.DeployResult {
				d := deploy.New(transport, append(deployOpts, deploy.WithObserver(observer))...)
				return d.Deploy(ctx, targets)
			})
		if err != nil {
			log.Error(err, "progress display failed")
		}
	} else {
		results = deploy.New(transport, deployOpts...).Deploy(ctx, targets)
	}

	if err := report.New(a.stdout, theme).Render(results); err != nil {
		return err
	}
	if code := report.ExitCode(results); code != report.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

// targets turns arguments and --all into deploy targets.
func (a *app) targets(s config.Settings, args []string) ([]models.HostTarget, error) {
	var inv *config.Inventory
	if s.Inventory != "" {
		var cipher *crypto.Cipher
		if s.MasterKey != "" {
			c, err := crypto.NewCipher(s.MasterKey)
			if err != nil {
				return nil, usageError(err)
			}
			cipher = c
		}
		loaded, err := config.LoadInventory(s.Inventory, cipher)
		if err != nil {
			return nil, usageError(err)
		}
		inv = loaded
	}

	if s.All {
		if inv == nil {
			return nil, usageError(errors.New("--all needs --inventory"))
		}
		if len(args) > 0 {
			return nil, usageError(errors.New("--all cannot be combined with host arguments"))
		}
		return inv.All(), nil
	}

	targets, err := config.Targets(inv, args)
	if err != nil {
		return nil, usageError(err)
	}
	return targets, nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Execute runs the command line and exits the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], NewRootCommand())
	stop()
	exitFunc(code)
}

// Run executes cmd with args and returns the exit code, printing any error
// that was not reported yet.
func Run(ctx context.Context, args []string, cmd *cobra.Command) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return ExitCode(err)
}

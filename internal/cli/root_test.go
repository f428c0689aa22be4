package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdeploy/internal/config"
	"fleetdeploy/internal/crypto"
	"fleetdeploy/internal/deploy"
	"fleetdeploy/internal/models"
)

type fakeTransport struct {
	mu         sync.Mutex
	uploadErrs map[string]error
	opened     []string
	opts       map[string]models.DeployOptions
	commands   map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		uploadErrs: map[string]error{},
		opts:       map[string]models.DeployOptions{},
		commands:   map[string]string{},
	}
}

func (f *fakeTransport) Open(_ context.Context, target models.HostTarget, opts models.DeployOptions) (deploy.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, target.Hostname)
	f.opts[target.Hostname] = opts
	return &fakeSession{t: f, host: target.Hostname}, nil
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

type fakeSession struct {
	t    *fakeTransport
	host string
}

func (s *fakeSession) Upload(context.Context, string, string) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.t.uploadErrs[s.host]
}

func (s *fakeSession) Exec(_ context.Context, command string) (int, []byte, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.commands[s.host] = command
	return 0, nil, nil
}

func (s *fakeSession) Close() error { return nil }

type harness struct {
	transport *fakeTransport
	factory   int
	stdout    bytes.Buffer
	stderr    bytes.Buffer
	stdin     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SSH_AUTH_SOCK", "")
	return &harness{transport: newFakeTransport()}
}

func (h *harness) run(args ...string) int {
	cmd := NewRootCommand(
		WithIO(strings.NewReader(h.stdin), &h.stdout, &h.stderr),
		WithTransport(func(config.Settings, logr.Logger) (deploy.Transport, error) {
			h.factory++
			return h.transport, nil
		}),
	)
	return Run(context.Background(), args, cmd)
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dist.tar.gz")
	require.NoError(t, os.WriteFile(p, []byte("artifact"), 0o600))
	return p
}

func TestDeployIsolatesTransferFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.uploadErrs["h2"] = errors.New("disk full")
	artifact := writeArtifact(t)

	code := h.run("-d", "-t", artifact, "h1", "h2")

	assert.Equal(t, 1, code)
	out := h.stdout.String()
	assert.Contains(t, out, "h1")
	assert.Contains(t, out, "transfer: cannot upload to /tmp/dist.tar.gz: disk full")
	assert.Contains(t, out, "Deployed to 1/2 host(s), 1 failed")
	assert.ElementsMatch(t, []string{"h1", "h2"}, h.transport.opened)
	assert.Contains(t, h.transport.commands, "h1")
	assert.NotContains(t, h.transport.commands, "h2")
}

func TestDeployAllSucceed(t *testing.T) {
	h := newHarness(t)
	artifact := writeArtifact(t)

	code := h.run("-d", "-t", artifact, "--remote-dir", "/srv/app", "deploy@h1:2222", "h2")

	assert.Equal(t, 0, code)
	assert.Contains(t, h.stdout.String(), "Deployed to 2/2 host(s)")
	assert.Equal(t, "tar -xzf /srv/app/dist.tar.gz -C /srv/app", h.transport.commands["h1"])

	opts := h.transport.opts["h1"]
	assert.Equal(t, "deploy", opts.User)
	assert.Equal(t, 2222, opts.Port)
	assert.Equal(t, config.DefaultUser, h.transport.opts["h2"].User)
	assert.Equal(t, config.DefaultPort, h.transport.opts["h2"].Port)
}

func TestNoHostsPrintsHelp(t *testing.T) {
	h := newHarness(t)

	code := h.run()

	assert.Equal(t, 2, code)
	assert.Contains(t, h.stdout.String(), "Usage:")
	assert.Contains(t, h.stdout.String(), "--dist-file")
	assert.Zero(t, h.factory)
	assert.Zero(t, h.transport.openCount())
	assert.Empty(t, h.stderr.String())
}

func TestHostsWithoutDefaultsFailConfiguration(t *testing.T) {
	h := newHarness(t)
	artifact := writeArtifact(t)

	code := h.run("-t", artifact, "h1", "h2")

	assert.Equal(t, 1, code)
	assert.Zero(t, h.transport.openCount())
	assert.Equal(t, 2, strings.Count(h.stdout.String(), "configuration: cannot resolve options"))
}

func TestMissingArtifactFailsBeforeConnecting(t *testing.T) {
	h := newHarness(t)

	code := h.run("-d", "-t", filepath.Join(t.TempDir(), "missing.tar.gz"), "h1")

	assert.Equal(t, 1, code)
	assert.Zero(t, h.transport.openCount())
	assert.Contains(t, h.stdout.String(), "configuration")
}

func TestInventoryAllWithSealedPassword(t *testing.T) {
	h := newHarness(t)
	t.Setenv("FLEETDEPLOY_MASTER_KEY", "master")
	artifact := writeArtifact(t)

	c, err := crypto.NewCipher("master")
	require.NoError(t, err)
	sealed, err := c.Seal("s3cret")
	require.NoError(t, err)

	inv := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(inv, []byte(`
hosts:
  - name: web1
    address: 10.0.0.1
    user: app
    password: `+sealed+`
  - name: web2
    address: 10.0.0.2
    user: app
    agent: true
    remote_dir: /opt/app
`), 0o600))

	code := h.run("--inventory", inv, "--all", "-t", artifact)

	require.Equal(t, 0, code, h.stdout.String()+h.stderr.String())
	assert.Equal(t, "s3cret", h.transport.opts["10.0.0.1"].Credentials.Password)
	assert.Equal(t, "/opt/app", h.transport.opts["10.0.0.2"].RemoteDir)
	assert.Contains(t, h.stdout.String(), "web1")
	assert.Contains(t, h.stdout.String(), "web2")
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"all without inventory", []string{"--all"}, "--all needs --inventory"},
		{"unknown flag", []string{"--bogus", "h1"}, "unknown flag"},
		{"bad transfer", []string{"--transfer", "ftp", "h1"}, "transfer"},
		{"bad host", []string{"h1:notaport"}, "bad port"},
		{"missing inventory", []string{"--inventory", "/nonexistent/hosts.yaml", "h1"}, "inventory"},
		{"missing config", []string{"--config", "/nonexistent/config.yaml", "h1"}, "config"},
		{"bad theme", []string{"--theme", "neon", "h1"}, "theme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			code := h.run(tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, h.stderr.String(), tt.want)
			assert.Zero(t, h.transport.openCount())
		})
	}
}

func TestInventoryWithBadPortIsUsageError(t *testing.T) {
	h := newHarness(t)
	inv := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(inv, []byte("hosts:\n  - name: web1\n    port: 70000\n"), 0o600))

	code := h.run("--inventory", inv, "--all", "-d", "-t", writeArtifact(t))

	assert.Equal(t, 2, code)
	assert.Contains(t, h.stderr.String(), "bad port 70000")
	assert.Zero(t, h.factory)
}

func TestEnvironmentSuppliesDefaults(t *testing.T) {
	h := newHarness(t)
	artifact := writeArtifact(t)
	t.Setenv("FLEETDEPLOY_USER", "envuser")
	t.Setenv("FLEETDEPLOY_DIST_FILE", artifact)

	code := h.run("-d", "h1")

	assert.Equal(t, 0, code)
	assert.Equal(t, "envuser", h.transport.opts["h1"].User)
	assert.Equal(t, artifact, h.transport.opts["h1"].DistFile)
}

func TestSeal(t *testing.T) {
	h := newHarness(t)
	t.Setenv("FLEETDEPLOY_MASTER_KEY", "master")
	h.stdin = "hunter2\n"

	code := h.run("seal")
	require.Equal(t, 0, code, h.stderr.String())

	sealed := strings.TrimSpace(h.stdout.String())
	assert.True(t, crypto.IsSealed(sealed))

	c, err := crypto.NewCipher("master")
	require.NoError(t, err)
	got, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestSealWithoutMasterKey(t *testing.T) {
	h := newHarness(t)
	t.Setenv("FLEETDEPLOY_MASTER_KEY", "")
	h.stdin = "hunter2\n"

	assert.Equal(t, 2, h.run("seal"))
	assert.Contains(t, h.stderr.String(), "FLEETDEPLOY_MASTER_KEY")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(usageError(errors.New("bad"))))
	assert.Equal(t, 1, ExitCode(&exitError{code: 1}))
}

func TestExecuteUsesExitFunc(t *testing.T) {
	newHarness(t)
	oldArgs, oldExit := os.Args, exitFunc
	t.Cleanup(func() { os.Args, exitFunc = oldArgs, oldExit })

	var got int
	exitFunc = func(code int) { got = code }
	os.Args = []string{"fleetdeploy", "--version"}

	Execute()
	assert.Equal(t, 0, got)
}

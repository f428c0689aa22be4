// internal/config/config.go

// Package config loads process-wide settings (flags, FLEETDEPLOY_* environment
// and an optional config file, in that order of precedence) and the host
// inventory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fleetdeploy/internal/models"
)

const (
	DefaultConfigDir      = ".config/fleetdeploy"
	DefaultConfigFileName = "config.yaml"
	EnvPrefix             = "FLEETDEPLOY"

	DefaultDistFile = "dist.tar.gz"
	DefaultUser     = "ubuntu"
	DefaultPort     = 22
)

// Setting keys. Keys that are also flags share the flag's name.
const (
	KeyDefaults       = "defaults"
	KeyDistFile       = "dist-file"
	KeyInventory      = "inventory"
	KeyAll            = "all"
	KeyUser           = "user"
	KeyIdentity       = "identity"
	KeyPort           = "port"
	KeyRemoteDir      = "remote-dir"
	KeyActivate       = "activate"
	KeyTransfer       = "transfer"
	KeyConcurrency    = "concurrency"
	KeyConnectTimeout = "connect-timeout"
	KeyCommandTimeout = "command-timeout"
	KeyKeepAlive      = "keepalive"
	KeyRetries        = "retries"
	KeyRetryDelay     = "retry-delay"
	KeyHostKeyPolicy  = "host-key-policy"
	KeyKnownHosts     = "known-hosts"
	KeyNoProgress     = "no-progress"
	KeyVerbose        = "verbose"
	KeyLogFile        = "log-file"
	KeyTheme          = "theme"

	// Secrets are read from the environment or the config file only.
	KeyPassword   = "password"
	KeyPassphrase = "passphrase"
	KeyMasterKey  = "master-key"
	KeyAgent      = "agent"
)

// Settings is the flattened view of everything the CLI needs.
type Settings struct {
	UseDefaults bool
	DistFile    string
	Inventory   string
	All         bool

	User          string
	IdentityFiles []string
	Password      string
	Passphrase    string
	UseAgent      bool

	Port      int
	RemoteDir string
	Activate  string
	Transfer  models.TransferMode

	Concurrency    int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	KeepAlive      time.Duration
	Retries        int
	RetryDelay     time.Duration

	HostKeyPolicy string
	KnownHosts    string

	NoProgress bool
	Verbose    int
	LogFile    string
	Theme      string
	MasterKey  string
}

// New returns a viper instance with built-in defaults and environment
// lookups configured. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDistFile, DefaultDistFile)
	v.SetDefault(KeyUser, DefaultUser)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyTransfer, string(models.TransferSCP))
	v.SetDefault(KeyConcurrency, 1)
	v.SetDefault(KeyConnectTimeout, 10*time.Second)
	v.SetDefault(KeyRetryDelay, 2*time.Second)
	v.SetDefault(KeyHostKeyPolicy, "accept-new")
	v.SetDefault(KeyAgent, true)
}

// ReadConfigFile loads path into v. With an empty path the default location
// is tried and silently skipped when absent; an explicit path must exist.
func ReadConfigFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		p, err := GetDefaultConfigPath()
		if err != nil {
			return nil
		}
		path = p
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// GetDefaultConfigPath returns $HOME/.config/fleetdeploy/config.yaml.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultConfigDir, DefaultConfigFileName), nil
}

// Load reads every setting out of v.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		UseDefaults:    v.GetBool(KeyDefaults),
		DistFile:       v.GetString(KeyDistFile),
		Inventory:      v.GetString(KeyInventory),
		All:            v.GetBool(KeyAll),
		User:           v.GetString(KeyUser),
		IdentityFiles:  v.GetStringSlice(KeyIdentity),
		Password:       v.GetString(KeyPassword),
		Passphrase:     v.GetString(KeyPassphrase),
		UseAgent:       v.GetBool(KeyAgent),
		Port:           v.GetInt(KeyPort),
		RemoteDir:      v.GetString(KeyRemoteDir),
		Activate:       v.GetString(KeyActivate),
		Transfer:       models.TransferMode(strings.ToLower(v.GetString(KeyTransfer))),
		Concurrency:    v.GetInt(KeyConcurrency),
		ConnectTimeout: v.GetDuration(KeyConnectTimeout),
		CommandTimeout: v.GetDuration(KeyCommandTimeout),
		KeepAlive:      v.GetDuration(KeyKeepAlive),
		Retries:        v.GetInt(KeyRetries),
		RetryDelay:     v.GetDuration(KeyRetryDelay),
		HostKeyPolicy:  v.GetString(KeyHostKeyPolicy),
		KnownHosts:     v.GetString(KeyKnownHosts),
		NoProgress:     v.GetBool(KeyNoProgress),
		Verbose:        v.GetInt(KeyVerbose),
		LogFile:        v.GetString(KeyLogFile),
		Theme:          v.GetString(KeyTheme),
		MasterKey:      v.GetString(KeyMasterKey),
	}

	switch s.Transfer {
	case models.TransferSCP, models.TransferSFTP:
	default:
		return Settings{}, fmt.Errorf("invalid %s %q (want scp or sftp)", KeyTransfer, s.Transfer)
	}
	if s.Port < 0 || s.Port > 65535 {
		return Settings{}, fmt.Errorf("invalid %s %d", KeyPort, s.Port)
	}
	if s.Retries < 0 {
		return Settings{}, fmt.Errorf("invalid %s %d", KeyRetries, s.Retries)
	}
	return s, nil
}

// DeployDefaults is the option set used when defaults are requested: the
// configured user and secrets, the agent, and any standard key files in
// ~/.ssh when no identity was given.
func (s Settings) DeployDefaults() models.DeployOptions {
	opts := s.DeploySettings()
	opts.User = s.User
	identities := s.IdentityFiles
	if len(identities) == 0 {
		identities = defaultIdentityFiles()
	}
	opts.Credentials = models.Credentials{
		IdentityFiles: identities,
		Password:      s.Password,
		Passphrase:    s.Passphrase,
		UseAgent:      s.UseAgent,
	}
	return opts
}

// DeploySettings is the non-secret part of the defaults. It applies to
// every host whether or not defaults are requested.
func (s Settings) DeploySettings() models.DeployOptions {
	return models.DeployOptions{
		DistFile:  s.DistFile,
		Port:      s.Port,
		RemoteDir: s.RemoteDir,
		Activate:  s.Activate,
		Transfer:  s.Transfer,
	}
}

var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

func defaultIdentityFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var files []string
	for _, name := range defaultKeyNames {
		p := filepath.Join(home, ".ssh", name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	return files
}

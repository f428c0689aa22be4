package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fleetdeploy/internal/crypto"
	"fleetdeploy/internal/models"
)

// HostEntry is one host in the inventory file.
type HostEntry struct {
	Name          string   `yaml:"name"`
	Address       string   `yaml:"address"`
	Port          int      `yaml:"port,omitempty"`
	User          string   `yaml:"user,omitempty"`
	IdentityFiles []string `yaml:"identity_files,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	Passphrase    string   `yaml:"passphrase,omitempty"`
	Agent         bool     `yaml:"agent,omitempty"`
	DistFile      string   `yaml:"dist_file,omitempty"`
	RemoteDir     string   `yaml:"remote_dir,omitempty"`
	Activate      string   `yaml:"activate,omitempty"`
	Transfer      string   `yaml:"transfer,omitempty"`
}

// bindsOptions reports whether the entry carries its own connection
// settings. Entries without any are plain addresses and stay unresolved.
func (e HostEntry) bindsOptions() bool {
	return e.User != "" || len(e.IdentityFiles) > 0 || e.Password != "" || e.Agent
}

func (e HostEntry) options() models.DeployOptions {
	return models.DeployOptions{
		DistFile: e.DistFile,
		User:     e.User,
		Credentials: models.Credentials{
			IdentityFiles: e.IdentityFiles,
			Passphrase:    e.Passphrase,
			Password:      e.Password,
			UseAgent:      e.Agent,
		},
		RemoteDir: e.RemoteDir,
		Activate:  e.Activate,
		Transfer:  models.TransferMode(strings.ToLower(e.Transfer)),
	}
}

// Target converts the entry into a deploy target.
func (e HostEntry) Target() models.HostTarget {
	t := models.HostTarget{
		Name:     e.Name,
		Hostname: e.Address,
		Port:     e.Port,
	}
	if e.bindsOptions() {
		t.Binding = models.Bind(e.options())
	}
	return t
}

type inventoryFile struct {
	Hosts []HostEntry `yaml:"hosts"`
}

// Inventory is a named set of hosts with optional per-host options.
type Inventory struct {
	path  string
	hosts []HostEntry
}

// LoadInventory reads a YAML inventory. Sealed secrets are opened with
// cipher, which may be nil when the file holds none.
func LoadInventory(path string, cipher *crypto.Cipher) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	inv, err := ParseInventory(data, cipher)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	inv.path = path
	return inv, nil
}

// ParseInventory decodes inventory YAML. Unknown fields are rejected.
func ParseInventory(data []byte, cipher *crypto.Cipher) (*Inventory, error) {
	var f inventoryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	seen := make(map[string]bool, len(f.Hosts))
	for i := range f.Hosts {
		h := &f.Hosts[i]
		h.Address = strings.TrimSpace(h.Address)
		if h.Name == "" {
			h.Name = h.Address
		}
		if h.Name == "" {
			return nil, fmt.Errorf("hosts[%d]: name or address is required", i)
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("hosts[%d]: duplicate host name %q", i, h.Name)
		}
		seen[h.Name] = true
		if h.Port < 0 || h.Port > 65535 {
			return nil, fmt.Errorf("host %s: bad port %d", h.Name, h.Port)
		}

		var err error
		if h.Password, err = reveal(cipher, h.Password); err != nil {
			return nil, fmt.Errorf("host %s: password: %w", h.Name, err)
		}
		if h.Passphrase, err = reveal(cipher, h.Passphrase); err != nil {
			return nil, fmt.Errorf("host %s: passphrase: %w", h.Name, err)
		}
	}
	return &Inventory{hosts: f.Hosts}, nil
}

func reveal(cipher *crypto.Cipher, value string) (string, error) {
	if crypto.IsSealed(value) && cipher == nil {
		return "", fmt.Errorf("value is sealed; set %s_MASTER_KEY", EnvPrefix)
	}
	return cipher.Reveal(value)
}

func (inv *Inventory) Path() string {
	return inv.path
}

// Hosts returns the inventory entries in file order.
func (inv *Inventory) Hosts() []HostEntry {
	return inv.hosts
}

// FindHostByName looks an entry up by name.
func (inv *Inventory) FindHostByName(name string) (HostEntry, int, error) {
	for i, host := range inv.hosts {
		if host.Name == name {
			return host, i, nil
		}
	}
	return HostEntry{}, -1, fmt.Errorf("host %q not found", name)
}

// All returns a target for every inventory entry.
func (inv *Inventory) All() []models.HostTarget {
	targets := make([]models.HostTarget, 0, len(inv.hosts))
	for _, h := range inv.hosts {
		targets = append(targets, h.Target())
	}
	return targets
}

// Targets resolves command-line host arguments. An argument whose host part
// names an inventory entry takes that entry, with user and port from the
// argument layered on top; anything else is a plain [user@]host[:port].
// A nil inventory resolves every argument as a plain host.
func Targets(inv *Inventory, args []string) ([]models.HostTarget, error) {
	targets := make([]models.HostTarget, 0, len(args))
	for _, arg := range args {
		t, err := models.ParseTarget(arg)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			if entry, _, err := inv.FindHostByName(t.Hostname); err == nil {
				et := entry.Target()
				if t.User != "" {
					et.User = t.User
				}
				if t.Port != 0 {
					et.Port = t.Port
				}
				t = et
			}
		}
		targets = append(targets, t)
	}
	return targets, nil
}

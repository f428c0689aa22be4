package models

import "slices"

type TransferMode string

const (
	TransferSCP  TransferMode = "scp"
	TransferSFTP TransferMode = "sftp"
)

// Credentials is the secret material used to authenticate a session.
type Credentials struct {
	IdentityFiles []string
	Passphrase    string
	Password      string
	UseAgent      bool
}

// Empty reports whether no authentication method is configured.
func (c Credentials) Empty() bool {
	return len(c.IdentityFiles) == 0 && c.Password == "" && !c.UseAgent
}

func (c Credentials) clone() Credentials {
	c.IdentityFiles = slices.Clone(c.IdentityFiles)
	return c
}

// DeployOptions describes how to deploy to one host.
type DeployOptions struct {
	DistFile    string
	User        string
	Credentials Credentials
	Port        int
	RemoteDir   string
	Activate    string
	Transfer    TransferMode
}

// Clone returns a copy that shares no slices with o.
func (o DeployOptions) Clone() DeployOptions {
	o.Credentials = o.Credentials.clone()
	return o
}

// WithDefaults fills every empty field of o from d, credentials included.
// Credentials are taken as a whole: a partially configured set is kept.
func (o DeployOptions) WithDefaults(d DeployOptions) DeployOptions {
	out := o.WithSettings(d)
	if out.User == "" {
		out.User = d.User
	}
	if out.Credentials.Empty() {
		out.Credentials = d.Credentials.clone()
	}
	return out
}

// WithSettings fills the empty non-secret fields of o from d. User and
// credentials are left untouched.
func (o DeployOptions) WithSettings(d DeployOptions) DeployOptions {
	out := o.Clone()
	if out.DistFile == "" {
		out.DistFile = d.DistFile
	}
	if out.Port == 0 {
		out.Port = d.Port
	}
	if out.RemoteDir == "" {
		out.RemoteDir = d.RemoteDir
	}
	if out.Activate == "" {
		out.Activate = d.Activate
	}
	if out.Transfer == "" {
		out.Transfer = d.Transfer
	}
	return out
}

// Binding is the configuration state of a target: either options were bound
// to it explicitly or it is unresolved. The zero value is unresolved.
type Binding struct {
	resolved bool
	options  DeployOptions
}

func Bind(opts DeployOptions) Binding {
	return Binding{resolved: true, options: opts.Clone()}
}

func Unresolved() Binding {
	return Binding{}
}

// Options returns a copy of the bound options and whether any were bound.
func (b Binding) Options() (DeployOptions, bool) {
	if !b.resolved {
		return DeployOptions{}, false
	}
	return b.options.Clone(), true
}

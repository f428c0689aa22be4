// internal/models/host.go

package models

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// HostTarget is one deployment destination. Name is the label used in
// results and reports; Hostname is what gets dialed. User and Port override
// whatever the resolved options say when set.
type HostTarget struct {
	Name     string
	Hostname string
	Port     int
	User     string
	Binding  Binding
}

// Label returns the identifier used for this target in results.
func (t HostTarget) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Hostname
}

// ParseTarget builds a target from a command-line argument of the form
// [user@]host[:port]. IPv6 literals need brackets when a port is given.
func ParseTarget(arg string) (HostTarget, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return HostTarget{}, errors.New("host cannot be empty")
	}

	target := HostTarget{Name: arg}
	hostPart := arg
	if i := strings.LastIndex(arg, "@"); i >= 0 {
		target.User = arg[:i]
		hostPart = arg[i+1:]
		if target.User == "" {
			return HostTarget{}, fmt.Errorf("invalid host %q: empty user", arg)
		}
	}

	host, portStr, err := net.SplitHostPort(hostPart)
	if err != nil {
		// no port given
		host = strings.Trim(hostPart, "[]")
		portStr = ""
	}
	if host == "" {
		return HostTarget{}, fmt.Errorf("invalid host %q: empty hostname", arg)
	}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return HostTarget{}, fmt.Errorf("invalid host %q: bad port %q", arg, portStr)
		}
		target.Port = port
	}
	target.Hostname = host
	return target, nil
}

// Address joins hostname and port for dialing.
func (t HostTarget) Address(port int) string {
	return net.JoinHostPort(t.Hostname, strconv.Itoa(port))
}

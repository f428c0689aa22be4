// internal/deployerr/error.go

package deployerr

import (
	"errors"
	"fmt"
)

// ErrCredentials is wrapped by transports when the local credentials cannot
// be used (unreadable key file, nothing to offer). The deployer reports it as
// a ConfigurationError since no network activity took place.
var ErrCredentials = errors.New("unusable credentials")

// Kind classifies a per-host deploy failure.
type Kind int

const (
	ConfigurationError Kind = iota
	ConnectionError
	TransferError
	ActivationError
	Canceled
)

func (k Kind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case ConnectionError:
		return "connection"
	case TransferError:
		return "transfer"
	case ActivationError:
		return "activation"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure recorded for a single host. ExitStatus and Output are
// only meaningful for ActivationError.
type Error struct {
	Kind       Kind
	Host       string
	Message    string
	ExitStatus int
	Output     []byte
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Host, e.Kind, e.Message)
	if e.Kind == ActivationError && e.ExitStatus != 0 {
		msg = fmt.Sprintf("%s (exit status %d)", msg, e.ExitStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, host, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Host:    host,
		Message: message,
		Err:     err,
	}
}

// Activation builds an ActivationError. A negative exit status means the
// command never reported one (session failure, timeout).
func Activation(host string, exitStatus int, output []byte, err error) *Error {
	return &Error{
		Kind:       ActivationError,
		Host:       host,
		Message:    "remote command failed",
		ExitStatus: exitStatus,
		Output:     output,
		Err:        err,
	}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

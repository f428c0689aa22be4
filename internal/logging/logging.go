// Package logging builds the logr.Logger shared by the deployer and the SSH
// transport.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

const logFilePerms = 0o644

type Options struct {
	// Verbosity enables V(n) messages up to n.
	Verbosity int

	// File, when set, receives the log instead of Output.
	File string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a logger and a func that releases its log file, if any.
func New(opts Options) (logr.Logger, func() error, error) {
	closeFn := func() error { return nil }

	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerms)
		if err != nil {
			return logr.Discard(), closeFn, fmt.Errorf("cannot open log file: %w", err)
		}
		w = f
		closeFn = f.Close
	}

	stdr.SetVerbosity(opts.Verbosity)
	logger := stdr.NewWithOptions(log.New(w, "", log.LstdFlags), stdr.Options{})
	return logger.WithName("fleetdeploy"), closeFn, nil
}

package models

import (
	"time"

	"fleetdeploy/internal/deployerr"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// DeployResult is the outcome for one target. Err is nil on success.
type DeployResult struct {
	Host     string
	Err      *deployerr.Error
	Duration time.Duration
	Attempts int
}

func Success(host string, duration time.Duration, attempts int) DeployResult {
	return DeployResult{Host: host, Duration: duration, Attempts: attempts}
}

func Failure(host string, err *deployerr.Error, duration time.Duration, attempts int) DeployResult {
	return DeployResult{Host: host, Err: err, Duration: duration, Attempts: attempts}
}

func (r DeployResult) Outcome() Outcome {
	if r.Err == nil {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

func (r DeployResult) Succeeded() bool {
	return r.Err == nil
}

// AllSucceeded reports whether every result is a success. An empty slice
// counts as success.
func AllSucceeded(results []DeployResult) bool {
	for _, r := range results {
		if !r.Succeeded() {
			return false
		}
	}
	return true
}

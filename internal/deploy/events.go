package deploy

import "fleetdeploy/internal/models"

type EventKind int

const (
	HostStarted EventKind = iota
	StepStarted
	HostFinished
)

type Step int

const (
	StepResolve Step = iota
	StepConnect
	StepUpload
	StepActivate
)

func (s Step) String() string {
	switch s {
	case StepResolve:
		return "resolve"
	case StepConnect:
		return "connect"
	case StepUpload:
		return "upload"
	case StepActivate:
		return "activate"
	default:
		return "unknown"
	}
}

// Event reports progress for the target at Index. Result is set only for
// HostFinished.
type Event struct {
	Kind   EventKind
	Index  int
	Host   string
	Step   Step
	Result *models.DeployResult
}

// Observer receives events. With concurrency above one it is called from
// several goroutines at once.
type Observer func(Event)

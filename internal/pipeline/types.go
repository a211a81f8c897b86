// Package pipeline composes the clock, probe, runner, state, notify, and
// hygiene components into the daily DAG: deciding what to run on every
// tick, enforcing dependencies, retrying with backoff, and handling
// catch-up for steps whose window has already passed.
package pipeline

import (
	"time"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/clock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/probe"
)

// Kind distinguishes how a Step becomes eligible to run.
type Kind string

const (
	// WindowedJob is eligible only inside one of its windows, or after its
	// last window of the day has passed if CatchUp is set.
	WindowedJob Kind = "windowed_job"
	// Unconditional has no dependencies and fires at its configured
	// window regardless of any other step (e.g. the 16:00 hygiene sweep).
	Unconditional Kind = "unconditional"
	// DependencyGated carries no windows; it becomes eligible the first
	// tick after all of its dependencies are Done.
	DependencyGated Kind = "dependency_gated"
)

// Action is what running a Step actually does. Most steps launch an
// external executable; a process-hygiene step instead asks Hygiene to
// sweep the legacy application's process family, while still moving
// through the same Pending/Running/Done state machine as any other step.
type Action string

const (
	RunExecutable   Action = "run_executable"
	TerminateFamily Action = "terminate_family"
)

// ArtifactCheck decides whether a step's declared output actually landed,
// demoting an exit-0 run to a failure when it returns false.
type ArtifactCheck func(p *probe.Probe, pp paths.Paths, day time.Time) bool

// Step is one named unit of work in the daily DAG.
type Step struct {
	Name                     string
	Kind                     Kind
	Action                   Action
	Windows                  []clock.Window
	Dependencies             []string
	Executable               string
	Arguments                []string
	WorkDir                  string
	Timeout                  time.Duration
	MaxAttemptsPerWindow     int
	RequiredDaysOfWeek       []time.Weekday
	CatchUp                  bool
	ClosesApplicationOnExit  bool
	PostSuccessArtifactCheck ArtifactCheck `hash:"ignore"`
}

// Names returns the declared names of steps, in order.
func Names(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

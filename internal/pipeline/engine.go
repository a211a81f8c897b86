package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/clock"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/hygiene"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/notify"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/probe"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/runner"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/state"
)

// Engine is the Pipeline Engine: its only real entry point is Tick, invoked
// by the Supervisor on a cadence. Tick itself never blocks on a child
// process; runs are offloaded to goroutines that report back through
// completeStep and request an immediate re-tick via Wake.
type Engine struct {
	Steps    []Step
	Paths    paths.Paths
	Clock    clock.Clock
	Store    *state.Store
	Probe    *probe.Probe
	Runner   *runner.Runner
	Notifier *notify.Notifier
	Hygiene  *hygiene.Hygiene
	Log      *logrus.Entry

	// Day is the local calendar date the engine is currently operating
	// against; the Supervisor updates it at rollover via SetDay.
	Day time.Time

	mu            sync.Mutex
	inFlight      map[string]bool
	nextAttemptAt map[string]time.Time
	wake          chan struct{}

	// group bounds cross-step concurrency at globalParallelism via TryGo,
	// which never blocks: a step that can't get a slot this tick simply
	// stays Pending and is retried on the next one.
	group *errgroup.Group
}

// New returns an Engine ready to tick once Day has been set. globalParallelism
// is the cap on steps running concurrently across the whole pipeline; the
// config loader rejects values below 1, and New clamps any such value to 1.
func New(steps []Step, pp paths.Paths, clk clock.Clock, store *state.Store, pr *probe.Probe, rn *runner.Runner, notifier *notify.Notifier, hy *hygiene.Hygiene, log *logrus.Entry, globalParallelism int) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if globalParallelism < 1 {
		globalParallelism = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(globalParallelism)
	return &Engine{
		Steps:         steps,
		Paths:         pp,
		Clock:         clk,
		Store:         store,
		Probe:         pr,
		Runner:        rn,
		Notifier:      notifier,
		Hygiene:       hy,
		Log:           log,
		inFlight:      make(map[string]bool),
		nextAttemptAt: make(map[string]time.Time),
		wake:          make(chan struct{}, 1),
		group:         g,
	}
}

// SetDay updates the Day the engine resolves artifact/log folders and
// PIPELINE_DATE against; called by the Supervisor at startup and at each
// midnight rollover. It also clears per-day backoff/in-flight bookkeeping
// left over from the previous day.
func (e *Engine) SetDay(day time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Day = day
	e.inFlight = make(map[string]bool)
	e.nextAttemptAt = make(map[string]time.Time)
}

// Wake returns a channel the Supervisor can select on for an immediate
// re-tick request raised by a step completing between scheduled ticks.
func (e *Engine) Wake() <-chan struct{} {
	return e.wake
}

func (e *Engine) requestWake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// ReconcileAfterRestart handles E3: a step the Journal shows Running at
// startup whose process cannot possibly still be tracked (the in-memory
// runner registry is always empty right after a restart) is orphaned. It is
// returned to Pending for a retry within the remaining window, unless its
// attempt budget is already exhausted, in which case it is marked Failed.
func (e *Engine) ReconcileAfterRestart(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.Steps {
		rec := e.Store.Get(s.Name)
		if rec == nil || rec.State != state.Running {
			continue
		}
		outcome := state.RunOutcome{
			ExitCode:     -1,
			FinishedAt:   now,
			ErrorMessage: "orphaned: process no longer running after restart",
		}
		if rec.AttemptsToday >= s.MaxAttemptsPerWindow {
			if err := e.Store.MarkFailed(s.Name, outcome); err != nil {
				e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist orphaned-step Failed state")
			}
			e.notifyFailure(s)
			continue
		}
		if err := e.Store.MarkRetryPending(s.Name, outcome); err != nil {
			e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist orphaned-step retry state")
		}
	}
}

// Tick evaluates every step once against now. It is strictly serialized by
// mu and is expected to complete in milliseconds: it never waits on a
// child process, only reads Journal/filesystem state and launches
// goroutines for anything that needs to run.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	evals := e.evaluateWindowsLocked(now)
	for _, s := range e.Steps {
		e.evaluateStepLocked(ctx, s, now, evals)
	}
}

func (e *Engine) evaluateWindowsLocked(now time.Time) map[string]clock.Evaluation {
	evals := make(map[string]clock.Evaluation, len(e.Steps))
	for _, s := range e.Steps {
		if s.Kind == DependencyGated {
			continue
		}
		evals[s.Name] = clock.Evaluate(now, s.Windows, s.RequiredDaysOfWeek)
	}
	return evals
}

func (e *Engine) evaluateStepLocked(ctx context.Context, s Step, now time.Time, evals map[string]clock.Evaluation) {
	rec := e.Store.Get(s.Name)
	if rec == nil {
		return
	}
	switch rec.State {
	case state.Done, state.Skipped, state.Running, state.Failed:
		return
	}
	if e.inFlight[s.Name] {
		return
	}

	if e.dependenciesFailedOrSkipped(s) {
		if err := e.Store.MarkSkipped(s.Name); err != nil {
			e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist Skipped state")
		}
		return
	}
	if !e.dependenciesDone(s) {
		return
	}

	if rec.AttemptsToday > 0 {
		if nextAt, ok := e.nextAttemptAt[s.Name]; ok && now.Before(nextAt) {
			return
		}
	}

	if !e.eligibleLocked(s, evals) {
		return
	}

	e.startStepLocked(ctx, s, now)
}

func (e *Engine) eligibleLocked(s Step, evals map[string]clock.Evaluation) bool {
	if s.Kind == DependencyGated {
		return true
	}
	switch evals[s.Name] {
	case clock.InWindow:
		return true
	case clock.Missed:
		return s.Kind == WindowedJob && s.CatchUp
	default:
		return false
	}
}

func (e *Engine) dependenciesFailedOrSkipped(s Step) bool {
	for _, dep := range s.Dependencies {
		if rec := e.Store.Get(dep); rec != nil && (rec.State == state.Failed || rec.State == state.Skipped) {
			return true
		}
	}
	return false
}

func (e *Engine) dependenciesDone(s Step) bool {
	for _, dep := range s.Dependencies {
		rec := e.Store.Get(dep)
		if rec == nil || rec.State != state.Done {
			return false
		}
	}
	return true
}

func (e *Engine) startStepLocked(ctx context.Context, s Step, now time.Time) {
	if err := e.Store.MarkStarted(s.Name, now); err != nil {
		e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist Running state, will retry next tick")
		return
	}
	rec := e.Store.Get(s.Name)
	attempt := 1
	if rec != nil {
		attempt = rec.AttemptsToday
	}

	accepted := e.group.TryGo(func() error {
		e.runAsync(ctx, s, attempt, now)
		return nil
	})
	if !accepted {
		// Global parallelism cap reached this tick; undo the Running mark
		// and let the step retry on the next tick once a slot frees up.
		if err := e.Store.MarkPendingAgain(s.Name); err != nil {
			e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to revert Running state after hitting global parallelism cap")
		}
		return
	}
	e.inFlight[s.Name] = true
}

func (e *Engine) runAsync(ctx context.Context, s Step, attempt int, startedAt time.Time) {
	var result runner.Result
	var err error

	switch s.Action {
	case TerminateFamily:
		err = e.Hygiene.TerminateFamily("scheduled hygiene: " + s.Name)
	default:
		logFile := e.Paths.StepLogFile(e.Day, s.Name, attempt)
		if mkErr := runner.EnsureLogDir(logFile); mkErr != nil {
			e.Log.WithError(mkErr).WithField("step", s.Name).Warn("pipeline: could not create step log directory")
		}
		workDir := s.WorkDir
		if workDir == "" {
			workDir = e.Paths.Root
		}
		result, err = e.Runner.Run(ctx, runner.Spec{
			StepName:     s.Name,
			Executable:   s.Executable,
			Arguments:    s.Arguments,
			WorkDir:      workDir,
			Timeout:      s.Timeout,
			Attempt:      attempt,
			PipelineDate: paths.DateSuffix(e.Day),
			PipelineRoot: e.Paths.Root,
			LogFile:      logFile,
		})
	}

	e.completeStep(s, result, err, startedAt)
}

func (e *Engine) completeStep(s Step, result runner.Result, runErr error, startedAt time.Time) {
	finishedAt := e.Clock.Now()

	success := runErr == nil && result.ExitCode == 0
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	if success && s.PostSuccessArtifactCheck != nil {
		if !s.PostSuccessArtifactCheck(e.Probe, e.Paths, e.Day) {
			success = false
			errMsg = "post-success artifact check failed"
		}
	}

	outcome := state.RunOutcome{
		ExitCode:           result.ExitCode,
		FinishedAt:         finishedAt,
		KilledDueToTimeout: result.KilledDueToTimeout,
		ErrorMessage:       errMsg,
	}

	if success {
		if err := e.Store.MarkDone(s.Name, outcome); err != nil {
			e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist Done state")
		}
	} else {
		rec := e.Store.Get(s.Name)
		exhausted := rec == nil || rec.AttemptsToday >= s.MaxAttemptsPerWindow
		if exhausted {
			if err := e.Store.MarkFailed(s.Name, outcome); err != nil {
				e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist Failed state")
			}
			e.notifyFailure(s)
		} else {
			if err := e.Store.MarkRetryPending(s.Name, outcome); err != nil {
				e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: failed to persist retry state")
			}
			attemptsSoFar := 1
			if rec != nil {
				attemptsSoFar = rec.AttemptsToday
			}
			e.setBackoff(s.Name, attemptsSoFar, finishedAt)
		}
	}

	if s.ClosesApplicationOnExit {
		if err := e.Hygiene.TerminateFamily("closes_application_on_exit: " + s.Name); err != nil {
			e.Log.WithError(err).WithField("step", s.Name).Warn("pipeline: post-step hygiene sweep failed")
		}
	}

	e.clearInFlight(s.Name)
	e.requestWake()
}

func (e *Engine) notifyFailure(s Step) {
	if e.Notifier == nil {
		return
	}
	day := e.Day.Format("2006-01-02")
	alertKey := fmt.Sprintf("failed:%s:%s", day, s.Name)
	e.Notifier.Send(context.Background(), notify.StepFailed, alertKey,
		fmt.Sprintf("step %s failed", s.Name),
		fmt.Sprintf("step %q exhausted its retries for %s", s.Name, day))
}

func (e *Engine) setBackoff(name string, attemptsSoFar int, from time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextAttemptAt[name] = from.Add(backoffDelay(attemptsSoFar))
}

func (e *Engine) clearInFlight(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, name)
}

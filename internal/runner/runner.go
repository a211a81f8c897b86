// Package runner launches external step executables with a timeout,
// process-tree termination on expiry or cancellation, and bounded
// stdout/stderr capture.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ringBufferCapacity is the "last N KB" the spec requires for journal/alert
// inclusion; full output always also goes to the per-step log file.
const ringBufferCapacity = 16 * 1024

// killGrace is how long a process tree gets to exit after a graceful-stop
// signal before it is forcefully killed, both on timeout expiry and on
// Supervisor shutdown.
const killGrace = 5 * time.Second

// Spec describes one invocation of an external step executable.
type Spec struct {
	StepName     string
	Executable   string
	Arguments    []string
	WorkDir      string
	Timeout      time.Duration
	Attempt      int
	PipelineDate string // DDmon, passed as PIPELINE_DATE
	PipelineRoot string // absolute root_dir, passed as PIPELINE_ROOT
	LogFile      string // full path to the per-attempt log file
}

// Result is the outcome of a single run.
type Result struct {
	ExitCode           int
	Duration           time.Duration
	StdoutTail         string
	StderrTail         string
	KilledDueToTimeout bool
}

// Runner launches external programs on behalf of the Pipeline Engine.
type Runner struct {
	Log *logrus.Entry
}

// New returns a Runner that logs through log (a nil log falls back to a
// standard logger instance).
func New(log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{Log: log}
}

// Run spawns spec.Executable and blocks until it exits, its timeout
// expires, or ctx is cancelled (Supervisor shutdown). Either expiry or
// cancellation terminates the whole process tree, not just the direct
// child — crucial for UI-automation helpers that fan out subprocesses.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	invocationID := uuid.NewString()
	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Executable, spec.Arguments...)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PIPELINE_DATE=%s", spec.PipelineDate),
		fmt.Sprintf("PIPELINE_ROOT=%s", spec.PipelineRoot),
		fmt.Sprintf("PIPELINE_STEP=%s", spec.StepName),
		fmt.Sprintf("PIPELINE_ATTEMPT=%d", spec.Attempt),
		fmt.Sprintf("PIPELINE_RUN_ID=%s", invocationID),
	)
	setProcessGroup(cmd)

	stdoutRing := newRingBuffer(ringBufferCapacity)
	stderrRing := newRingBuffer(ringBufferCapacity)

	logWriter, logErr := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if logErr != nil {
		r.Log.WithError(logErr).WithField("step", spec.StepName).Warn("runner: could not open per-step log file, continuing without it")
		logWriter = nil
	} else {
		defer logWriter.Close()
	}

	cmd.Stdout = teeWriter(stdoutRing, logWriter)
	cmd.Stderr = teeWriter(stderrRing, logWriter)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %s: %w", spec.Executable, err)
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	killedDueToTimeout := runCtx.Err() == context.DeadlineExceeded
	if killedDueToTimeout || ctx.Err() != nil {
		killProcessTree(cmd.Process, killGrace, r.Log)
	}

	result := Result{
		Duration:           duration,
		StdoutTail:         stdoutRing.String(),
		StderrTail:         stderrRing.String(),
		KilledDueToTimeout: killedDueToTimeout,
	}
	result.ExitCode = exitCodeFromError(waitErr)

	return result, nil
}

// teeWriter returns an io.Writer fanning out to every non-nil destination.
func teeWriter(dests ...io.Writer) io.Writer {
	var writers []io.Writer
	for _, d := range dests {
		if d != nil {
			writers = append(writers, d)
		}
	}
	return io.MultiWriter(writers...)
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	return platformExitCode(err)
}

// EnsureLogDir creates the directory containing logFile if needed.
func EnsureLogDir(logFile string) error {
	return os.MkdirAll(filepath.Dir(logFile), 0o755)
}

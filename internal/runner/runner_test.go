package runner

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fixture not meaningful on windows")
	}
}

func TestRunSuccessExitCodeZero(t *testing.T) {
	skipOnWindows(t)
	r := New(nil)
	logFile := filepath.Join(t.TempDir(), "step.log")
	require.NoError(t, EnsureLogDir(logFile))

	result, err := r.Run(context.Background(), Spec{
		StepName:   "dl_am",
		Executable: "/bin/sh",
		Arguments:  []string{"-c", "echo hello; exit 0"},
		WorkDir:    t.TempDir(),
		LogFile:    logFile,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.StdoutTail, "hello")
	assert.False(t, result.KilledDueToTimeout)
}

func TestRunNonZeroExit(t *testing.T) {
	skipOnWindows(t)
	r := New(nil)
	logFile := filepath.Join(t.TempDir(), "step.log")
	require.NoError(t, EnsureLogDir(logFile))

	result, err := r.Run(context.Background(), Spec{
		StepName:   "merge",
		Executable: "/bin/sh",
		Arguments:  []string{"-c", "exit 7"},
		WorkDir:    t.TempDir(),
		LogFile:    logFile,
	})

	require.NoError(t, err)
	assert.Equal(t, 7, result.ExitCode)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	skipOnWindows(t)
	r := New(nil)
	logFile := filepath.Join(t.TempDir(), "step.log")
	require.NoError(t, EnsureLogDir(logFile))

	result, err := r.Run(context.Background(), Spec{
		StepName:   "upload",
		Executable: "/bin/sh",
		Arguments:  []string{"-c", "sleep 10"},
		WorkDir:    t.TempDir(),
		Timeout:    200 * time.Millisecond,
		LogFile:    logFile,
	})

	require.NoError(t, err)
	assert.True(t, result.KilledDueToTimeout)
}

func TestRingBufferCapsOutput(t *testing.T) {
	rb := newRingBuffer(10)
	_, _ = rb.Write([]byte("0123456789ABCDEFGHIJ"))
	assert.Equal(t, "ABCDEFGHIJ", rb.String())
}

package supervisor

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/config"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/pipeline"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fixture not meaningful on windows")
	}
}

// movableClock lets a test advance "now" between calls without sleeping.
type movableClock struct{ at time.Time }

func (c *movableClock) Now() time.Time { return c.at }

func newTestConfig(dir string, steps []pipeline.Step) *config.Config {
	return &config.Config{
		Paths:             paths.New(dir, filepath.Join(dir, "state"), filepath.Join(dir, "log")),
		TickInterval:      20 * time.Millisecond,
		GlobalParallelism: 2,
		HeartbeatMinute:   0,
		Steps:             steps,
	}
}

func TestOpen_AcquiresLockAndSeedsJournal(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	clk := &movableClock{at: day}
	steps := []pipeline.Step{{Name: "merge", Kind: pipeline.DependencyGated, MaxAttemptsPerWindow: 1}}

	sup, err := Open(newTestConfig(dir, steps), clk, nil)
	require.NoError(t, err)
	defer sup.Close()

	j := sup.Journal()
	assert.Equal(t, "2026-07-29", j.Date)
	assert.Contains(t, j.Steps, "merge")
}

func TestOpen_RefusesWhenLockHeld(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	clk := &movableClock{at: day}
	cfg := newTestConfig(dir, nil)

	first, err := Open(cfg, clk, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(cfg, clk, nil)
	assert.Error(t, err)
}

func TestRun_TicksStepToDoneThenStopsOnCancel(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	day := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	clk := &movableClock{at: day}
	steps := []pipeline.Step{{
		Name: "merge", Kind: pipeline.DependencyGated, Action: pipeline.RunExecutable,
		Executable: "/bin/sh", Arguments: []string{"-c", "exit 0"},
		MaxAttemptsPerWindow: 1,
	}}

	sup, err := Open(newTestConfig(dir, steps), clk, nil)
	require.NoError(t, err)
	defer sup.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	runErr := sup.Run(ctx)
	require.NoError(t, runErr)

	rec := sup.Journal().Steps["merge"]
	require.NotNil(t, rec)
	assert.Equal(t, "done", string(rec.State))
}

func TestRollover_StartsNewJournalAndResetsEngineDay(t *testing.T) {
	dir := t.TempDir()
	day1 := time.Date(2026, 7, 29, 23, 59, 0, 0, time.UTC)
	clk := &movableClock{at: day1}
	steps := []pipeline.Step{{Name: "merge", Kind: pipeline.DependencyGated, MaxAttemptsPerWindow: 1}}

	sup, err := Open(newTestConfig(dir, steps), clk, nil)
	require.NoError(t, err)
	defer sup.Close()

	day2 := time.Date(2026, 7, 30, 0, 1, 0, 0, time.UTC)
	clk.at = day2

	sup.runTick(context.Background())

	j := sup.Journal()
	assert.Equal(t, "2026-07-30", j.Date)
}

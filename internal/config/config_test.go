package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidConfigNormalizesSteps(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "job.sh")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
global_parallelism: 2
steps:
  - name: dl_am
    kind: windowed_job
    executable: ` + exe + `
    windows:
      - start: "09:00"
        end: "09:10"
    max_attempts_per_window: 3
    catch_up: true
  - name: merge
    kind: dependency_gated
    dependencies: [dl_am]
    executable: ` + exe + `
`
	path := writeConfig(t, dir, body)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Steps, 2)

	assert.Equal(t, "dl_am", cfg.Steps[0].Name)
	assert.Equal(t, 9*60, cfg.Steps[0].Windows[0].StartMinute)
	assert.Equal(t, 9*60+10, cfg.Steps[0].Windows[0].EndMinute)
	assert.True(t, cfg.Steps[0].CatchUp)
	assert.Equal(t, 2, cfg.GlobalParallelism)
	assert.NotEmpty(t, cfg.Fingerprint)
}

func TestLoad_RejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
steps:
  - name: merge
    kind: not_a_real_kind
`
	path := writeConfig(t, dir, body)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
steps:
  - name: a
    kind: dependency_gated
    dependencies: [b]
  - name: b
    kind: dependency_gated
    dependencies: [a]
`
	path := writeConfig(t, dir, body)

	_, err := Load(path)
	assert.ErrorContains(t, err, "cycle")
}

func TestLoad_RejectsMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
steps:
  - name: merge
    kind: dependency_gated
    executable: ` + filepath.Join(dir, "does-not-exist.sh") + `
`
	path := writeConfig(t, dir, body)

	_, err := Load(path)
	assert.ErrorContains(t, err, "not reachable")
}

func TestLoad_DefaultsGlobalParallelismWhenOmitted(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "job.sh")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
steps:
  - name: merge
    kind: dependency_gated
    executable: ` + exe + `
`
	path := writeConfig(t, dir, body)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.GlobalParallelism)
}

func TestLoad_RejectsZeroGlobalParallelism(t *testing.T) {
	dir := t.TempDir()
	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
global_parallelism: 0
steps:
  - name: merge
    kind: dependency_gated
`
	path := writeConfig(t, dir, body)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsOverlappingWindows(t *testing.T) {
	dir := t.TempDir()
	body := `
root_dir: ` + dir + `
state_dir: ` + filepath.Join(dir, "state") + `
log_dir: ` + filepath.Join(dir, "log") + `
steps:
  - name: dl_am
    kind: windowed_job
    windows:
      - start: "09:00"
        end: "09:30"
      - start: "09:15"
        end: "09:45"
`
	path := writeConfig(t, dir, body)

	_, err := Load(path)
	assert.Error(t, err)
}

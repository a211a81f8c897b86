package notify

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/runner"
)

type fakeDedup struct {
	sent map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{sent: make(map[string]bool)} }

func (f *fakeDedup) MarkAlertSent(alertKey string) (bool, error) {
	if f.sent[alertKey] {
		return false, nil
	}
	f.sent[alertKey] = true
	return true, nil
}

func TestSendSuppressesDuplicateAlert(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fixture not meaningful on windows")
	}
	dir := t.TempDir()
	dedup := newFakeDedup()
	// The stand-in mailer appends one line to marker per delivery.
	marker := filepath.Join(dir, "sent.txt")
	n := New(runner.New(nil), "/bin/sh", []string{"-c", "echo sent >> '" + marker + "'"}, dir, filepath.Join(dir, "notify.log"), dedup, nil)

	n.Send(context.Background(), StepFailed, "merge:failed", "merge failed", "body")
	require.True(t, dedup.sent["merge:failed"])

	// A second send with the same key is suppressed: the mailer runs once.
	n.Send(context.Background(), StepFailed, "merge:failed", "merge failed", "body")
	sent, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "sent\n", string(sent))
}

func TestSendExpandsTemplatePlaceholders(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based fixture not meaningful on windows")
	}
	dir := t.TempDir()
	dedup := newFakeDedup()
	// Use /bin/sh as a stand-in mailer that just echoes its args so the
	// test doesn't depend on a real mail transport being configured.
	n := New(runner.New(nil), "/bin/sh", []string{"-c", `echo "$@"`, "--", "{{kind}}", "{{subject}}", "{{body}}"}, dir, filepath.Join(dir, "notify.log"), dedup, nil)

	n.Send(context.Background(), DailyReport, "daily:2026-07-29", "Daily Summary", "all steps done")
	assert.True(t, dedup.sent["daily:2026-07-29"])

	logged, err := os.ReadFile(filepath.Join(dir, "notify.log"))
	require.NoError(t, err)
	assert.Equal(t, "daily_report Daily Summary all steps done\n", string(logged))
}

package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
)

func newTestStore(t *testing.T, today time.Time) *Store {
	t.Helper()
	dir := t.TempDir()
	p := paths.New(filepath.Join(dir, "root"), filepath.Join(dir, "state"), filepath.Join(dir, "logs"))

	newFn := func() *Journal {
		return NewJournal(today.Format("2006-01-02"), []string{"dl_am", "merge"}, nil, "")
	}
	store, err := Open(p, today, newFn, nil, nil)
	require.NoError(t, err)
	return store
}

func TestOpenCreatesJournalWhenMissing(t *testing.T) {
	today := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, today)

	rec := store.Get("dl_am")
	require.NotNil(t, rec)
	require.Equal(t, Pending, rec.State)
}

func TestMarkStartedThenDone(t *testing.T) {
	today := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, today)

	require.NoError(t, store.MarkStarted("dl_am", today))
	rec := store.Get("dl_am")
	require.Equal(t, Running, rec.State)
	require.Equal(t, 1, rec.AttemptsToday)

	require.NoError(t, store.MarkDone("dl_am", RunOutcome{ExitCode: 0, FinishedAt: today.Add(time.Minute)}))
	rec = store.Get("dl_am")
	require.Equal(t, Done, rec.State)
}

func TestDoneNeverRegressesToSkipped(t *testing.T) {
	today := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, today)

	require.NoError(t, store.MarkStarted("dl_am", today))
	require.NoError(t, store.MarkDone("dl_am", RunOutcome{ExitCode: 0, FinishedAt: today}))
	require.NoError(t, store.MarkSkipped("dl_am"))

	rec := store.Get("dl_am")
	require.Equal(t, Done, rec.State)
}

func TestAlertSentOnlyOnce(t *testing.T) {
	today := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, today)

	first, err := store.MarkAlertSent("merge:failed")
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.MarkAlertSent("merge:failed")
	require.NoError(t, err)
	require.False(t, second)
}

func TestAnyAlertSentToday(t *testing.T) {
	today := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, today)

	require.False(t, store.AnyAlertSentToday())

	_, err := store.MarkAlertSent("startup_notice:2026-07-29")
	require.NoError(t, err)
	require.True(t, store.AnyAlertSentToday())
}

func TestRolloverRenamesAndSeedsFreshJournal(t *testing.T) {
	today := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	store := newTestStore(t, today)
	require.NoError(t, store.MarkStarted("dl_am", today))

	tomorrow := today.AddDate(0, 0, 1)
	fresh := NewJournal(tomorrow.Format("2006-01-02"), []string{"dl_am", "merge"}, nil, "")
	require.NoError(t, store.Rollover(fresh))
	require.FileExists(t, store.paths.JournalFileFor(today))

	j := store.Journal()
	require.Equal(t, tomorrow.Format("2006-01-02"), j.Date)
	require.Equal(t, Pending, j.Steps["dl_am"].State)
}

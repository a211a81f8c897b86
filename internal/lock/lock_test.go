package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireFailsAgainstLivePeer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.lock")

	info := Info{PID: os.Getpid(), StartedAt: time.Now(), Host: "host", Program: programIdentity()}
	data, err := json.MarshalIndent(info, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Acquire(path)
	require.Error(t, err)
	var peerErr *ErrHeldByPeer
	require.ErrorAs(t, err, &peerErr)
	assert.Equal(t, os.Getpid(), peerErr.Peer.PID)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.lock")

	// A PID far outside any real process table is never alive.
	info := Info{PID: 999999, StartedAt: time.Now(), Host: "host", Program: programIdentity()}
	data, err := json.MarshalIndent(info, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestAcquireReclaimsLockFromDifferentProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.lock")

	info := Info{PID: os.Getpid(), StartedAt: time.Now(), Host: "host", Program: "/some/other/binary"}
	data, err := json.MarshalIndent(info, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, l)
}

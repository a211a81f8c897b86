package hygiene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTerminateFamilyGracefulThenForceful(t *testing.T) {
	var calls []bool // each entry is the forceful flag for one invocation

	h := New([]string{"legacy-app.exe"}, time.Millisecond, nil)
	h.run = func(patterns []string, forceful bool) {
		assert.Equal(t, []string{"legacy-app.exe"}, patterns)
		calls = append(calls, forceful)
	}

	require := assert.New(t)
	err := h.TerminateFamily("scheduled 16:00 sweep")
	require.NoError(err)
	require.Equal([]bool{false, true}, calls)
}

func TestNewDefaultsGrace(t *testing.T) {
	h := New(nil, 0, nil)
	assert.Equal(t, 5*time.Second, h.Grace)
}

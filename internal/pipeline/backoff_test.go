package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_FirstAttemptIsAroundInitial(t *testing.T) {
	d := backoffDelay(1)
	assert.GreaterOrEqual(t, d, initialBackoff)
	assert.Less(t, d, initialBackoff*2)
}

func TestBackoffDelay_DoublesBetweenAttempts(t *testing.T) {
	d2 := backoffDelay(2)
	assert.GreaterOrEqual(t, d2, initialBackoff*2)
	assert.Less(t, d2, initialBackoff*3)
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	d := backoffDelay(20)
	assert.LessOrEqual(t, d, maxBackoff+maxBackoff/5)
	assert.GreaterOrEqual(t, d, maxBackoff)
}

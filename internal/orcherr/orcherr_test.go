package orcherr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigErrorIsFatal(t *testing.T) {
	err := ConfigError("missing root_dir").Build()
	assert.True(t, err.IsFatal())
	assert.Equal(t, CategoryConfig, err.Category())
}

func TestChildProcessErrorIsRetryableNotFatal(t *testing.T) {
	err := ChildProcessError("exit code 1").Build()
	assert.False(t, err.IsFatal())
	assert.Equal(t, RetryBackoff, err.RetryPolicy())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CategoryStateIO, "journal write failed").NextTick().Build()
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, RetryNextTick, err.RetryPolicy())
}

func TestIsFatalHelper(t *testing.T) {
	assert.True(t, IsFatal(LockError("lock held by peer").Build()))
	assert.False(t, IsFatal(NotifierError("mailer unreachable").Build()))
	assert.False(t, IsFatal(errors.New("plain error")))
}

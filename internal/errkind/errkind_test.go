package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(Fatal, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fatal")
	assert.Contains(t, err.Error(), "boom")
}

func TestIs(t *testing.T) {
	err := New(Escalating, errors.New("too many bad frames"))

	assert.True(t, Is(err, Escalating))
	assert.False(t, Is(err, Fatal))
	assert.False(t, Is(errors.New("plain"), Fatal))
}

func TestNewf_Wraps(t *testing.T) {
	cause := errors.New("no such device")
	err := Newf(Fatal, "opening tty %q failed: %w", "/dev/ttyACM0", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/dev/ttyACM0")
}

package upipe

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("ubuf.Resize", BadArg, "negative skip exceeds margin")

	assert.Equal(t, "ubuf.Resize", err.Op)
	assert.Equal(t, BadArg, err.Code)
	assert.Equal(t, "upipe: negative skip exceeds margin (op=ubuf.Resize)", err.Error())
}

func TestPipeError(t *testing.T) {
	err := NewPipeError("upipe.Control", "xfer", WrongState, "not attached")

	assert.Equal(t, "xfer", err.Pipe)
	assert.Equal(t, "upipe: not attached (op=upipe.Control)", err.Error())
}

func TestWrapExternal(t *testing.T) {
	err := WrapExternal("upump.Run", syscall.EINTR)

	require.Equal(t, ExternalError, err.Code)
	assert.Equal(t, syscall.EINTR, err.Errno)
	assert.True(t, IsErrno(err, syscall.EINTR))
}

func TestWrapExternalPreservesStructuredError(t *testing.T) {
	inner := NewError("ubuf.Alloc", AllocError, "region exhausted")
	err := WrapExternal("uref.Alloc", inner)

	assert.Equal(t, AllocError, err.Code, "WrapExternal should preserve the inner structured error's code")
}

func TestIsCode(t *testing.T) {
	err := NewError("split.ProvideURL", WrongState, "not in NEED_URL")

	assert.True(t, IsCode(err, WrongState))
	assert.False(t, IsCode(err, BadArg))
	assert.False(t, IsCode(nil, WrongState))
}

func TestErrUnsupportedCode(t *testing.T) {
	assert.Equal(t, Unsupported, ErrUnsupported.Code)
}

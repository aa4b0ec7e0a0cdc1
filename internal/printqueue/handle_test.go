package printqueue

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_ReleaseOnce(t *testing.T) {
	calls := 0
	h := NewHandle("x", func() error {
		calls++
		return errors.New("already gone")
	})

	err1 := h.Release()
	err2 := h.Release()
	assert.Equal(t, 1, calls)
	assert.EqualError(t, err1, "already gone")
	assert.Equal(t, err1, err2)
}

func TestTempFile(t *testing.T) {
	h, err := TempFile(t.TempDir(), "label-*.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)

	data, err := os.ReadFile(h.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))

	require.NoError(t, h.Release())
	_, err = os.Stat(h.Path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, h.Release())
}

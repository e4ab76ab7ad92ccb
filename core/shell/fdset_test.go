package shell

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFdSet(t *testing.T) {
	var fds fdSet

	r, w, err := os.Pipe()
	require.NoError(t, err)
	fds.Add(r)
	fds.Add(w)
	fds.Add(nil)
	assert.Equal(t, 2, fds.Len())

	assert.NoError(t, fds.Release(w))
	assert.Equal(t, 1, fds.Len())

	// With the only writer gone the reader sees EOF.
	n, _ := r.Read(make([]byte, 1))
	assert.Equal(t, 0, n)

	assert.NoError(t, fds.Close())
	assert.Equal(t, 0, fds.Len())
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)

	// Closing twice is harmless.
	assert.NoError(t, fds.Close())
}

func TestFdSet_releaseUnowned(t *testing.T) {
	var fds fdSet

	f, err := os.CreateTemp(t.TempDir(), "fd")
	require.NoError(t, err)
	defer f.Close()

	assert.NoError(t, fds.Release(f))
	assert.NoError(t, fds.Release(nil))

	_, err = f.WriteString("still open")
	assert.NoError(t, err)
}

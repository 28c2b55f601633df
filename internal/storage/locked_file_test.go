package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockedFileExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.enc")

	a, err := OpenLockedFile(path)
	require.NoError(t, err)

	_, err = OpenLockedFile(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	b, err := OpenLockedFile(path)
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestLockedFileReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "store.enc")
	f, err := OpenLockedFile(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Read()
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, f.Write([]byte("one")))
	require.NoError(t, f.Write([]byte("two")))
	got, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp file left behind")
	}
}

func TestLockedFileClosed(t *testing.T) {
	f, err := OpenLockedFile(filepath.Join(t.TempDir(), "x"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.ErrorIs(t, f.Write([]byte("x")), os.ErrClosed)
}

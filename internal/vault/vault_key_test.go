package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/storage"
)

func TestOpenWithWrongKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passwords.enc")
	v, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, v.AddEntry("example.com", "alice", "secret", ""))
	require.NoError(t, v.Close())

	_, err = Open(path, WithKey(crypto.GenerateKey()))
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)

	require.NoError(t, os.WriteFile(path+".key", []byte("garbage"), 0o600))
	_, err = Open(path)
	require.ErrorIs(t, err, crypto.ErrCorruptKey)
}

func TestOpenWithDerivedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passwords.enc")
	params, err := crypto.DefaultKDFParams()
	require.NoError(t, err)
	params.Memory, params.Time, params.P = 8*1024, 1, 1

	key, err := crypto.DeriveKey([]byte("login password"), params)
	require.NoError(t, err)
	v, err := Open(path, WithKey(key))
	require.NoError(t, err)
	require.NoError(t, v.AddEntry("example.com", "alice", "secret", ""))
	require.NoError(t, v.Close())

	_, err = os.Stat(path + ".key")
	assert.ErrorIs(t, err, os.ErrNotExist, "derived keys are never persisted")

	again, err := crypto.DeriveKey([]byte("login password"), params)
	require.NoError(t, err)
	v, err = Open(path, WithKey(again))
	require.NoError(t, err)
	defer v.Close()
	pw, err := v.GetPassword("example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
}

func TestOpenIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwords.enc")
	v, err := Open(path)
	require.NoError(t, err)
	_, err = Open(path)
	require.ErrorIs(t, err, storage.ErrLocked)
	require.NoError(t, v.Close())

	v, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, v.Close())
}

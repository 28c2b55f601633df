package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/storage"
	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

func newStore(t *testing.T) storage.BlobStore {
	t.Helper()
	s, err := storage.NewFileBlobStore(filepath.Join(t.TempDir(), "remote"))
	require.NoError(t, err)
	return s
}

func TestPushPull(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "passwords.enc")
	keyPath := path + ".key"

	v, err := vault.Open(path)
	require.NoError(t, err)
	require.NoError(t, v.AddEntry("a.com", "u", "p1", ""))
	require.NoError(t, v.Close())

	c := New(newStore(t), "alice-vault")
	require.NoError(t, c.Push(ctx, path))
	pushed, err := os.ReadFile(path)
	require.NoError(t, err)

	// diverge locally, then restore the pushed copy
	v, err = vault.Open(path)
	require.NoError(t, err)
	require.NoError(t, v.AddEntry("b.com", "u", "p2", ""))
	require.NoError(t, v.Close())

	require.NoError(t, c.Pull(ctx, path))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pushed, got)

	v, err = vault.Open(path, vault.WithKeyPath(keyPath))
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, 1, v.Len())
}

func TestPullWhileVaultOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "passwords.enc")
	store := newStore(t)
	require.NoError(t, store.Put(ctx, "obj", []byte("x")))

	v, err := vault.Open(path)
	require.NoError(t, err)
	defer v.Close()

	err = New(store, "obj").Pull(ctx, path)
	assert.ErrorIs(t, err, storage.ErrLocked)
}

func TestPullMissingObject(t *testing.T) {
	err := New(newStore(t), "absent").Pull(context.Background(), filepath.Join(t.TempDir(), "v.enc"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPullVerifierRejectsForeignKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	foreign, err := crypto.NewCodec(crypto.GenerateKey()).Encrypt([]byte(`{"groups":{}}`))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "obj", foreign))

	path := filepath.Join(t.TempDir(), "v.enc")
	local := crypto.NewCodec(crypto.GenerateKey())
	err = New(store, "obj", WithVerifier(local)).Pull(ctx, path)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

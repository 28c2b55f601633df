package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vault.key")

	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)

	e1, err := k1.Encode()
	require.NoError(t, err)
	e2, err := k2.Encode()
	require.NoError(t, err)
	assert.Equal(t, e1, e2)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, e1, onDisk)

	tok, err := NewCodec(k1).Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = NewCodec(k2).Decrypt(tok)
	require.NoError(t, err)
}

func TestLoadOrCreateKeyCorrupt(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"garbage": "not base64 at all",
		"short":   "AAAA",
		"empty":   "",
	} {
		path := filepath.Join(dir, name+".key")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := LoadOrCreateKey(path)
		assert.ErrorIs(t, err, ErrCorruptKey, name)
	}
}

func TestParseKeyToleratesWhitespace(t *testing.T) {
	enc, err := GenerateKey().Encode()
	require.NoError(t, err)
	_, err = ParseKey(append(append([]byte("  "), enc...), '\n'))
	require.NoError(t, err)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	p, err := DefaultKDFParams()
	require.NoError(t, err)
	p.Memory, p.Time, p.P = 8*1024, 1, 1

	k1, err := DeriveKey([]byte("correct horse"), p)
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("correct horse"), p)
	require.NoError(t, err)
	k3, err := DeriveKey([]byte("wrong horse"), p)
	require.NoError(t, err)

	tok, err := NewCodec(k1).Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = NewCodec(k2).Decrypt(tok)
	require.NoError(t, err)
	_, err = NewCodec(k3).Decrypt(tok)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = DeriveKey([]byte("x"), KDFParams{Algo: "scrypt"})
	assert.Error(t, err)
}

func TestLoadOrCreateKDFParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kdf.json")
	p1, err := LoadOrCreateKDFParams(path)
	require.NoError(t, err)
	p2, err := LoadOrCreateKDFParams(path)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Len(t, p1.Salt, 32)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadExplicitFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "securevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/vault
log_level: debug
clipboard_ttl: 45s
sync:
  backend: s3
  s3:
    endpoint: minio.local:9000
    bucket: vaults
smtp:
  host: smtp.example.com
`), 0o600))

	t.Setenv("SECUREVAULT_SMTP_FROM", "noreply@example.com")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level=warn"}))

	c, err := Load(flags, path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/vault", c.DataDir)
	assert.Equal(t, "warn", c.LogLevel, "flags override the file")
	assert.Equal(t, 45*time.Second, c.ClipboardTTL)
	assert.Equal(t, "s3", c.Sync.Backend)
	assert.Equal(t, "vaults", c.Sync.S3.Bucket)
	assert.True(t, c.Sync.S3.UseSSL, "default kept")
	assert.Equal(t, "smtp.example.com", c.SMTP.Host)
	assert.Equal(t, "noreply@example.com", c.SMTP.From)
	assert.Equal(t, "587", c.SMTP.Port)
	assert.Equal(t, filepath.Join("/srv/vault", "audit.jsonl"), c.Audit.Path)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c, err := Defaults()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	bad := c
	bad.Sync.Backend = "ftp"
	assert.Error(t, bad.Validate())

	bad = c
	bad.SMTP.Security = "tls13"
	assert.Error(t, bad.Validate())

	assert.Equal(t, KeyModeFile, c.Vault.KeyMode)
	bad = c
	bad.Vault.KeyMode = "keychain"
	assert.Error(t, bad.Validate())
}

func TestKeyModeFromEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SECUREVAULT_VAULT_KEY_MODE", KeyModeDerived)
	c, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, KeyModeDerived, c.Vault.KeyMode)
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "securevault.yaml")
	c, err := Defaults()
	require.NoError(t, err)
	c.DataDir = "/tmp/sv"
	c.Audit.Path = "/tmp/sv/audit.jsonl"
	c.ClipboardTTL = 90 * time.Second
	require.NoError(t, Write(c, path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "clipboard_ttl: 1m30s")

	got, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, c.DataDir, got.DataDir)
	assert.Equal(t, c.ClipboardTTL, got.ClipboardTTL)
	assert.Equal(t, c.Sync, got.Sync)
	assert.Equal(t, c.Vault, got.Vault)
}

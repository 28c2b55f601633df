package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
)

const testIterations = 1000

func openTestRegistry(t *testing.T, dir string, opts ...RegistryOption) *Registry {
	t.Helper()
	r, err := OpenRegistry(dir, append([]RegistryOption{WithIterations(testIterations)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestLoginProperty(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	id, err := r.CreateUser("bob", "pw123", "bob@example.com", false)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.True(t, r.VerifyPassword("bob", "pw123"))
	assert.False(t, r.VerifyPassword("bob", "wrong"))
	assert.False(t, r.VerifyPassword("nobody", "pw123"))

	_, err = r.CreateUser("bob", "other", "other@example.com", false)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestCreateUserProvisionsVaultDir(t *testing.T) {
	dir := t.TempDir()
	r := openTestRegistry(t, dir)
	id, err := r.CreateUser("alice", "pw", "alice@example.com", true)
	require.NoError(t, err)

	fi, err := os.Stat(filepath.Join(dir, id))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	s, err := r.UserSettings("alice")
	require.NoError(t, err)
	assert.Equal(t, Settings{
		Theme:             DefaultTheme,
		AutoLogoutMinutes: DefaultAutoLogoutMinutes,
		VaultPath:         filepath.Join(dir, id, "passwords.enc"),
	}, s)

	p, err := r.VaultPath("alice")
	require.NoError(t, err)
	assert.Equal(t, s.VaultPath, p)

	gotID, err := r.UserID("alice")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.True(t, r.IsAdmin("alice"))
	assert.False(t, r.IsAdmin("nobody"))
}

func TestEmailUniquenessIsNormalized(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	_, err := r.CreateUser("a", "pw", "Same@Example.com", false)
	require.NoError(t, err)
	_, err = r.CreateUser("b", "pw", "  same@example.COM ", false)
	assert.ErrorIs(t, err, ErrEmailTaken)

	name, p, err := r.UserByEmail("SAME@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a", name)
	assert.Equal(t, "same@example.com", p.Email)

	_, _, err = r.UserByEmail("none@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUserValidation(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	for _, c := range [][3]string{{"", "pw", "e@x"}, {"u", "", "e@x"}, {"u", "pw", " "}} {
		_, err := r.CreateUser(c[0], c[1], c[2], false)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	assert.Empty(t, r.Users())
}

func TestRegistryPersists(t *testing.T) {
	dir := t.TempDir()
	r, err := OpenRegistry(dir, WithIterations(testIterations))
	require.NoError(t, err)
	_, err = r.CreateUser("bob", "pw123", "bob@example.com", false)
	require.NoError(t, err)
	_, err = r.CreateUser("amy", "pw456", "amy@example.com", false)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r = openTestRegistry(t, dir)
	assert.Equal(t, []string{"amy", "bob"}, r.Users())
	assert.True(t, r.VerifyPassword("bob", "pw123"))

	raw, err := os.ReadFile(filepath.Join(dir, "users.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bob@example.com")
}

func TestSettingsMerge(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	_, err := r.CreateUser("bob", "pw", "bob@example.com", false)
	require.NoError(t, err)
	before, err := r.UserSettings("bob")
	require.NoError(t, err)

	theme := "light"
	ok, err := r.UpdateUserSettings("bob", SettingsPatch{Theme: &theme})
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := r.UserSettings("bob")
	require.NoError(t, err)
	assert.Equal(t, "light", after.Theme)
	assert.Equal(t, before.AutoLogoutMinutes, after.AutoLogoutMinutes)
	assert.Equal(t, before.VaultPath, after.VaultPath)

	ok, err = r.UpdateUserSettings("nobody", SettingsPatch{Theme: &theme})
	require.NoError(t, err)
	assert.False(t, ok)

	neg := -1
	_, err = r.UpdateUserSettings("bob", SettingsPatch{AutoLogoutMinutes: &neg})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = r.UserSettings("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	r := openTestRegistry(t, t.TempDir())
	_, err := r.CreateUser("bob", "old", "bob@example.com", false)
	require.NoError(t, err)
	before, err := r.UserSettings("bob")
	require.NoError(t, err)

	ok, err := r.ChangePassword("bob", "new")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, r.VerifyPassword("bob", "old"))
	assert.True(t, r.VerifyPassword("bob", "new"))

	after, err := r.UserSettings("bob")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	ok, err = r.ChangePassword("nobody", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetTicket(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := openTestRegistry(t, t.TempDir(), WithRegistryClock(func() time.Time { return now }))
	_, err := r.CreateUser("bob", "old", "bob@example.com", false)
	require.NoError(t, err)

	token, expires, err := r.IssueResetTicket("bob", 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), expires)

	p, err := r.Lookup("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", p.Email)
	assert.Nil(t, p.Reset, "lookups never expose the ticket")
	_, err = r.Lookup("nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, r.RedeemResetTicket("bob", "wrong", "new"), ErrInvalidResetToken)
	require.NoError(t, r.RedeemResetTicket("bob", token, "new"))
	assert.True(t, r.VerifyPassword("bob", "new"))
	assert.ErrorIs(t, r.RedeemResetTicket("bob", token, "again"), ErrInvalidResetToken, "tickets are single use")

	token, _, err = r.IssueResetTicket("bob", time.Minute)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, r.RedeemResetTicket("bob", token, "late"), ErrInvalidResetToken)

	_, _, err = r.IssueResetTicket("nobody", time.Minute)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLegacyRegistryFieldNames(t *testing.T) {
	dir := t.TempDir()
	salt := []byte("0123456789abcdef")
	legacy := map[string]any{
		"profiles": map[string]any{
			"bob": map[string]any{
				"id":       "11111111-1111-4111-8111-111111111111",
				"salt":     hashEncoding.EncodeToString(salt),
				"password": hashPassword("pw123", salt, testIterations),
				"email":    " Bob@Example.com",
				"is_admin": false,
				"settings": map[string]any{
					"theme":         "dark",
					"auto_logout":   15,
					"password_file": "data/1111/passwords.enc",
				},
			},
		},
		"email_map": map[string]string{
			"Bob@Example.com":  "11111111-1111-4111-8111-111111111111",
			"lost@example.com": "22222222-2222-4222-8222-222222222222",
		},
	}
	b, err := json.Marshal(legacy)
	require.NoError(t, err)
	key, err := crypto.LoadOrCreateKey(filepath.Join(dir, "users.key"))
	require.NoError(t, err)
	tok, err := crypto.NewCodec(key).Encrypt(b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.enc"), tok, 0o600))

	r := openTestRegistry(t, dir)
	assert.True(t, r.VerifyPassword("bob", "pw123"))
	s, err := r.UserSettings("bob")
	require.NoError(t, err)
	assert.Equal(t, 15, s.AutoLogoutMinutes)
	assert.Equal(t, "data/1111/passwords.enc", s.VaultPath)

	_, _, err = r.UserByEmail("lost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound, "dangling email mapping is dropped on load")

	name, _, err := r.UserByEmail("Bob@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
	p, err := r.Lookup("bob")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", p.Email)

	_, err = r.CreateUser("eve", "pw", "bob@example.com", false)
	assert.ErrorIs(t, err, ErrEmailTaken)

	require.NoError(t, r.Close())
	r = openTestRegistry(t, dir)
	name, _, err = r.UserByEmail("bob@example.com")
	require.NoError(t, err, "normalized mapping is written back")
	assert.Equal(t, "bob", name)
}

func TestRepairEmailCollision(t *testing.T) {
	d := &registryDocument{
		Profiles: map[string]*Profile{
			"bob":   {ID: "b", Email: "bob@example.com"},
			"carol": {ID: "c", Email: "carol@example.com"},
		},
		EmailMap: map[string]string{
			"BOB@example.com":   "c",
			"bob@Example.com":   "b",
			"carol@example.com": "c",
		},
	}
	assert.True(t, d.repair())
	assert.Equal(t, map[string]string{
		"bob@example.com":   "b",
		"carol@example.com": "c",
	}, d.EmailMap)
	assert.False(t, d.repair())
}

func TestWrongRegistryKey(t *testing.T) {
	dir := t.TempDir()
	r, err := OpenRegistry(dir, WithIterations(testIterations))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	enc, err := crypto.GenerateKey().Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.key"), enc, 0o600))
	_, err = OpenRegistry(dir, WithIterations(testIterations))
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

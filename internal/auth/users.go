package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/storage"
)

var (
	ErrUsernameTaken     = errors.New("auth: username already exists")
	ErrEmailTaken        = errors.New("auth: email already in use")
	ErrUserNotFound      = errors.New("auth: user not found")
	ErrInvalidArgument   = errors.New("auth: invalid argument")
	ErrInvalidResetToken = errors.New("auth: invalid or expired reset token")
	ErrClosed            = errors.New("auth: registry closed")
)

const (
	registryFile    = "users.enc"
	registryKeyFile = "users.key"
)

// Registry is the directory of login identities and the vault each of them
// owns. It is persisted the same way a vault is: one sealed document with
// its own key file.
type Registry struct {
	mu         sync.Mutex
	dataDir    string
	file       *storage.SealedFile
	doc        *registryDocument
	iterations int
	now        func() time.Time
	log        *log.Logger

	// dummySalt keeps the cost of a login for an unknown user equal to a
	// real one.
	dummySalt string
}

type registryOptions struct {
	logger     *log.Logger
	now        func() time.Time
	iterations int
}

type RegistryOption func(*registryOptions)

func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(o *registryOptions) { o.logger = l }
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) { o.now = now }
}

// WithIterations sets the PBKDF2 cost for new and verified hashes. Stores
// written with one cost cannot be verified with another.
func WithIterations(n int) RegistryOption {
	return func(o *registryOptions) { o.iterations = n }
}

func OpenRegistry(dataDir string, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{now: time.Now, iterations: DefaultIterations}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	if o.iterations < 1 {
		return nil, fmt.Errorf("%w: iterations must be positive", ErrInvalidArgument)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}

	key, err := crypto.LoadOrCreateKey(filepath.Join(dataDir, registryKeyFile))
	if err != nil {
		return nil, err
	}
	file, err := storage.OpenSealedFile(filepath.Join(dataDir, registryFile), crypto.NewCodec(key))
	if err != nil {
		return nil, err
	}
	salt, err := newSalt()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	r := &Registry{
		dataDir:    dataDir,
		file:       file,
		iterations: o.iterations,
		now:        o.now,
		log:        o.logger,
		dummySalt:  hashEncoding.EncodeToString(salt),
	}
	if err := r.load(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	pt, found, err := r.file.Load()
	if err != nil {
		return err
	}
	if !found {
		r.doc = newRegistryDocument()
		r.log.Info("created user registry", "path", r.file.Path())
		return r.flush(r.doc)
	}
	var doc registryDocument
	if err := json.Unmarshal(pt, &doc); err != nil {
		return fmt.Errorf("auth: corrupt registry: %w", err)
	}
	r.doc = &doc
	if doc.repair() {
		r.log.Warn("repaired user registry", "path", r.file.Path())
		return r.flush(r.doc)
	}
	return nil
}

func (r *Registry) flush(doc *registryDocument) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.file.Save(b)
}

func (r *Registry) commit(fn func(d *registryDocument) error) error {
	if r.doc == nil {
		return ErrClosed
	}
	next := r.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := r.flush(next); err != nil {
		return err
	}
	r.doc = next
	return nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = nil
	return r.file.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a new login and provisions its private directory.
// It returns the new user id.
func (r *Registry) CreateUser(username, password, email string, isAdmin bool) (string, error) {
	email = normalizeEmail(email)
	if strings.TrimSpace(username) == "" || password == "" || email == "" {
		return "", fmt.Errorf("%w: username, password and email are required", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return "", ErrClosed
	}
	if _, ok := r.doc.Profiles[username]; ok {
		return "", fmt.Errorf("%w: %q", ErrUsernameTaken, username)
	}
	if _, ok := r.doc.EmailMap[email]; ok {
		return "", fmt.Errorf("%w: %q", ErrEmailTaken, email)
	}

	salt, err := newSalt()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	userDir := filepath.Join(r.dataDir, id)
	if err := os.MkdirAll(userDir, 0o700); err != nil {
		return "", err
	}
	profile := &Profile{
		ID:           id,
		Salt:         hashEncoding.EncodeToString(salt),
		PasswordHash: hashPassword(password, salt, r.iterations),
		Email:        email,
		IsAdmin:      isAdmin,
		Settings: Settings{
			Theme:             DefaultTheme,
			AutoLogoutMinutes: DefaultAutoLogoutMinutes,
			VaultPath:         filepath.Join(userDir, vaultFileName),
		},
	}
	err = r.commit(func(d *registryDocument) error {
		d.Profiles[username] = profile
		d.EmailMap[email] = id
		return nil
	})
	if err != nil {
		_ = os.Remove(userDir)
		return "", err
	}
	r.log.Info("created user", "user", username, "id", id, "admin", isAdmin)
	return id, nil
}

// VerifyPassword reports whether password is the login password of username.
// Unknown users cost the same as a wrong password.
func (r *Registry) VerifyPassword(username, password string) bool {
	r.mu.Lock()
	var salt, hash string
	if r.doc != nil {
		if p, ok := r.doc.Profiles[username]; ok {
			salt, hash = p.Salt, p.PasswordHash
		}
	}
	r.mu.Unlock()

	if hash == "" {
		_ = hashPassword(password, []byte(r.dummySalt), r.iterations)
		return false
	}
	ok, err := checkPassword(password, salt, hash, r.iterations)
	return err == nil && ok
}

func (r *Registry) UserByEmail(email string) (string, Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return "", Profile{}, ErrClosed
	}
	id, ok := r.doc.EmailMap[normalizeEmail(email)]
	if !ok {
		return "", Profile{}, ErrUserNotFound
	}
	name, ok := r.doc.usernameByID(id)
	if !ok {
		return "", Profile{}, ErrUserNotFound
	}
	p := *r.doc.Profiles[name]
	p.Reset = nil
	return name, p, nil
}

// Lookup returns a copy of the named user's profile without any pending
// reset ticket.
func (r *Registry) Lookup(username string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.profile(username)
	if err != nil {
		return Profile{}, err
	}
	out := *p
	out.Reset = nil
	return out, nil
}

func (r *Registry) profile(username string) (*Profile, error) {
	if r.doc == nil {
		return nil, ErrClosed
	}
	p, ok := r.doc.Profiles[username]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}
	return p, nil
}

func (r *Registry) UserSettings(username string) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.profile(username)
	if err != nil {
		return Settings{}, err
	}
	return p.Settings, nil
}

// UpdateUserSettings merges the non-nil fields of patch into the user's
// settings. It reports false for an unknown user.
func (r *Registry) UpdateUserSettings(username string, patch SettingsPatch) (bool, error) {
	if patch.AutoLogoutMinutes != nil && *patch.AutoLogoutMinutes < 0 {
		return false, fmt.Errorf("%w: negative auto-logout", ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.commit(func(d *registryDocument) error {
		p, ok := d.Profiles[username]
		if !ok {
			return ErrUserNotFound
		}
		patch.apply(&p.Settings)
		return nil
	})
	return reportFound(err)
}

// ChangePassword replaces the login salt and hash. The user's vault and its
// key are not touched.
func (r *Registry) ChangePassword(username, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, fmt.Errorf("%w: empty password", ErrInvalidArgument)
	}
	salt, err := newSalt()
	if err != nil {
		return false, err
	}
	hash := hashPassword(newPassword, salt, r.iterations)

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.commit(func(d *registryDocument) error {
		p, ok := d.Profiles[username]
		if !ok {
			return ErrUserNotFound
		}
		p.Salt = hashEncoding.EncodeToString(salt)
		p.PasswordHash = hash
		p.Reset = nil
		return nil
	})
	if err == nil {
		r.log.Info("changed password", "user", username)
	}
	return reportFound(err)
}

func (r *Registry) IsAdmin(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.profile(username)
	return err == nil && p.IsAdmin
}

func (r *Registry) UserID(username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.profile(username)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// VaultPath is where the user's vault file lives.
func (r *Registry) VaultPath(username string) (string, error) {
	s, err := r.UserSettings(username)
	if err != nil {
		return "", err
	}
	return s.VaultPath, nil
}

// Users lists all usernames in lexical order.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil
	}
	out := make([]string, 0, len(r.doc.Profiles))
	for name := range r.doc.Profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IssueResetTicket creates a one-time token that lets the holder set a new
// password for username until it expires. A new ticket replaces any
// previous one.
func (r *Registry) IssueResetTicket(username string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: ttl must be positive", ErrInvalidArgument)
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	expires := r.now().UTC().Add(ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.commit(func(d *registryDocument) error {
		p, ok := d.Profiles[username]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUserNotFound, username)
		}
		p.Reset = &resetTicket{TokenHash: tokenHash(token), Expires: expires}
		return nil
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// RedeemResetTicket sets newPassword if token matches the user's pending,
// unexpired ticket. The ticket is consumed on success.
func (r *Registry) RedeemResetTicket(username, token, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: empty password", ErrInvalidArgument)
	}
	salt, err := newSalt()
	if err != nil {
		return err
	}
	hash := hashPassword(newPassword, salt, r.iterations)

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	err = r.commit(func(d *registryDocument) error {
		p, ok := d.Profiles[username]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUserNotFound, username)
		}
		t := p.Reset
		if t == nil || !now.Before(t.Expires) ||
			subtle.ConstantTimeCompare([]byte(tokenHash(token)), []byte(t.TokenHash)) != 1 {
			return ErrInvalidResetToken
		}
		p.Salt = hashEncoding.EncodeToString(salt)
		p.PasswordHash = hash
		p.Reset = nil
		return nil
	})
	if err == nil {
		r.log.Info("password reset", "user", username)
	}
	return err
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func reportFound(err error) (bool, error) {
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/JoaoSantosCodes/SecureVault/internal/audit"
	"github.com/JoaoSantosCodes/SecureVault/internal/auth"
	"github.com/JoaoSantosCodes/SecureVault/internal/config"
	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/logging"
	"github.com/JoaoSantosCodes/SecureVault/internal/platform"
	"github.com/JoaoSantosCodes/SecureVault/internal/vault"
)

const (
	envUser        = "SECUREVAULT_USER"
	envPassword    = "SECUREVAULT_PASSWORD"
	envNewPassword = "SECUREVAULT_NEW_PASSWORD"
	envPassphrase  = "SECUREVAULT_BACKUP_PASSPHRASE"
	envVaultPass   = "SECUREVAULT_VAULT_PASSPHRASE"

	// commands carrying this annotation ignore an explicit --config file
	// that does not exist yet
	annotationNoConfigFile = "securevault/no-config-file"
)

var (
	errLoginFailed = errors.New("invalid username or password")
	errAborted     = errors.New("aborted")
)

// app is the state shared by all commands of one invocation.
type app struct {
	cfgFile string
	user    string

	cfg    config.Config
	log    *log.Logger
	audit  audit.Logger
	clip   platform.Clipboard
	getenv func(string) string

	stdin  io.Reader
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	switch cmd.Name() {
	case "help", "completion", "__complete":
		return nil
	}
	dumpErr := platform.DisableCoreDumps()

	explicit := a.cfgFile
	if cmd.Annotations[annotationNoConfigFile] == "true" {
		explicit = ""
	}
	cfg, err := config.Load(cmd.Flags(), explicit)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.log, err = logging.New(cfg.LogLevel, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if dumpErr != nil {
		a.log.Warn("could not disable core dumps", "err", dumpErr)
	}

	a.stdin = cmd.InOrStdin()
	a.in = bufio.NewReader(a.stdin)
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	if a.user == "" {
		a.user = a.getenv(envUser)
	}
	if a.clip == nil {
		a.clip = platform.NewClipboard()
	}

	a.audit = audit.Nop{}
	if cfg.Audit.Enabled {
		fl, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		a.audit = fl
	}
	a.log.Debug("configuration loaded", "data_dir", cfg.DataDir, "audit", cfg.Audit.Enabled)
	return nil
}

func (a *app) close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

// record appends one audit event and passes err through.
func (a *app) record(action, subject string, err error) error {
	if a.audit == nil {
		return err
	}
	if aerr := a.audit.Log(action, subject, err == nil); aerr != nil {
		a.log.Warn("audit write failed", "action", action, "err", aerr)
	}
	return err
}

func (a *app) openRegistry() (*auth.Registry, error) {
	return auth.OpenRegistry(a.cfg.DataDir, auth.WithRegistryLogger(a.log))
}

func (a *app) requireUser() error {
	if a.user == "" {
		return fmt.Errorf("no user given; use --user or %s", envUser)
	}
	return nil
}

// login checks the master password of a.user against reg.
func (a *app) login(reg *auth.Registry) error {
	if err := a.requireUser(); err != nil {
		return err
	}
	pw, err := a.secret("Master password: ", envPassword)
	if err != nil {
		return err
	}
	if !reg.VerifyPassword(a.user, pw) {
		a.log.Warn("login failed", "user", a.user)
		return a.record("login", a.user, errLoginFailed)
	}
	a.log.Debug("login ok", "user", a.user)
	return a.record("login", a.user, nil)
}

// session is an authenticated user together with the location of their
// vault. The registry is already closed again.
type session struct {
	username  string
	userID    string
	vaultPath string
}

func (a *app) unlock() (session, error) {
	reg, err := a.openRegistry()
	if err != nil {
		return session{}, err
	}
	defer reg.Close()
	if err := a.login(reg); err != nil {
		return session{}, err
	}
	s := session{username: a.user}
	if s.userID, err = reg.UserID(a.user); err != nil {
		return session{}, err
	}
	if s.vaultPath, err = reg.VaultPath(a.user); err != nil {
		return session{}, err
	}
	return s, nil
}

func kdfPath(vaultPath string) string { return vaultPath + ".kdf" }

// derivedKey returns the Argon2id vault key when vault.key_mode is derived
// and nil otherwise. The KDF parameters are created on first use unless
// mustExist is set.
func (a *app) derivedKey(s session, mustExist bool) (*crypto.Key, error) {
	if a.cfg.Vault.KeyMode != config.KeyModeDerived {
		return nil, nil
	}
	path := kdfPath(s.vaultPath)
	if mustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
	}
	params, err := crypto.LoadOrCreateKDFParams(path)
	if err != nil {
		return nil, fmt.Errorf("kdf parameters: %w", err)
	}
	pass, err := a.secret("Vault passphrase: ", envVaultPass)
	if err != nil {
		return nil, err
	}
	if pass == "" {
		return nil, errors.New("vault passphrase must not be empty")
	}
	return crypto.DeriveKey([]byte(pass), params)
}

// withVault logs in, opens the user's vault and runs fn against it.
func (a *app) withVault(fn func(*vault.Vault) error) error {
	s, err := a.unlock()
	if err != nil {
		return err
	}
	opts := []vault.Option{vault.WithLogger(a.log)}
	key, err := a.derivedKey(s, false)
	if err != nil {
		return err
	}
	if key != nil {
		opts = append(opts, vault.WithKey(key))
	}
	v, err := vault.Open(s.vaultPath, opts...)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	defer v.Close()
	return fn(v)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	fileName  = "securevault"
	envPrefix = "SECUREVAULT"
)

type Config struct {
	DataDir      string        `mapstructure:"data_dir"`
	LogLevel     string        `mapstructure:"log_level"`
	ClipboardTTL time.Duration `mapstructure:"clipboard_ttl"`
	Vault        VaultConfig   `mapstructure:"vault"`
	Audit        AuditConfig   `mapstructure:"audit"`
	Sync         SyncConfig    `mapstructure:"sync"`
	SMTP         SMTPConfig    `mapstructure:"smtp"`
}

// KeyMode "file" keeps a random key next to each vault; "derived" stretches a
// vault passphrase with Argon2id and keeps only the KDF parameters on disk.
type VaultConfig struct {
	KeyMode string `mapstructure:"key_mode" yaml:"key_mode"`
}

const (
	KeyModeFile    = "file"
	KeyModeDerived = "derived"
)

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

type SyncConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"` // file, mongo or s3
	Dir     string      `mapstructure:"dir" yaml:"dir,omitempty"`
	Object  string      `mapstructure:"object" yaml:"object,omitempty"`
	Mongo   MongoConfig `mapstructure:"mongo" yaml:"mongo"`
	S3      S3Config    `mapstructure:"s3" yaml:"s3"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri" yaml:"uri,omitempty"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host,omitempty"`
	Port     string `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user,omitempty"`
	Pass     string `mapstructure:"pass" yaml:"pass,omitempty"`
	From     string `mapstructure:"from" yaml:"from,omitempty"`
	Security string `mapstructure:"security" yaml:"security"` // starttls, ssl or none
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"data-dir":  "data_dir",
	"log-level": "log_level",
	"audit":     "audit.enabled",
}

// defaults lists every key so that environment variables can reach keys
// which no file sets.
func defaults() map[string]any {
	return map[string]any{
		"data_dir":              defaultDataDir(),
		"log_level":             "info",
		"clipboard_ttl":         "20s",
		"vault.key_mode":        KeyModeFile,
		"audit.enabled":         false,
		"audit.path":            "",
		"sync.backend":          "file",
		"sync.dir":              "",
		"sync.object":           "",
		"sync.mongo.uri":        "",
		"sync.mongo.database":   "securevault",
		"sync.mongo.collection": "vaults",
		"sync.s3.endpoint":      "",
		"sync.s3.region":        "",
		"sync.s3.bucket":        "",
		"sync.s3.prefix":        "",
		"sync.s3.access_key":    "",
		"sync.s3.secret_key":    "",
		"sync.s3.use_ssl":       true,
		"smtp.host":             "",
		"smtp.port":             "587",
		"smtp.user":             "",
		"smtp.pass":             "",
		"smtp.from":             "",
		"smtp.security":         "starttls",
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(dir, "securevault", "data")
}

// DefaultPath is where Write puts the configuration when no path is given.
func DefaultPath(system bool) (string, error) {
	if system {
		if runtime.GOOS == "windows" {
			return filepath.Join(os.Getenv("ProgramData"), "SecureVault", fileName+".yaml"), nil
		}
		return filepath.Join("/etc/securevault", fileName+".yaml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(dir, "securevault", fileName+".yaml"), nil
}

// Load merges defaults, the configuration file, SECUREVAULT_* environment
// variables and flags, in increasing order of precedence. explicit names a
// configuration file that must exist; otherwise the standard locations are
// searched and a missing file is fine.
func Load(flags *pflag.FlagSet, explicit string) (Config, error) {
	var c Config
	v := newViper()
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		if p, err := DefaultPath(false); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		if p, err := DefaultPath(true); err == nil {
			v.AddConfigPath(filepath.Dir(p))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	c.applyDerived()
	return c, c.Validate()
}

func (c *Config) applyDerived() {
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(c.DataDir, "audit.jsonl")
	}
	if c.Sync.Backend == "file" && c.Sync.Dir == "" {
		c.Sync.Dir = filepath.Join(c.DataDir, "remote")
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: data_dir is required")
	}
	switch c.Vault.KeyMode {
	case KeyModeFile, KeyModeDerived:
	default:
		return fmt.Errorf("config: unknown vault.key_mode %q", c.Vault.KeyMode)
	}
	switch c.Sync.Backend {
	case "file", "mongo", "s3":
	default:
		return fmt.Errorf("config: unknown sync.backend %q", c.Sync.Backend)
	}
	switch strings.ToLower(c.SMTP.Security) {
	case "", "starttls", "ssl", "smtps", "none":
	default:
		return fmt.Errorf("config: unknown smtp.security %q", c.SMTP.Security)
	}
	if c.ClipboardTTL < 0 {
		return errors.New("config: clipboard_ttl must not be negative")
	}
	return nil
}

// fileView is the on-disk layout written by Write.
type fileView struct {
	DataDir      string      `yaml:"data_dir"`
	LogLevel     string      `yaml:"log_level"`
	ClipboardTTL string      `yaml:"clipboard_ttl"`
	Vault        VaultConfig `yaml:"vault"`
	Audit        AuditConfig `yaml:"audit"`
	Sync         SyncConfig  `yaml:"sync"`
	SMTP         SMTPConfig  `yaml:"smtp"`
}

func (c Config) MarshalYAML() (any, error) {
	return fileView{
		DataDir:      c.DataDir,
		LogLevel:     c.LogLevel,
		ClipboardTTL: c.ClipboardTTL.String(),
		Vault:        c.Vault,
		Audit:        c.Audit,
		Sync:         c.Sync,
		SMTP:         c.SMTP,
	}, nil
}

// Write stores c as YAML at path with owner-only permissions, since it may
// hold SMTP and S3 credentials.
func Write(c Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	return os.WriteFile(path, data, 0o600)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	return v
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() (Config, error) {
	var c Config
	if err := newViper().Unmarshal(&c); err != nil {
		return c, err
	}
	c.applyDerived()
	return c, nil
}

package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// KDFParams are the non-secret inputs of a passphrase-derived store key.
// They can be persisted next to the store; the key itself never is.
type KDFParams struct {
	Algo   string `json:"algo"` // "argon2id"
	Memory uint32 `json:"m"`    // KiB
	Time   uint32 `json:"t"`
	P      uint8  `json:"p"`
	Salt   []byte `json:"salt"`
}

func DefaultKDFParams() (KDFParams, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return KDFParams{}, err
	}
	return KDFParams{Algo: "argon2id", Memory: 64 * 1024, Time: 3, P: 4, Salt: salt}, nil
}

func (p KDFParams) validate() error {
	if p.Algo != "argon2id" {
		return fmt.Errorf("crypto: unsupported kdf %q", p.Algo)
	}
	if p.Memory == 0 || p.Time == 0 || p.P == 0 || len(p.Salt) < 16 {
		return errors.New("crypto: invalid kdf parameters")
	}
	return nil
}

// Stretch runs the KDF and returns the raw key bytes. Callers wipe them.
func (p KDFParams) Stretch(passphrase []byte) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(passphrase, p.Salt, p.Time, p.Memory, p.P, KeySize), nil
}

// DeriveKey stretches passphrase into a store key with Argon2id.
func DeriveKey(passphrase []byte, p KDFParams) (*Key, error) {
	raw, err := p.Stretch(passphrase)
	if err != nil {
		return nil, err
	}
	return newKey(raw), nil
}

// LoadOrCreateKDFParams reads KDF parameters from path, writing fresh
// defaults there first if the file does not exist.
func LoadOrCreateKDFParams(path string) (KDFParams, error) {
	var p KDFParams
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &p); err != nil {
			return p, fmt.Errorf("%s: %w", path, err)
		}
		return p, p.validate()
	case !errors.Is(err, os.ErrNotExist):
		return p, err
	}

	p, err = DefaultKDFParams()
	if err != nil {
		return p, err
	}
	b, err = json.MarshalIndent(p, "", "  ")
	if err != nil {
		return p, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return p, err
	}
	return p, os.WriteFile(path, b, 0o600)
}

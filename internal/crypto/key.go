package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
	xchacha "golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a store key in bytes.
const KeySize = xchacha.KeySize

// ErrCorruptKey is returned when a key file does not hold a well-formed key.
var ErrCorruptKey = errors.New("crypto: corrupt key material")

var keyEncoding = base64.URLEncoding

// Key is the symmetric key protecting one encrypted store. The raw bytes live
// in a memguard enclave and are only exposed while a seal or open runs.
type Key struct {
	enclave *memguard.Enclave
}

// GenerateKey returns a fresh random key.
func GenerateKey() *Key {
	return &Key{enclave: memguard.NewEnclaveRandom(KeySize)}
}

// ParseKey decodes the on-disk representation of a key. Surrounding
// whitespace is ignored.
func ParseKey(encoded []byte) (*Key, error) {
	trimmed := bytes.TrimSpace(encoded)
	raw := make([]byte, keyEncoding.DecodedLen(len(trimmed)))
	n, err := keyEncoding.Decode(raw, trimmed)
	if err != nil || n != KeySize {
		memguard.WipeBytes(raw)
		return nil, ErrCorruptKey
	}
	return newKey(raw[:n]), nil
}

// newKey moves raw into an enclave; raw is wiped.
func newKey(raw []byte) *Key {
	return &Key{enclave: memguard.NewEnclave(raw)}
}

// Encode returns the key file representation of k.
func (k *Key) Encode() ([]byte, error) {
	var out []byte
	err := k.use(func(raw []byte) error {
		out = make([]byte, keyEncoding.EncodedLen(len(raw)))
		keyEncoding.Encode(out, raw)
		return nil
	})
	return out, err
}

func (k *Key) use(fn func(raw []byte) error) error {
	if k == nil || k.enclave == nil {
		return errors.New("crypto: nil key")
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("crypto: open key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// LoadOrCreateKey reads the key stored at path, or generates and writes a new
// one when the file does not exist yet. The key file is written unencrypted
// and protected by file permissions only.
func LoadOrCreateKey(path string) (*Key, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		defer memguard.WipeBytes(b)
		k, perr := ParseKey(b)
		if perr != nil {
			return nil, fmt.Errorf("%s: %w", path, perr)
		}
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	k := GenerateKey()
	enc, err := k.Encode()
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(enc)

	// O_EXCL: never clobber a key another process wrote in the meantime.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(enc); err != nil {
		f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return k, nil
}

package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"

	xchacha "golang.org/x/crypto/chacha20poly1305"
)

const tokenVersion byte = 0x01

// ErrDecryptionFailed covers every reason a token cannot be opened: wrong
// key, truncation, corruption or tampering. Callers cannot tell them apart.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

var tokenEncoding = base64.RawURLEncoding

// Codec encrypts whole documents (and single fields) under one Key.
// A token is base64url(version || nonce || ciphertext || tag).
type Codec struct {
	key *Key
}

func NewCodec(key *Key) *Codec {
	return &Codec{key: key}
}

func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	aad := []byte{tokenVersion}
	var sealed []byte
	err := c.key.use(func(k []byte) error {
		var err error
		sealed, err = SealX(k, plaintext, aad)
		return err
	})
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, 1+len(sealed))
	raw = append(raw, tokenVersion)
	raw = append(raw, sealed...)
	out := make([]byte, tokenEncoding.EncodedLen(len(raw)))
	tokenEncoding.Encode(out, raw)
	return out, nil
}

func (c *Codec) Decrypt(token []byte) ([]byte, error) {
	token = bytes.TrimSpace(token)
	raw := make([]byte, tokenEncoding.DecodedLen(len(token)))
	n, err := tokenEncoding.Decode(raw, token)
	if err != nil || n < 1 || raw[0] != tokenVersion {
		return nil, ErrDecryptionFailed
	}
	raw = raw[:n]
	var pt []byte
	err = c.key.use(func(k []byte) error {
		var err error
		pt, err = OpenX(k, raw[1:], raw[:1])
		return err
	})
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt, nil
}

// EncryptString seals a single field, e.g. an entry password.
func (c *Codec) EncryptString(s string) (string, error) {
	tok, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

func (c *Codec) DecryptString(token string) (string, error) {
	pt, err := c.Decrypt([]byte(token))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// SealX encrypts with XChaCha20-Poly1305 and prefixes the random nonce.
func SealX(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, xchacha.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, aad)
	return out, nil
}

func OpenX(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < xchacha.NonceSizeX+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:xchacha.NonceSizeX]
	ct := ciphertext[xchacha.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}

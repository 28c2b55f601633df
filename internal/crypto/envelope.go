package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopeSaltSize = 32
	envelopeIVSize   = aes.BlockSize // 16 bytes
	envelopeMacSize  = sha256.Size   // 32 bytes
	envelopeMinSize  = envelopeSaltSize + envelopeIVSize + envelopeMacSize

	envelopeInfo = "securevault/envelope/v1"
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrInvalidMAC         = errors.New("crypto: message authentication failed")
	ErrEmptyKey           = errors.New("crypto: empty master key")
)

// Seal applies encrypt-then-MAC using AES-CTR for confidentiality and HMAC-SHA256
// for integrity. Both keys come from HKDF-SHA256 over masterKey with a random
// per-message salt. Layout: [salt||iv||ciphertext||mac].
func Seal(masterKey, plaintext, aad []byte) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, ErrEmptyKey
	}

	salt := make([]byte, envelopeSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	iv := make([]byte, envelopeIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	encKey, macKey, err := deriveEnvelopeKeys(masterKey, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(encKey)
	defer memguard.WipeBytes(macKey)

	out := make([]byte, envelopeSaltSize+envelopeIVSize+len(plaintext), envelopeSaltSize+envelopeIVSize+len(plaintext)+envelopeMacSize)
	copy(out, salt)
	copy(out[envelopeSaltSize:], iv)
	body := out[envelopeSaltSize+envelopeIVSize:]
	if err := xorCTR(encKey, iv, body, plaintext); err != nil {
		return nil, err
	}
	return append(out, computeMAC(macKey, aad, iv, body)...), nil
}

// Open authenticates and decrypts data produced by Seal.
func Open(masterKey, ciphertext, aad []byte) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, ErrEmptyKey
	}
	if len(ciphertext) < envelopeMinSize {
		return nil, ErrCiphertextTooShort
	}

	salt := ciphertext[:envelopeSaltSize]
	iv := ciphertext[envelopeSaltSize : envelopeSaltSize+envelopeIVSize]
	macStart := len(ciphertext) - envelopeMacSize
	body := ciphertext[envelopeSaltSize+envelopeIVSize : macStart]

	encKey, macKey, err := deriveEnvelopeKeys(masterKey, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(encKey)
	defer memguard.WipeBytes(macKey)

	if subtle.ConstantTimeCompare(computeMAC(macKey, aad, iv, body), ciphertext[macStart:]) != 1 {
		return nil, ErrInvalidMAC
	}

	pt := make([]byte, len(body))
	if err := xorCTR(encKey, iv, pt, body); err != nil {
		return nil, err
	}
	return pt, nil
}

func xorCTR(key, iv, dst, src []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	cipher.NewCTR(block, iv).XORKeyStream(dst, src)
	return nil
}

func deriveEnvelopeKeys(masterKey, salt []byte) (encKey, macKey []byte, err error) {
	stream := hkdf.New(sha256.New, masterKey, salt, []byte(envelopeInfo))
	encKey = make([]byte, 32)
	macKey = make([]byte, 32)
	if _, err = io.ReadFull(stream, encKey); err != nil {
		return nil, nil, err
	}
	if _, err = io.ReadFull(stream, macKey); err != nil {
		return nil, nil, err
	}
	return encKey, macKey, nil
}

func computeMAC(macKey, aad, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	if len(aad) > 0 {
		mac.Write(aad)
	}
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

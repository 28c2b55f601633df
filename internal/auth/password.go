package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultIterations = 100000
	saltLen           = 16
	hashLen           = 32
)

var ErrInvalidHash = errors.New("invalid password hash")

var hashEncoding = base64.StdEncoding

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// hashPassword returns base64(PBKDF2-HMAC-SHA256(password, salt)).
func hashPassword(password string, salt []byte, iterations int) string {
	key := pbkdf2.Key([]byte(password), salt, iterations, hashLen, sha256.New)
	return hashEncoding.EncodeToString(key)
}

// checkPassword recomputes the hash for password and compares it with the
// stored one in constant time.
func checkPassword(password, encodedSalt, encodedHash string, iterations int) (bool, error) {
	salt, err := hashEncoding.DecodeString(encodedSalt)
	if err != nil {
		return false, ErrInvalidHash
	}
	want, err := hashEncoding.DecodeString(encodedHash)
	if err != nil || len(want) != hashLen {
		return false, ErrInvalidHash
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, hashLen, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

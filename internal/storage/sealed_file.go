package storage

import (
	"errors"
	"os"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
)

// SealedFile is a LockedFile whose content is a single codec token.
type SealedFile struct {
	file  *LockedFile
	codec *crypto.Codec
}

func OpenSealedFile(path string, codec *crypto.Codec) (*SealedFile, error) {
	lf, err := OpenLockedFile(path)
	if err != nil {
		return nil, err
	}
	return &SealedFile{file: lf, codec: codec}, nil
}

// Load decrypts the stored document. found is false when nothing has been
// saved yet; decryption failures surface as crypto.ErrDecryptionFailed.
func (s *SealedFile) Load() (plaintext []byte, found bool, err error) {
	tok, err := s.file.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	pt, err := s.codec.Decrypt(tok)
	if err != nil {
		return nil, true, err
	}
	return pt, true, nil
}

func (s *SealedFile) Save(plaintext []byte) error {
	tok, err := s.codec.Encrypt(plaintext)
	if err != nil {
		return err
	}
	return s.file.Write(tok)
}

// Raw returns the stored token without decrypting it.
func (s *SealedFile) Raw() ([]byte, error) { return s.file.Read() }

// WriteRaw replaces the stored token after checking that it opens under
// this file's key.
func (s *SealedFile) WriteRaw(token []byte) error {
	if _, err := s.codec.Decrypt(token); err != nil {
		return err
	}
	return s.file.Write(token)
}

func (s *SealedFile) Path() string { return s.file.Path() }

func (s *SealedFile) Close() error { return s.file.Close() }

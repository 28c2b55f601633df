// Package backup produces portable, passphrase-protected vault bundles.
// A bundle is independent of the vault key file, so it can be restored on a
// machine that never saw the original key.
package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/pbkdf2"

	"github.com/JoaoSantosCodes/SecureVault/internal/crypto"
	"github.com/JoaoSantosCodes/SecureVault/internal/exchange"
)

// Bundle layout: magic, version, KDF header, sealed payload. The whole header
// is authenticated as associated data.
//
//	v1: salt[16]                                 PBKDF2-SHA256, read only
//	v2: memory[4] time[4] threads[1] n[1] salt[n] Argon2id
const (
	versionPBKDF2  byte = 1
	versionArgon2  byte = 2
	currentVersion      = versionArgon2

	v1SaltLen    = 16
	v1Iterations = 100000

	// bounds on KDF parameters read from a bundle
	maxMemoryKiB = 1 << 20
	maxTime      = 16

	// decoded bundles larger than this are rejected
	maxPlaintext = 64 << 20
)

var magic = []byte("SVBK")

var (
	ErrBadBundle       = errors.New("backup: not a valid bundle")
	ErrWrongPassphrase = errors.New("backup: wrong passphrase or damaged bundle")
	ErrEmptyPassphrase = errors.New("backup: empty passphrase")
)

// kdfParams produces the parameters for a new bundle. Tests lower the cost.
var kdfParams = crypto.DefaultKDFParams

// Create exports every entry of src into a sealed bundle.
func Create(src exchange.Source, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	rows, err := exchange.Export(src)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []exchange.Row{}
	}
	plain, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(plain)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	packed := enc.EncodeAll(plain, nil)
	_ = enc.Close()
	defer memguard.WipeBytes(packed)

	params, err := kdfParams()
	if err != nil {
		return nil, err
	}
	header := make([]byte, 0, len(magic)+11+len(params.Salt))
	header = append(header, magic...)
	header = append(header, currentVersion)
	header = binary.BigEndian.AppendUint32(header, params.Memory)
	header = binary.BigEndian.AppendUint32(header, params.Time)
	header = append(header, params.P, byte(len(params.Salt)))
	header = append(header, params.Salt...)

	key, err := params.Stretch(passphrase)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)
	sealed, err := crypto.Seal(key, packed, header)
	if err != nil {
		return nil, err
	}
	return append(header, sealed...), nil
}

// parseHeader splits bundle into its header and sealed payload and derives
// the payload key from passphrase.
func parseHeader(bundle, passphrase []byte) (header, body, key []byte, err error) {
	if len(bundle) < len(magic)+1 || !bytes.Equal(bundle[:len(magic)], magic) {
		return nil, nil, nil, ErrBadBundle
	}
	rest := bundle[len(magic)+1:]
	switch v := bundle[len(magic)]; v {
	case versionPBKDF2:
		if len(rest) < v1SaltLen {
			return nil, nil, nil, ErrBadBundle
		}
		n := len(magic) + 1 + v1SaltLen
		key = pbkdf2.Key(passphrase, bundle[len(magic)+1:n], v1Iterations, crypto.KeySize, sha256.New)
		return bundle[:n], bundle[n:], key, nil
	case versionArgon2:
		if len(rest) < 10 {
			return nil, nil, nil, ErrBadBundle
		}
		p := crypto.KDFParams{
			Algo:   "argon2id",
			Memory: binary.BigEndian.Uint32(rest[0:4]),
			Time:   binary.BigEndian.Uint32(rest[4:8]),
			P:      rest[8],
		}
		saltLen := int(rest[9])
		if len(rest) < 10+saltLen || p.Memory > maxMemoryKiB || p.Time > maxTime {
			return nil, nil, nil, ErrBadBundle
		}
		p.Salt = rest[10 : 10+saltLen]
		key, err = p.Stretch(passphrase)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrBadBundle, err)
		}
		n := len(magic) + 1 + 10 + saltLen
		return bundle[:n], bundle[n:], key, nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrBadBundle, v)
	}
}

// Open authenticates and unpacks a bundle produced by Create.
func Open(bundle, passphrase []byte) ([]exchange.Row, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	header, body, key, err := parseHeader(bundle, passphrase)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)
	packed, err := crypto.Open(key, body, header)
	switch {
	case errors.Is(err, crypto.ErrInvalidMAC):
		return nil, ErrWrongPassphrase
	case errors.Is(err, crypto.ErrCiphertextTooShort):
		return nil, ErrBadBundle
	case err != nil:
		return nil, err
	}
	defer memguard.WipeBytes(packed)

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPlaintext))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}
	defer memguard.WipeBytes(plain)

	var rows []exchange.Row
	if err := json.Unmarshal(plain, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}
	return rows, nil
}

// Restore imports the bundle's entries into dst. Existing entries win.
func Restore(dst exchange.Sink, bundle, passphrase []byte) (exchange.Report, error) {
	rows, err := Open(bundle, passphrase)
	if err != nil {
		return exchange.Report{}, err
	}
	return exchange.Import(dst, rows)
}

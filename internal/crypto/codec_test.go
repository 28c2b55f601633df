package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(GenerateKey())
	for _, pt := range [][]byte{
		{},
		[]byte("hunter2"),
		[]byte(`{"groups":{"General":{}},"default_group":"General"}`),
		bytes.Repeat([]byte{0xA5}, 1<<16),
	} {
		tok, err := c.Encrypt(pt)
		require.NoError(t, err)
		got, err := c.Decrypt(tok)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestCodecTokenIsTextSafe(t *testing.T) {
	c := NewCodec(GenerateKey())
	tok, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	for _, b := range tok {
		ok := b == '-' || b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
		require.Truef(t, ok, "unexpected byte %q in token", b)
	}
}

func TestCodecFreshNonce(t *testing.T) {
	c := NewCodec(GenerateKey())
	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodecWrongKey(t *testing.T) {
	tok, err := NewCodec(GenerateKey()).Encrypt([]byte("secret"))
	require.NoError(t, err)
	_, err = NewCodec(GenerateKey()).Decrypt(tok)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCodecRejectsDamagedTokens(t *testing.T) {
	c := NewCodec(GenerateKey())
	tok, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)

	raw := make([]byte, tokenEncoding.DecodedLen(len(tok)))
	n, err := tokenEncoding.Decode(raw, tok)
	require.NoError(t, err)
	raw = raw[:n]

	reencode := func(b []byte) []byte {
		out := make([]byte, tokenEncoding.EncodedLen(len(b)))
		tokenEncoding.Encode(out, b)
		return out
	}
	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-1] ^= 0x01
	badVersion := append([]byte(nil), raw...)
	badVersion[0] = 0x02

	cases := map[string][]byte{
		"empty":       {},
		"not base64":  []byte("!!!not-a-token!!!"),
		"truncated":   reencode(raw[:len(raw)-1]),
		"tampered":    reencode(flipped),
		"version":     reencode(badVersion),
		"header only": reencode(raw[:1+24]),
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(bad)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestCodecStringHelpers(t *testing.T) {
	c := NewCodec(GenerateKey())
	tok, err := c.EncryptString("p@ss")
	require.NoError(t, err)
	assert.NotContains(t, tok, "p@ss")
	got, err := c.DecryptString(tok + "\n")
	require.NoError(t, err)
	assert.Equal(t, "p@ss", got)
}

func FuzzCodecDecryptNeverPanics(f *testing.F) {
	f.Add([]byte("AQ"))
	f.Add([]byte(""))
	c := NewCodec(GenerateKey())
	f.Fuzz(func(t *testing.T, tok []byte) {
		if _, err := c.Decrypt(tok); err != nil && err != ErrDecryptionFailed {
			t.Fatalf("unexpected error type: %v", err)
		}
	})
}

func BenchmarkCodecEncrypt(b *testing.B) {
	c := NewCodec(GenerateKey())
	pt := randBytes(b, 4096)
	b.SetBytes(int64(len(pt)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Encrypt(pt); err != nil {
			b.Fatal(err)
		}
	}
}

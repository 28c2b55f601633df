package auth

import (
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	salt, err := newSalt()
	if err != nil {
		t.Fatalf("newSalt error: %v", err)
	}
	hash := hashPassword("Password123!", salt, 1000)
	ok, err := checkPassword("Password123!", hashEncoding.EncodeToString(salt), hash, 1000)
	if err != nil {
		t.Fatalf("checkPassword error: %v", err)
	}
	if !ok {
		t.Fatalf("expected checkPassword to succeed")
	}
	ok, err = checkPassword("password123!", hashEncoding.EncodeToString(salt), hash, 1000)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHashMatchesKnownVector(t *testing.T) {
	// PBKDF2-HMAC-SHA256("password", "salt", c=1, dkLen=32).
	got := hashPassword("password", []byte("salt"), 1)
	const want = "Eg+2z/z4syxD5yJSVsT4N6hlSMkszDVICAWYfLcL4Xs="
	if got != want {
		t.Fatalf("hash = %s, want %s", got, want)
	}
}

func TestCheckPasswordRejectsMalformedHash(t *testing.T) {
	ok, err := checkPassword("Password123!", "AAAA", "invalid-hash-format", 1000)
	if err == nil {
		t.Fatalf("expected error for malformed hash")
	}
	if ok {
		t.Fatalf("expected verification failure for malformed hash")
	}
}

package driver

import (
	"bytes"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testSalt() []byte {
	return bytes.Repeat([]byte{0x42}, sealSaltSize)
}

func TestNewSealerRejectsWrongSaltSize(t *testing.T) {
	if _, err := NewSealer("passphrase", []byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a salt that isn't sealSaltSize bytes")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer("a development passphrase", testSalt())
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	plaintext := []byte("open_DB host=primary")
	envelope, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Equal(envelope, plaintext) {
		t.Fatal("expected Seal to produce ciphertext distinct from the plaintext")
	}

	got, err := s.Open(envelope)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("expected round-tripped plaintext %q, got %q", plaintext, got)
	}
}

func TestOpenRejectsTamperedEnvelope(t *testing.T) {
	s, err := NewSealer("a development passphrase", testSalt())
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	envelope, err := s.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	envelope[len(envelope)-1] ^= 0xFF
	if _, err := s.Open(envelope); err == nil {
		t.Fatal("expected Open to reject a tampered envelope")
	}
}

func TestOpenRejectsEnvelopeShorterThanNonce(t *testing.T) {
	s, err := NewSealer("a development passphrase", testSalt())
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}
	if _, err := s.Open([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected Open to reject an envelope shorter than the nonce")
	}
}

func TestDifferentPassphrasesProduceDifferentKeys(t *testing.T) {
	a, _ := NewSealer("passphrase-a", testSalt())
	b, _ := NewSealer("passphrase-b", testSalt())
	envelope, err := a.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := b.Open(envelope); err == nil {
		t.Fatal("expected a sealer with a different passphrase to fail opening the envelope")
	}
}

func TestNewHostSignerRejectsShortSecret(t *testing.T) {
	if _, err := NewHostSigner([]byte("too-short")); err == nil {
		t.Fatal("expected an error for a secret shorter than 32 bytes")
	}
}

func testSecret() []byte {
	return bytes.Repeat([]byte{0x7A}, 32)
}

func TestSignAndVerifyHostInfoRoundTrip(t *testing.T) {
	signer, err := NewHostSigner(testSecret())
	if err != nil {
		t.Fatalf("NewHostSigner failed: %v", err)
	}
	tok, err := signer.SignHostInfo("host-primary")
	if err != nil {
		t.Fatalf("SignHostInfo failed: %v", err)
	}
	claims, err := signer.VerifyHostInfo(tok)
	if err != nil {
		t.Fatalf("VerifyHostInfo failed: %v", err)
	}
	if claims.HostID != "host-primary" {
		t.Errorf("expected HostID %q, got %q", "host-primary", claims.HostID)
	}
}

func TestVerifyHostInfoRejectsTokenFromDifferentSecret(t *testing.T) {
	signer1, _ := NewHostSigner(testSecret())
	signer2, _ := NewHostSigner(bytes.Repeat([]byte{0x11}, 32))

	tok, err := signer1.SignHostInfo("host-a")
	if err != nil {
		t.Fatalf("SignHostInfo failed: %v", err)
	}
	if _, err := signer2.VerifyHostInfo(tok); err == nil {
		t.Fatal("expected verification to fail against a different signer's secret")
	}
}

func TestVerifyHostInfoRejectsGarbageToken(t *testing.T) {
	signer, _ := NewHostSigner(testSecret())
	if _, err := signer.VerifyHostInfo("not-a-jwt"); err == nil {
		t.Fatal("expected an error verifying a malformed token")
	}
}

func TestVerifyHostInfoRejectsExpiredToken(t *testing.T) {
	// Directly construct an expired token to avoid depending on a
	// minimum TTL in SignHostInfo itself.
	signer, err := NewHostSigner(testSecret())
	if err != nil {
		t.Fatalf("NewHostSigner failed: %v", err)
	}
	claims := HostInfoClaims{
		HostID: "host-b",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok, err := token.SignedString(signer.secret)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := signer.VerifyHostInfo(tok); err == nil {
		t.Fatal("expected verification to reject an expired token")
	}
}

package driver

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/golang-jwt/jwt/v5"
)

// Sealer protects the out-of-band metadata channel (spec §6: open/close/
// erase, file selection, search requests, and host info) with AES-256-GCM,
// adapted from the teacher's encryption engine (pkg/encryption/engine.go)
// to this narrower job: sealing one control-plane envelope at a time
// rather than a streaming file format. This channel carries host-authored
// commands, not SSTable/value bytes, so sealing it is a confidentiality
// concern distinct from the Non-goal that excludes data compression.
type Sealer struct {
	key [32]byte
}

const (
	sealNonceSize    = 12
	sealPBKDF2Rounds = 600000
	sealSaltSize     = 16
)

// NewSealer derives a sealing key from a passphrase via PBKDF2-SHA256,
// matching the KDF the teacher's encryption engine uses.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if len(salt) != sealSaltSize {
		return nil, fmt.Errorf("driver: salt must be %d bytes", sealSaltSize)
	}
	var s Sealer
	copy(s.key[:], pbkdf2.Key([]byte(passphrase), salt, sealPBKDF2Rounds, 32, sha256.New))
	return &s, nil
}

// Seal encrypts payload, returning nonce||ciphertext||tag.
func (s *Sealer) Seal(payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, sealNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, payload, nil), nil
}

// Open decrypts a Seal'd envelope.
func (s *Sealer) Open(envelope []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(envelope) < sealNonceSize {
		return nil, fmt.Errorf("driver: sealed envelope shorter than nonce")
	}
	nonce, ciphertext := envelope[:sealNonceSize], envelope[sealNonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// HostInfoClaims identifies which host issued a metadata-channel command,
// per spec §6's mention of host info riding the command channel.
type HostInfoClaims struct {
	HostID string `json:"host_id"`
	jwt.RegisteredClaims
}

// HostSigner signs short-lived host-info tokens attached to open_DB
// requests, grounded on the teacher's JWTManager (pkg/auth/jwt.go).
type HostSigner struct {
	secret []byte
}

// NewHostSigner builds a signer. The secret must be at least 32 bytes,
// the same minimum the teacher's JWTManager enforces.
func NewHostSigner(secret []byte) (*HostSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("driver: host signer secret must be at least 32 bytes")
	}
	return &HostSigner{secret: append([]byte(nil), secret...)}, nil
}

// SignHostInfo issues a signed token identifying hostID, attached to the
// metadata envelope of an open_DB/search-offload request.
func (h *HostSigner) SignHostInfo(hostID string) (string, error) {
	claims := HostInfoClaims{HostID: hostID}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

// VerifyHostInfo validates a signed host-info token and returns its claims.
func (h *HostSigner) VerifyHostInfo(tokenStr string) (*HostInfoClaims, error) {
	claims := &HostInfoClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("driver: invalid host-info token")
	}
	return claims, nil
}

package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is 32 bytes, the HMAC-SHA256 block-friendly key size.
	DerivedKeyLength = 32

	purposeSessionJWT = "tixdesk-session-jwt-v1"
)

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a 32-byte key from masterSecret with HKDF-SHA256.
// Different purpose strings yield independent keys.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	// salt=nil is allowed by RFC 5869
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))

	key := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveSessionKey derives the HMAC key used to sign session tokens from the
// configured JWT secret.
func DeriveSessionKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeSessionJWT)
}

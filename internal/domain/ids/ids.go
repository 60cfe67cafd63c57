// Package ids mints and checks the identifiers used across the service:
// UUIDs for accounts and ULIDs for events.
package ids

import (
	"crypto/rand"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)

	ErrInvalidULID   = errors.New("invalid ULID")
	ErrInvalidUserID = errors.New("invalid user id")
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewUserID returns a random (v4) UUID string.
func NewUserID() string {
	return uuid.NewString()
}

// NewEventID returns a ULID for now. IDs minted within the same
// millisecond still sort in creation order.
func NewEventID() string {
	return newULID(time.Now())
}

func newULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// IsULID returns true when value is a valid ULID (case-insensitive Crockford Base32).
func IsULID(value string) bool {
	return ulidRegex.MatchString(strings.TrimSpace(value))
}

func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// ValidateUserID accepts only the canonical hyphenated UUID form that
// NewUserID produces.
func ValidateUserID(value string) error {
	parsed, err := uuid.Parse(value)
	if err != nil || parsed.String() != strings.ToLower(value) {
		return ErrInvalidUserID
	}
	return nil
}

package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tixdesk/server/internal/auth"
)

// Error types for user domain operations
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("admin role required")
)

// InputError describes a rejected request field. It matches ErrInvalidInput
// with errors.Is.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// User is an account record. PasswordHash never leaves the service layer;
// HTTP responses are built from a separate type without it.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Skills       []string
	Role         auth.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// CreateUserParams is what the store persists for a new account.
type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	Skills       []string
	Role         auth.Role
}

// UserUpdate lists the fields an admin update changes. Nil fields are kept.
type UserUpdate struct {
	Skills []string
	Role   *auth.Role
}

// SignupEvent is published once per created account. ID stays the same
// across delivery attempts so consumers can deduplicate.
type SignupEvent struct {
	ID         string
	UserID     string
	Email      string
	OccurredAt time.Time
}

// AfterCreateFunc runs inside the transaction that inserts the user. An
// error rolls the insert back. tx is nil for stores without transactions.
type AfterCreateFunc func(ctx context.Context, tx pgx.Tx, user User) error

// Store is the credential store. Email uniqueness must be enforced by the
// store itself; CreateUser returns ErrEmailTaken on conflict.
type Store interface {
	CreateUser(ctx context.Context, params CreateUserParams, after AfterCreateFunc) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdateUserByEmail(ctx context.Context, email string, update UserUpdate) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	RecordLogin(ctx context.Context, id string) error
}

// Outbox schedules asynchronous delivery of account events. Implementations
// write into tx so the event commits or rolls back with the account.
type Outbox interface {
	EnqueueSignup(ctx context.Context, tx pgx.Tx, event SignupEvent) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type TokenIssuer interface {
	Generate(subject, role, email string) (string, error)
}

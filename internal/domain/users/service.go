// Package users implements account signup, login and admin-only account
// management on top of a credential store.
//
// Core operations:
//   - Signup: create an account, schedule the signup event, issue a token
//   - Login: verify email/password and issue a token
//   - UpdateUser: admin-only change of another account's skills or role
//   - ListUsers: admin-only listing of every account
//   - ResolveIdentity: load the current identity behind a token subject
//   - BootstrapAdmin: create the first admin account at startup
//
// Emails are trimmed and lower-cased before any lookup or insert, so
// "A@X.com" and "a@x.com" name the same account.
package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/tixdesk/server/internal/audit"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/domain/ids"
	"github.com/tixdesk/server/internal/sanitize"
	"github.com/tixdesk/server/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = telemetry.GetTracer("github.com/tixdesk/server/internal/domain/users")

// SignupParams is the payload of a signup request.
type SignupParams struct {
	Email    string
	Password string
	Skills   []string
}

// LoginParams is the payload of a login request.
type LoginParams struct {
	Email    string
	Password string
}

// UpdateUserParams names the target account by email. Empty Skills and a
// nil or blank Role leave the stored values unchanged.
type UpdateUserParams struct {
	Email  string
	Skills []string
	Role   *string
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	User  User
	Token string
}

type credentialsInput struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
}

// Service handles account operations.
type Service struct {
	store     Store
	hasher    PasswordHasher
	tokens    TokenIssuer
	outbox    Outbox
	audit     *audit.Logger
	logger    zerolog.Logger
	validator *validator.Validate
	now       func() time.Time

	redactEmails bool
}

// Option configures a Service.
type Option func(*Service)

// WithEmailRedaction keeps email addresses out of logs and audit entries.
func WithEmailRedaction(redact bool) Option {
	return func(s *Service) { s.redactEmails = redact }
}

// NewService creates a user service. outbox and auditLogger may be nil; a
// nil outbox means signup events are not scheduled.
func NewService(
	store Store,
	hasher PasswordHasher,
	tokens TokenIssuer,
	outbox Outbox,
	auditLogger *audit.Logger,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		outbox:    outbox,
		audit:     auditLogger,
		logger:    logger.With().Str("component", "users").Logger(),
		validator: validator.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup creates an account with role user and returns it with a fresh
// token.
//
// The signup event is written to the outbox in the same transaction as the
// account row, so it is scheduled exactly when the account commits. Its
// delivery happens later and never affects this call.
//
// Errors:
//   - ErrInvalidInput (as *InputError): missing or malformed email or password
//   - ErrEmailTaken: the normalized email already exists
func (s *Service) Signup(ctx context.Context, params SignupParams) (_ AuthResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracer, "users.Signup")
	defer func() { telemetry.EndSpan(span, err) }()

	email := NormalizeEmail(params.Email)
	if err := s.validateCredentials(email, params.Password); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return AuthResult{}, &InputError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes)}
		}
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	event := SignupEvent{
		ID:         ids.NewEventID(),
		Email:      email,
		OccurredAt: s.now().UTC(),
	}

	user, err := s.store.CreateUser(ctx, CreateUserParams{
		ID:           ids.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		Skills:       sanitize.Labels(params.Skills),
		Role:         auth.RoleUser,
	}, func(ctx context.Context, tx pgx.Tx, created User) error {
		if s.outbox == nil {
			return nil
		}
		event.UserID = created.ID
		if err := s.outbox.EnqueueSignup(ctx, tx, event); err != nil {
			return fmt.Errorf("enqueue signup event: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Generate(user.ID, string(user.Role), user.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	if s.outbox == nil {
		s.logger.Warn().Str("user_id", user.ID).Msg("no outbox configured; signup event not scheduled")
	}
	s.audit.LogSuccess(ctx, "user.signup", user.ID, "user", user.ID, map[string]string{"event_id": event.ID})

	return AuthResult{User: user, Token: token}, nil
}

// Login verifies the password for email and returns a fresh token.
//
// An unknown email yields ErrUserNotFound and a wrong password yields
// ErrInvalidCredentials. Callers that must not reveal which one happened
// map both to the same response.
func (s *Service) Login(ctx context.Context, params LoginParams) (_ AuthResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracer, "users.Login")
	defer func() { telemetry.EndSpan(span, err) }()

	email := NormalizeEmail(params.Email)
	if email == "" {
		return AuthResult{}, &InputError{Field: "email", Message: "is required"}
	}
	if params.Password == "" {
		return AuthResult{}, &InputError{Field: "password", Message: "is required"}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.audit.LogFailure(ctx, "user.login", "anonymous", s.withEmail(map[string]string{"reason": "unknown_email"}, email))
			return AuthResult{}, ErrUserNotFound
		}
		return AuthResult{}, fmt.Errorf("get user: %w", err)
	}

	if !s.hasher.Verify(params.Password, user.PasswordHash) {
		s.audit.LogFailure(ctx, "user.login", user.ID, map[string]string{"reason": "bad_password"})
		return AuthResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, string(user.Role), user.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	if err := s.store.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	} else {
		now := s.now().UTC()
		user.LastLoginAt = &now
	}
	s.audit.LogSuccess(ctx, "user.login", user.ID, "user", user.ID, nil)

	return AuthResult{User: user, Token: token}, nil
}

// UpdateUser changes skills and/or role of the account named by
// params.Email. The requester must be an admin.
//
// Errors:
//   - ErrForbidden: requester is not an admin
//   - ErrInvalidInput: missing email or unknown role
//   - ErrUserNotFound: no account with that email
func (s *Service) UpdateUser(ctx context.Context, requester auth.Identity, params UpdateUserParams) (_ User, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracer, "users.UpdateUser", attribute.String("requester.role", string(requester.Role)))
	defer func() { telemetry.EndSpan(span, err) }()

	if !requester.IsAdmin() {
		s.audit.LogFailure(ctx, "user.updated", requester.UserID, map[string]string{"reason": "forbidden"})
		return User{}, ErrForbidden
	}

	email := NormalizeEmail(params.Email)
	if email == "" {
		return User{}, &InputError{Field: "email", Message: "is required"}
	}

	var update UserUpdate
	if skills := sanitize.Labels(params.Skills); len(skills) > 0 {
		update.Skills = skills
	}
	if params.Role != nil && strings.TrimSpace(*params.Role) != "" {
		role, ok := auth.ParseRole(*params.Role)
		if !ok {
			return User{}, &InputError{Field: "role", Message: fmt.Sprintf("must be %q or %q", auth.RoleUser, auth.RoleAdmin)}
		}
		update.Role = &role
	}

	user, err := s.store.UpdateUserByEmail(ctx, email, update)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	details := s.withEmail(map[string]string{}, user.Email)
	if update.Role != nil {
		details["role"] = string(*update.Role)
	}
	if update.Skills != nil {
		details["skills"] = strings.Join(update.Skills, ",")
	}
	s.audit.LogSuccess(ctx, "user.updated", requester.UserID, "user", user.ID, details)

	return user, nil
}

// ListUsers returns every account ordered by creation time. The requester
// must be an admin.
func (s *Service) ListUsers(ctx context.Context, requester auth.Identity) ([]User, error) {
	if !requester.IsAdmin() {
		s.audit.LogFailure(ctx, "user.listed", requester.UserID, map[string]string{"reason": "forbidden"})
		return nil, ErrForbidden
	}

	list, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	s.audit.LogSuccess(ctx, "user.listed", requester.UserID, "user", "", map[string]string{"count": strconv.Itoa(len(list))})
	return list, nil
}

// ResolveIdentity loads the account behind a token subject. The returned
// role is the stored one, so a demoted admin loses access immediately.
func (s *Service) ResolveIdentity(ctx context.Context, subject string) (auth.Identity, error) {
	if err := ids.ValidateUserID(subject); err != nil {
		return auth.Identity{}, ErrUserNotFound
	}
	user, err := s.store.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return auth.Identity{}, ErrUserNotFound
		}
		return auth.Identity{}, fmt.Errorf("get user: %w", err)
	}
	return auth.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// BootstrapAdmin creates an admin account for email unless one with that
// email already exists. It reports whether an account was created. No
// signup event is scheduled for bootstrapped accounts.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	if err := s.validateCredentials(email, password); err != nil {
		return false, err
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		ev := s.logger.Debug()
		if !s.redactEmails {
			ev = ev.Str("email", email)
		}
		ev.Msg("admin user already exists")
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("check existing admin: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, CreateUserParams{
		ID:           ids.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		Skills:       []string{},
		Role:         auth.RoleAdmin,
	}, nil)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return false, nil
		}
		return false, fmt.Errorf("create admin user: %w", err)
	}

	s.audit.LogSuccess(ctx, "admin.bootstrapped", "system", "user", user.ID, s.withEmail(nil, email))
	return true, nil
}

// withEmail adds email to details unless emails are redacted.
func (s *Service) withEmail(details map[string]string, email string) map[string]string {
	if s.redactEmails {
		return details
	}
	if details == nil {
		details = make(map[string]string, 1)
	}
	details["email"] = email
	return details
}

// NormalizeEmail trims surrounding whitespace and lower-cases email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) validateCredentials(email, password string) error {
	err := s.validator.Struct(credentialsInput{Email: email, Password: password})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate credentials: %w", err)
	}
	fe := verrs[0]
	return &InputError{Field: strings.ToLower(fe.Field()), Message: validationMessage(fe)}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

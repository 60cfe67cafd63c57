// Package testauth mints bearer tokens for tests and local development.
// This package should NEVER be used in production code.
//
// Tokens are signed with the same JWTManager the server uses, so a token
// minted here passes the bearer gate as long as the secret and issuer match
// the server's configuration and the subject names a stored account.
package testauth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tixdesk/server/internal/auth"
)

const (
	// DevJWTSecret is the well-known development secret.
	DevJWTSecret = "dev_jwt_secret_change_me_in_production"
	DevIssuer    = "tixdesk"
)

// Config configures the test authenticator.
type Config struct {
	// JWTSecret defaults to DEV_JWT_SECRET, then DevJWTSecret.
	JWTSecret string
	// Issuer defaults to DevIssuer.
	Issuer string
	// Role defaults to "admin".
	Role string
	// Subject is the user id the token names. Required.
	Subject string
	Email   string
	// TTL defaults to one hour.
	TTL time.Duration
}

// TestAuthenticator adds a pre-minted bearer token to requests.
type TestAuthenticator struct {
	token string
}

// NewTestAuthenticator mints a token from cfg.
func NewTestAuthenticator(cfg Config) (*TestAuthenticator, error) {
	if cfg.Subject == "" {
		return nil, errors.New("testauth: subject is required")
	}
	secret := cfg.JWTSecret
	if secret == "" {
		secret = os.Getenv("DEV_JWT_SECRET")
	}
	if secret == "" {
		secret = DevJWTSecret
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DevIssuer
	}
	role := cfg.Role
	if role == "" {
		role = string(auth.RoleAdmin)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	token, err := auth.NewJWTManager(secret, ttl, issuer).Generate(cfg.Subject, role, cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &TestAuthenticator{token: token}, nil
}

// Token returns the raw JWT.
func (ta *TestAuthenticator) Token() string {
	return ta.token
}

// AddAuth sets the Authorization header on req.
func (ta *TestAuthenticator) AddAuth(req *http.Request) {
	if req == nil {
		return
	}
	req.Header.Set("Authorization", ta.AuthHeader())
}

// AuthHeader returns the Authorization header value.
func (ta *TestAuthenticator) AuthHeader() string {
	return "Bearer " + ta.token
}

// DevJWTToken mints a token for subject with the development defaults.
func DevJWTToken(role, subject, email string) (string, error) {
	ta, err := NewTestAuthenticator(Config{Role: role, Subject: subject, Email: email})
	if err != nil {
		return "", err
	}
	return ta.Token(), nil
}

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTGenerateValidate(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	jwtToken, err := manager.Generate("user-1", "admin", "a@x.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := manager.Validate(jwtToken)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "admin" || claims.Email != "a@x.com" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestJWTGenerateTwiceSameSubject(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	first, err := manager.Generate("user-1", "user", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := manager.Generate("user-1", "user", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens")
	}
	for _, tok := range []string{first, second} {
		claims, err := manager.Validate(tok)
		if err != nil || claims.Subject != "user-1" {
			t.Fatalf("validate %q: claims=%v err=%v", tok, claims, err)
		}
	}
}

func TestJWTGenerateInvalid(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	if _, err := manager.Generate("", "admin", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := manager.Generate("user-1", "", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestJWTValidateMissing(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	if _, err := manager.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestJWTValidateRejectsEveryByteMutation(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	token, err := manager.Generate("user-1", "user", "a@x.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for i := 0; i < len(token); i++ {
		mutated := []byte(token)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		if _, err := manager.Validate(string(mutated)); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("mutation at byte %d accepted (err=%v)", i, err)
		}
	}
}

func TestJWTValidateWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret", time.Hour, "issuer").Generate("user-1", "user", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewJWTManager("other", time.Hour, "issuer").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestJWTValidateWrongIssuer(t *testing.T) {
	token, err := NewJWTManager("secret", time.Hour, "someone-else").Generate("user-1", "user", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewJWTManager("secret", time.Hour, "issuer").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestJWTValidateExpired(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	issued := time.Now().Add(-2 * time.Hour)
	manager.now = func() time.Time { return issued }

	token, err := manager.Generate("user-1", "user", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	manager.now = time.Now
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestJWTValidateRejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	manager := NewJWTManager("secret", time.Hour, "issuer")
	if _, err := manager.Validate(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestJWTValidateRejectsMissingExpiry(t *testing.T) {
	claims := &Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "issuer"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	manager := NewJWTManager("secret", time.Hour, "issuer")
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token without exp to be rejected, got %v", err)
	}
}

func TestTokenFromHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{header: "", err: ErrMissingToken},
		{header: "nope", err: ErrMissingToken},
		{header: "Basic abc", err: ErrMissingToken},
		{header: "Bearer", err: ErrMissingToken},
		{header: "Bearer a b", err: ErrMissingToken},
		{header: "Bearer token", want: "token"},
		{header: "bearer token", want: "token"},
	}

	for _, tt := range tests {
		got, err := TokenFromHeader(tt.header)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("TokenFromHeader(%q) err = %v, want %v", tt.header, err, tt.err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("TokenFromHeader(%q) = %q, %v; want %q", tt.header, got, err, tt.want)
		}
	}
}

func TestJWTManagerEmptySecret(t *testing.T) {
	manager := NewJWTManager("", time.Hour, "issuer")
	if _, err := manager.Generate("user-1", "user", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty secret to refuse issuing, got %v", err)
	}

	token, err := NewJWTManager("secret", time.Hour, "issuer").Generate("user-1", "user", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty secret to reject tokens, got %v", err)
	}
}

func TestJWTSignedWithRawSecretIsRejected(t *testing.T) {
	claims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTManager("secret", time.Hour, "issuer").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token signed with the raw secret to be rejected, got %v", err)
	}
}

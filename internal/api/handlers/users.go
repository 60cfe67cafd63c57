package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tixdesk/server/internal/api/problem"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/domain/users"
	"github.com/tixdesk/server/internal/metrics"
)

// AccountService is the subset of users.Service the HTTP layer needs.
type AccountService interface {
	Signup(ctx context.Context, params users.SignupParams) (users.AuthResult, error)
	Login(ctx context.Context, params users.LoginParams) (users.AuthResult, error)
	UpdateUser(ctx context.Context, requester auth.Identity, params users.UpdateUserParams) (users.User, error)
	ListUsers(ctx context.Context, requester auth.Identity) ([]users.User, error)
}

// UsersHandler serves /api/users/*.
type UsersHandler struct {
	service AccountService
}

func NewUsersHandler(service AccountService) *UsersHandler {
	return &UsersHandler{service: service}
}

type SignupRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Skills   []string `json:"skills,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest names the target by email. Omitted or empty skills and
// an omitted or blank role keep the stored values.
type UpdateUserRequest struct {
	Email  string   `json:"email"`
	Skills []string `json:"skills,omitempty"`
	Role   *string  `json:"role,omitempty"`
}

// UserResponse is the public view of an account. It has no password field.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Skills      []string   `json:"skills"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

type UpdateUserResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// LogoutResponse states that the token was not revoked; it stays valid
// until it expires.
type LogoutResponse struct {
	Message      string     `json:"message"`
	TokenRevoked bool       `json:"token_revoked"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Signup handles POST /api/users/signup
func (h *UsersHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		metrics.RecordAccountOperation("signup", string(problem.KindInvalidInput))
		return
	}

	result, err := h.service.Signup(r.Context(), users.SignupParams{
		Email:    req.Email,
		Password: req.Password,
		Skills:   req.Skills,
	})
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}

	metrics.RecordAccountOperation("signup", "success")
	writeJSON(w, http.StatusCreated, AuthResponse{User: toUserResponse(result.User), Token: result.Token})
}

// Login handles POST /api/users/login
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		metrics.RecordAccountOperation("login", string(problem.KindInvalidInput))
		return
	}

	result, err := h.service.Login(r.Context(), users.LoginParams{Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	metrics.RecordAccountOperation("login", "success")
	writeJSON(w, http.StatusOK, AuthResponse{User: toUserResponse(result.User), Token: result.Token})
}

// Logout handles POST /api/users/logout. Tokens are stateless, so this only
// acknowledges a valid bearer token; the token itself is not revoked.
func (h *UsersHandler) Logout(w http.ResponseWriter, r *http.Request) {
	resp := LogoutResponse{Message: "logged out", TokenRevoked: false}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.ExpiresAt != nil {
		expiresAt := claims.ExpiresAt.Time.UTC()
		resp.ExpiresAt = &expiresAt
	}
	metrics.RecordAccountOperation("logout", "success")
	writeJSON(w, http.StatusOK, resp)
}

// UpdateUser handles POST /api/users/update-user (admin only)
func (h *UsersHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.fail(w, r, "update_user", errUnauthenticated)
		return
	}
	// Non-admins are refused before the body is read, whatever it holds.
	if !requester.IsAdmin() {
		h.fail(w, r, "update_user", users.ErrForbidden)
		return
	}

	var req UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		metrics.RecordAccountOperation("update_user", string(problem.KindInvalidInput))
		return
	}

	user, err := h.service.UpdateUser(r.Context(), requester, users.UpdateUserParams{
		Email:  req.Email,
		Skills: req.Skills,
		Role:   req.Role,
	})
	if err != nil {
		h.fail(w, r, "update_user", err)
		return
	}

	metrics.RecordAccountOperation("update_user", "success")
	writeJSON(w, http.StatusOK, UpdateUserResponse{Message: "user updated", User: toUserResponse(user)})
}

// ListUsers handles GET /api/users/user (admin only)
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	requester, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.fail(w, r, "list_users", errUnauthenticated)
		return
	}

	list, err := h.service.ListUsers(r.Context(), requester)
	if err != nil {
		h.fail(w, r, "list_users", err)
		return
	}

	items := make([]UserResponse, 0, len(list))
	for _, user := range list {
		items = append(items, toUserResponse(user))
	}
	metrics.RecordAccountOperation("list_users", "success")
	writeJSON(w, http.StatusOK, items)
}

var errUnauthenticated = errors.New("no authenticated identity in request")

func (h *UsersHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	kind, message := mapUserError(err)
	metrics.RecordAccountOperation(operation, string(kind))
	if kind == problem.KindInternalError {
		problem.Internal(w, r, operation, err)
		return
	}
	problem.Write(w, r, kind, message, err)
}

func mapUserError(err error) (problem.Kind, string) {
	var inputErr *users.InputError
	switch {
	case errors.As(err, &inputErr):
		return problem.KindInvalidInput, inputErr.Error()
	case errors.Is(err, users.ErrInvalidInput):
		return problem.KindInvalidInput, "invalid input"
	case errors.Is(err, errUnauthenticated):
		return problem.KindUnauthenticated, "authentication required"
	case errors.Is(err, users.ErrEmailTaken):
		return problem.KindAlreadyExists, "email already registered"
	case errors.Is(err, users.ErrUserNotFound):
		return problem.KindNotFound, "user not found"
	case errors.Is(err, users.ErrInvalidCredentials):
		return problem.KindInvalidCredentials, "invalid email or password"
	case errors.Is(err, users.ErrForbidden):
		return problem.KindForbidden, "admin role required"
	default:
		return problem.KindInternalError, "internal server error"
	}
}

func toUserResponse(user users.User) UserResponse {
	skills := user.Skills
	if skills == nil {
		skills = []string{}
	}
	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Skills:      skills,
		Role:        string(user.Role),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

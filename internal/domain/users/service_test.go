package users_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tixdesk/server/internal/audit"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/domain/users"
	"github.com/tixdesk/server/internal/teststore"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc    *users.Service
	store  *teststore.UserStore
	outbox *teststore.Outbox
	jwt    *auth.JWTManager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := teststore.NewUserStore()
	outbox := &teststore.Outbox{}
	jwtManager := auth.NewJWTManager("test-secret", time.Hour, "tixdesk-test")
	svc := users.NewService(store, auth.NewPasswordHasherWithCost(bcrypt.MinCost), jwtManager, outbox, nil, zerolog.Nop())
	return fixture{svc: svc, store: store, outbox: outbox, jwt: jwtManager}
}

func (f fixture) signup(t *testing.T, email, password string, skills ...string) users.AuthResult {
	t.Helper()
	result, err := f.svc.Signup(context.Background(), users.SignupParams{Email: email, Password: password, Skills: skills})
	require.NoError(t, err)
	return result
}

func (f fixture) admin(t *testing.T) auth.Identity {
	t.Helper()
	_, err := f.svc.BootstrapAdmin(context.Background(), "root@x.com", "root-pw")
	require.NoError(t, err)
	root, err := f.store.GetUserByEmail(context.Background(), "root@x.com")
	require.NoError(t, err)
	return auth.Identity{UserID: root.ID, Email: root.Email, Role: root.Role}
}

func TestSignup(t *testing.T) {
	f := newFixture(t)

	result := f.signup(t, "  A@X.com ", "pw1", "go", " ", "<b>sql</b>")

	assert.Equal(t, "a@x.com", result.User.Email)
	assert.Equal(t, auth.RoleUser, result.User.Role)
	assert.Equal(t, []string{"go", "sql"}, result.User.Skills)
	assert.NotEqual(t, "pw1", result.User.PasswordHash)

	claims, err := f.jwt.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.Subject)
	assert.Equal(t, "user", claims.Role)

	events := f.outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, result.User.ID, events[0].UserID)
	assert.Equal(t, "a@x.com", events[0].Email)
	_, err = ulid.ParseStrict(events[0].ID)
	assert.NoError(t, err, "event id should be a ULID")
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com", "pw1")

	_, err := f.svc.Signup(context.Background(), users.SignupParams{Email: "A@X.COM", Password: "pw2"})

	assert.ErrorIs(t, err, users.ErrEmailTaken)
	assert.Equal(t, 1, f.store.Count())
	assert.Len(t, f.outbox.Events(), 1, "no event for a rejected signup")
}

func TestSignup_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{name: "missing email", email: "", password: "pw1", field: "email"},
		{name: "blank email", email: "   ", password: "pw1", field: "email"},
		{name: "malformed email", email: "not-an-email", password: "pw1", field: "email"},
		{name: "missing password", email: "a@x.com", password: "", field: "password"},
		{name: "password over 72 bytes", email: "a@x.com", password: strings.Repeat("p", 73), field: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Signup(context.Background(), users.SignupParams{Email: tt.email, Password: tt.password})

			require.ErrorIs(t, err, users.ErrInvalidInput)
			var inputErr *users.InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, tt.field, inputErr.Field)
			assert.Zero(t, f.store.Count())
			assert.Empty(t, f.outbox.Events())
		})
	}
}

func TestSignup_OutboxFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.outbox.Err = errors.New("queue unavailable")

	_, err := f.svc.Signup(context.Background(), users.SignupParams{Email: "a@x.com", Password: "pw1"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, users.ErrEmailTaken))
	assert.Zero(t, f.store.Count())
}

func TestSignup_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Signup(context.Background(), users.SignupParams{Email: "race@x.com", Password: "pw1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, users.ErrEmailTaken):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
	assert.Len(t, f.outbox.Events(), 1)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	signedUp := f.signup(t, "a@x.com", "pw1")

	result, err := f.svc.Login(context.Background(), users.LoginParams{Email: " A@x.com", Password: "pw1"})
	require.NoError(t, err)

	assert.Equal(t, signedUp.User.ID, result.User.ID)
	assert.NotEqual(t, signedUp.Token, result.Token)
	claims, err := f.jwt.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, signedUp.User.ID, claims.Subject)

	stored, err := f.store.GetUserByID(context.Background(), signedUp.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@x.com", "pw1")

	_, err := f.svc.Login(context.Background(), users.LoginParams{Email: "a@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), users.LoginParams{Email: "nobody@x.com", Password: "pw1"})
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	_, err = f.svc.Login(context.Background(), users.LoginParams{Email: "a@x.com"})
	assert.ErrorIs(t, err, users.ErrInvalidInput)

	_, err = f.svc.Login(context.Background(), users.LoginParams{Password: "pw1"})
	assert.ErrorIs(t, err, users.ErrInvalidInput)
}

func TestLogin_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("connection reset")

	_, err := f.svc.Login(context.Background(), users.LoginParams{Email: "a@x.com", Password: "pw1"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, users.ErrUserNotFound))
	assert.False(t, errors.Is(err, users.ErrInvalidCredentials))
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	target := f.signup(t, "b@x.com", "pw1", "go")

	role := "admin"
	updated, err := f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{Email: "B@x.com", Role: &role})
	require.NoError(t, err)
	assert.Equal(t, target.User.ID, updated.ID)
	assert.Equal(t, auth.RoleAdmin, updated.Role)
	assert.Equal(t, []string{"go"}, updated.Skills, "empty skills leave the stored list unchanged")

	updated, err = f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{Email: "b@x.com", Skills: []string{"rust", "sql"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"rust", "sql"}, updated.Skills)
	assert.Equal(t, auth.RoleAdmin, updated.Role, "absent role leaves the stored role unchanged")

	blank := " "
	updated, err = f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{Email: "b@x.com", Role: &blank})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, updated.Role)
}

func TestUpdateUser_Errors(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	regular := f.signup(t, "b@x.com", "pw1")
	requester := auth.Identity{UserID: regular.User.ID, Role: auth.RoleUser}

	role := "admin"
	_, err := f.svc.UpdateUser(context.Background(), requester, users.UpdateUserParams{Email: "b@x.com", Role: &role})
	assert.ErrorIs(t, err, users.ErrForbidden)

	stored, err := f.store.GetUserByEmail(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, stored.Role, "forbidden update must not change the record")

	_, err = f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{Email: "ghost@x.com", Role: &role})
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	bogus := "superuser"
	_, err = f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{Email: "b@x.com", Role: &bogus})
	assert.ErrorIs(t, err, users.ErrInvalidInput)

	_, err = f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{})
	assert.ErrorIs(t, err, users.ErrInvalidInput)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	f.signup(t, "b@x.com", "pw1")
	f.signup(t, "c@x.com", "pw1")

	list, err := f.svc.ListUsers(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"root@x.com", "b@x.com", "c@x.com"}, []string{list[0].Email, list[1].Email, list[2].Email})

	_, err = f.svc.ListUsers(context.Background(), auth.Identity{UserID: list[1].ID, Role: auth.RoleUser})
	assert.ErrorIs(t, err, users.ErrForbidden)
}

func TestResolveIdentity_UsesStoredRole(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	target := f.signup(t, "b@x.com", "pw1")

	identity, err := f.svc.ResolveIdentity(context.Background(), target.User.ID)
	require.NoError(t, err)
	assert.False(t, identity.IsAdmin())

	role := "admin"
	_, err = f.svc.UpdateUser(context.Background(), admin, users.UpdateUserParams{Email: "b@x.com", Role: &role})
	require.NoError(t, err)

	identity, err = f.svc.ResolveIdentity(context.Background(), target.User.ID)
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin())
	assert.Equal(t, "b@x.com", identity.Email)

	_, err = f.svc.ResolveIdentity(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
	_, err = f.svc.ResolveIdentity(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.BootstrapAdmin(context.Background(), "Root@X.com", "root-pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.BootstrapAdmin(context.Background(), "root@x.com", "other-pw")
	require.NoError(t, err)
	assert.False(t, created)

	root, err := f.store.GetUserByEmail(context.Background(), "root@x.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, root.Role)
	assert.Empty(t, f.outbox.Events(), "bootstrap does not publish signup events")

	_, err = f.svc.Login(context.Background(), users.LoginParams{Email: "root@x.com", Password: "root-pw"})
	assert.NoError(t, err)

	_, err = f.svc.BootstrapAdmin(context.Background(), "", "pw")
	assert.ErrorIs(t, err, users.ErrInvalidInput)
}

// accountLogs runs every operation that can mention an email address and
// returns what the service and its audit trail logged.
func accountLogs(t *testing.T, opts ...users.Option) string {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	svc := users.NewService(teststore.NewUserStore(), auth.NewPasswordHasherWithCost(bcrypt.MinCost),
		auth.NewJWTManager("test-secret", time.Hour, "tixdesk-test"), &teststore.Outbox{},
		audit.NewLoggerWithZerolog(logger), logger, opts...)
	ctx := context.Background()

	created, err := svc.BootstrapAdmin(ctx, "root@x.com", "root-pw")
	require.NoError(t, err)
	require.True(t, created)
	created, err = svc.BootstrapAdmin(ctx, "root@x.com", "root-pw")
	require.NoError(t, err)
	require.False(t, created)

	_, err = svc.Signup(ctx, users.SignupParams{Email: "member@x.com", Password: "pw1"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, users.LoginParams{Email: "ghost@x.com", Password: "pw1"})
	require.ErrorIs(t, err, users.ErrUserNotFound)

	root, err := svc.Login(ctx, users.LoginParams{Email: "root@x.com", Password: "root-pw"})
	require.NoError(t, err)
	requester := auth.Identity{UserID: root.User.ID, Email: root.User.Email, Role: root.User.Role}
	_, err = svc.UpdateUser(ctx, requester, users.UpdateUserParams{Email: "member@x.com", Skills: []string{"go"}})
	require.NoError(t, err)

	return buf.String()
}

func TestEmailRedaction(t *testing.T) {
	logs := accountLogs(t, users.WithEmailRedaction(true))
	assert.NotContains(t, logs, "@x.com")
	assert.Contains(t, logs, "unknown_email")
	assert.Contains(t, logs, "admin.bootstrapped")

	logs = accountLogs(t)
	for _, email := range []string{"root@x.com", "ghost@x.com", "member@x.com"} {
		assert.Contains(t, logs, email)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", users.NormalizeEmail("  A@X.Com\t"))
	assert.Equal(t, "", users.NormalizeEmail("   "))
}

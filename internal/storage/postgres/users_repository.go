package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tixdesk/server/internal/auth"
	"github.com/tixdesk/server/internal/domain/users"
	"github.com/tixdesk/server/internal/metrics"
)

const userColumns = `id::text, email, password_hash, skills, role, created_at, updated_at, last_login_at`

// UserRepository implements users.Store on PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) queryer() Querier {
	return r.pool
}

// CreateUser inserts the account and runs after in the same transaction.
// A unique violation on email maps to users.ErrEmailTaken.
func (r *UserRepository) CreateUser(ctx context.Context, params users.CreateUserParams, after users.AfterCreateFunc) (users.User, error) {
	var created users.User
	start := time.Now()
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		skills := params.Skills
		if skills == nil {
			skills = []string{}
		}
		row := tx.QueryRow(ctx, `
INSERT INTO users (id, email, password_hash, skills, role)
VALUES ($1::uuid, $2, $3, $4, $5)
RETURNING `+userColumns,
			params.ID, params.Email, params.PasswordHash, skills, string(params.Role),
		)
		user, err := scanUser(row)
		if !isUniqueViolation(err) {
			metrics.RecordQuery("create_user", start, err)
		}
		if err != nil {
			if isUniqueViolation(err) {
				return users.ErrEmailTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}

		if after != nil {
			if err := after(ctx, tx, user); err != nil {
				return err
			}
		}
		created = user
		return nil
	})
	if err != nil {
		return users.User{}, err
	}
	return created, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (users.User, error) {
	start := time.Now()
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	metrics.RecordQuery("get_user_by_email", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.User{}, users.ErrUserNotFound
	}
	if err != nil {
		return users.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (users.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return users.User{}, users.ErrUserNotFound
	}
	start := time.Now()
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id)
	user, err := scanUser(row)
	metrics.RecordQuery("get_user_by_id", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.User{}, users.ErrUserNotFound
	}
	if err != nil {
		return users.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// UpdateUserByEmail applies the non-nil fields of update in one statement.
func (r *UserRepository) UpdateUserByEmail(ctx context.Context, email string, update users.UserUpdate) (users.User, error) {
	var skills any
	if update.Skills != nil {
		skills = update.Skills
	}
	var role any
	if update.Role != nil {
		role = string(*update.Role)
	}

	start := time.Now()
	row := r.queryer().QueryRow(ctx, `
UPDATE users
   SET skills = COALESCE($2::text[], skills),
       role = COALESCE($3::text, role),
       updated_at = now()
 WHERE lower(email) = lower($1)
RETURNING `+userColumns,
		email, skills, role,
	)
	user, err := scanUser(row)
	metrics.RecordQuery("update_user", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.User{}, users.ErrUserNotFound
	}
	if err != nil {
		return users.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]users.User, error) {
	start := time.Now()
	rows, err := r.queryer().Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	metrics.RecordQuery("list_users", start, err)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	list := make([]users.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string) error {
	start := time.Now()
	tag, err := r.queryer().Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1::uuid`, id)
	metrics.RecordQuery("record_login", start, err)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (users.User, error) {
	var (
		user users.User
		role string
		last *time.Time
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Skills,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&last,
	); err != nil {
		return users.User{}, err
	}
	user.Role = auth.NormalizeRole(role)
	user.LastLoginAt = last
	if user.Skills == nil {
		user.Skills = []string{}
	}
	return user, nil
}

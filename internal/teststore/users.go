// Package teststore provides in-memory implementations of the account
// store and signup outbox for unit tests. It is not safe for production use:
// nothing is persisted and transactions are not supported.
package teststore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tixdesk/server/internal/domain/users"
)

// UserStore is an in-memory users.Store. Email uniqueness is enforced under
// the same lock as the insert, so concurrent signups behave like a unique
// index.
type UserStore struct {
	mu      sync.Mutex
	byID    map[string]users.User
	byEmail map[string]string
	now     func() time.Time
	seq     time.Duration

	// Err, when set, is returned by every call.
	Err error
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]users.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *UserStore) CreateUser(ctx context.Context, params users.CreateUserParams, after users.AfterCreateFunc) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return users.User{}, s.Err
	}
	if _, exists := s.byEmail[params.Email]; exists {
		return users.User{}, users.ErrEmailTaken
	}

	// Strictly increasing timestamps keep ListUsers ordering deterministic.
	s.seq += time.Microsecond
	created := s.now().UTC().Add(s.seq)
	user := users.User{
		ID:           params.ID,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Skills:       cloneSkills(params.Skills),
		Role:         params.Role,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	if after != nil {
		if err := after(ctx, nil, user); err != nil {
			return users.User{}, err
		}
	}

	s.byID[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return cloneUser(user), nil
}

func (s *UserStore) GetUserByEmail(_ context.Context, email string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return users.User{}, s.Err
	}
	id, ok := s.byEmail[email]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *UserStore) GetUserByID(_ context.Context, id string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return users.User{}, s.Err
	}
	user, ok := s.byID[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (s *UserStore) UpdateUserByEmail(_ context.Context, email string, update users.UserUpdate) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return users.User{}, s.Err
	}
	id, ok := s.byEmail[email]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	user := s.byID[id]
	if update.Skills != nil {
		user.Skills = cloneSkills(update.Skills)
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	user.UpdatedAt = s.now().UTC()
	s.byID[id] = user
	return cloneUser(user), nil
}

func (s *UserStore) ListUsers(_ context.Context) ([]users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	list := make([]users.User, 0, len(s.byID))
	for _, user := range s.byID {
		list = append(list, cloneUser(user))
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *UserStore) RecordLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	user, ok := s.byID[id]
	if !ok {
		return users.ErrUserNotFound
	}
	now := s.now().UTC()
	user.LastLoginAt = &now
	s.byID[id] = user
	return nil
}

// Count returns the number of stored accounts.
func (s *UserStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Outbox records enqueued signup events instead of scheduling them.
type Outbox struct {
	mu     sync.Mutex
	events []users.SignupEvent

	// Err, when set, is returned by EnqueueSignup and nothing is recorded.
	Err error
}

func (o *Outbox) EnqueueSignup(_ context.Context, _ pgx.Tx, event users.SignupEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.events = append(o.events, event)
	return nil
}

// Events returns a copy of the recorded events in enqueue order.
func (o *Outbox) Events() []users.SignupEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]users.SignupEvent(nil), o.events...)
}

func cloneUser(user users.User) users.User {
	user.Skills = cloneSkills(user.Skills)
	if user.LastLoginAt != nil {
		t := *user.LastLoginAt
		user.LastLoginAt = &t
	}
	return user
}

func cloneSkills(skills []string) []string {
	if skills == nil {
		return []string{}
	}
	return append([]string{}, skills...)
}

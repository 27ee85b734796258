package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/pkg/utilities"
)

var testSecret = []byte("test-secret-key-for-unit-tests-32b!")

// memStore is an in-memory credential store.
type memStore struct {
	mu      sync.Mutex
	hasher  *user.ScryptHasher
	users   map[string]*entity.User
	lookups int
	err     error
}

func newMemStore() *memStore {
	return &memStore{hasher: user.NewScryptHasher(user.WithScryptCost(10)), users: map[string]*entity.User{}}
}

func (m *memStore) add(t *testing.T, username, email, password string, roles ...string) *entity.User {
	t.Helper()
	hash, err := m.hasher.Hash(password)
	require.NoError(t, err)
	u := &entity.User{ID: utilities.NewKSUID(), Username: username, Email: email, PasswordHash: hash, Roles: roles}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return u
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) FindByIDAndUsername(_ context.Context, id, username string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok || u.Username != username {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) FindByEmailOrUsername(_ context.Context, key string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Username == key || strings.EqualFold(u.Email, key) {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, m.err
}

func (m *memStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, m.err
}

func (m *memStore) Create(_ context.Context, username, email, password string) (*entity.User, error) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{ID: utilities.NewKSUID(), Username: username, Email: strings.ToLower(email), PasswordHash: hash, Roles: []string{}}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return u, nil
}

func (m *memStore) VerifyPassword(candidate, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return m.hasher.Verify(storedHash, candidate)
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCodec(t *testing.T, clock *fixedClock) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, 0, WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-gateway/pkg/utilities"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrUsernameTaken = errors.New("username already in use")
)

// fallbackDummyHash is a scrypt hash (default cost) of a throwaway password,
// used when the dummy hash cannot be computed at runtime.
const fallbackDummyHash = "$scrypt$ln=15,r=8,p=1$mypxfKqwOOmatP9CddrYMw$6Mr+Jf4MXJigr1DKaxSb8H7Acx4S6IFbpRIHoa46g1I"

// unique constraint names from the users migration
const (
	constraintEmail    = "users_email_key"
	constraintUsername = "users_username_key"
)

// Store is the credential store: identity lookups and password checks.
// Every database call is bounded by the store's own timeout.
type Store struct {
	repo    *userrepo.UserRepo
	hasher  PasswordHasher
	timeout time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewStore(db *sqlx.DB, r *userrepo.UserRepo, hasher PasswordHasher, timeout time.Duration) *Store {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if hasher == nil {
		hasher = NewScryptHasher()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{repo: r, hasher: hasher, timeout: timeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// FindByIDAndUsername returns the user only if both fields match the same row.
// Ids that are not KSUIDs were never issued and are not looked up.
func (s *Store) FindByIDAndUsername(ctx context.Context, id, username string) (*entity.User, error) {
	if username == "" || !utilities.IsKSUID(id) {
		return nil, ErrUserNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	u, err := s.repo.GetByIDAndUsername(ctx, id, username)
	return notFound(u, err)
}

// FindByEmailOrUsername looks the key up as email or username.
func (s *Store) FindByEmailOrUsername(ctx context.Context, key string) (*entity.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrUserNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	u, err := s.repo.GetByEmailOrUsername(ctx, key)
	return notFound(u, err)
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ExistsByEmail(ctx, normalizeEmail(email))
}

func (s *Store) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ExistsByUsername(ctx, strings.TrimSpace(username))
}

// Create hashes the password and persists a new identity without second
// factor or roles. A concurrent registration that wins the race is reported
// as ErrEmailTaken / ErrUsernameTaken via the unique constraints.
func (s *Store) Create(ctx context.Context, username, email, password string) (*entity.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		ID:           utilities.NewKSUID(),
		Username:     strings.TrimSpace(username),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Roles:        []string{},
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.repo.Create(ctx, u); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case constraintEmail:
				return nil, ErrEmailTaken
			case constraintUsername:
				return nil, ErrUsernameTaken
			}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// VerifyPassword checks candidate against storedHash. An empty storedHash is
// checked against a throwaway hash so unknown users cost the same as known ones.
func (s *Store) VerifyPassword(candidate, storedHash string) bool {
	if storedHash == "" {
		s.hasher.Verify(s.dummy(), candidate)
		return false
	}
	return s.hasher.Verify(storedHash, candidate)
}

func (s *Store) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(utilities.NewKSUID())
		if err != nil || h == "" {
			h = fallbackDummyHash
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func notFound(u *entity.User, err error) (*entity.User, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package user

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/pkg/utilities"
)

var userColumns = []string{"id", "username", "email", "password_hash", "second_factor", "roles", "created_at", "updated_at"}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres"), nil, NewScryptHasher(WithScryptCost(10)), time.Second), mock
}

func TestStore_FindByIDAndUsername(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now()
	id := utilities.NewKSUID()

	mock.ExpectQuery(`WHERE id=\$1 AND username=\$2`).
		WithArgs(id, "ana").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(id, "ana", "ana@x.com", "h", nil, "{admin}", now, now))
	mock.ExpectQuery(`WHERE id=\$1 AND username=\$2`).
		WithArgs(id, "bob").
		WillReturnRows(sqlmock.NewRows(userColumns))

	u, err := s.FindByIDAndUsername(context.Background(), id, "ana")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, u.Roles)

	_, err = s.FindByIDAndUsername(context.Background(), id, "bob")
	require.ErrorIs(t, err, ErrUserNotFound)

	// empty or foreign ids never reach the database
	for _, bad := range []string{"", "id-1", "42"} {
		_, err = s.FindByIDAndUsername(context.Background(), bad, "ana")
		require.ErrorIs(t, err, ErrUserNotFound, bad)
	}
	_, err = s.FindByIDAndUsername(context.Background(), id, "")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindByIDAndUsername_DBErrorIsNotNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`WHERE id=\$1 AND username=\$2`).WillReturnError(errors.New("connection reset"))

	_, err := s.FindByIDAndUsername(context.Background(), utilities.NewKSUID(), "ana")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestStore_FindByIDAndUsername_BoundedByTimeout(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewStore(sqlx.NewDb(db, "postgres"), nil, NewScryptHasher(WithScryptCost(10)), 50*time.Millisecond)

	id := utilities.NewKSUID()
	mock.ExpectQuery(`WHERE id=\$1 AND username=\$2`).
		WithArgs(id, "ana").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(id, "ana", "ana@x.com", "h", nil, "{}", time.Now(), time.Now()))

	start := time.Now()
	u, err := s.FindByIDAndUsername(context.Background(), id, "ana")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, u)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestStore_FindByIDAndUsername_CancelledContext(t *testing.T) {
	s, mock := newStoreWithMock(t)
	id := utilities.NewKSUID()
	mock.ExpectQuery(`WHERE id=\$1 AND username=\$2`).
		WithArgs(id, "ana").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(id, "ana", "ana@x.com", "h", nil, "{}", time.Now(), time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u, err := s.FindByIDAndUsername(ctx, id, "ana")
	require.Error(t, err)
	assert.Nil(t, u)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestStore_FindByEmailOrUsername_Trims(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE email=\$1 OR username=\$1`).
		WithArgs("ana").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("id-1", "ana", "ana@x.com", "h", nil, "{}", now, now))

	u, err := s.FindByEmailOrUsername(context.Background(), "  ana ")
	require.NoError(t, err)
	assert.Equal(t, "id-1", u.ID)

	_, err = s.FindByEmailOrUsername(context.Background(), "   ")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_ExistsByEmail_Normalizes(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`WHERE email=\$1`).
		WithArgs("ana@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.ExistsByEmail(context.Background(), " Ana@X.com ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Create(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "ana", "ana@x.com", sqlmock.AnyArg(), nil, "{}").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u, err := s.Create(context.Background(), "ana", "Ana@X.com", "p1")
	require.NoError(t, err)
	assert.True(t, utilities.IsKSUID(u.ID))
	assert.Equal(t, "ana@x.com", u.Email)
	assert.False(t, u.HasSecondFactor())
	assert.Empty(t, u.Roles)
	assert.NotEqual(t, "p1", u.PasswordHash)
	assert.True(t, s.VerifyPassword("p1", u.PasswordHash))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Create_UniqueViolation(t *testing.T) {
	cases := map[string]error{
		"users_email_key":    ErrEmailTaken,
		"users_username_key": ErrUsernameTaken,
	}
	for constraint, want := range cases {
		t.Run(constraint, func(t *testing.T) {
			s, mock := newStoreWithMock(t)
			mock.ExpectQuery(`INSERT INTO users`).
				WillReturnError(&pq.Error{Code: "23505", Constraint: constraint})

			_, err := s.Create(context.Background(), "ana", "ana@x.com", "p1")
			require.ErrorIs(t, err, want)
		})
	}
}

func TestStore_Create_OtherError(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("disk full"))

	_, err := s.Create(context.Background(), "ana", "ana@x.com", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create user: disk full")
}

func TestStore_VerifyPassword_EmptyHash(t *testing.T) {
	s, _ := newStoreWithMock(t)

	assert.False(t, s.VerifyPassword("anything", ""))
	assert.NotEmpty(t, s.dummyHash)
	assert.NotEqual(t, fallbackDummyHash, s.dummyHash)
}

// failingHasher cannot hash and records what Verify was asked to check.
type failingHasher struct {
	verified []string
}

func (h *failingHasher) Hash(string) (string, error) { return "", errors.New("entropy unavailable") }

func (h *failingHasher) Verify(hash, _ string) bool {
	h.verified = append(h.verified, hash)
	return false
}

func TestStore_VerifyPassword_DummyFallsBackWhenHashFails(t *testing.T) {
	h := &failingHasher{}
	s := NewStore(nil, nil, h, time.Second)

	assert.False(t, s.VerifyPassword("anything", ""))
	assert.False(t, s.VerifyPassword("again", ""))
	assert.Equal(t, []string{fallbackDummyHash, fallbackDummyHash}, h.verified)
}

func TestFallbackDummyHashIsWellFormed(t *testing.T) {
	// a malformed constant would return early and skip the scrypt work
	assert.True(t, NewScryptHasher().Verify(fallbackDummyHash, "unknown-user-placeholder"))
	assert.False(t, NewScryptHasher().Verify(fallbackDummyHash, "anything"))
	parts := strings.Split(fallbackDummyHash, "$")
	require.Len(t, parts, 5)
	assert.Equal(t, "ln=15,r=8,p=1", parts[2])
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-gateway/internal/user/entity"
)

// UserRepo provides data access for users table using sqlx.
// Lookups return sql.ErrNoRows when nothing matches; callers translate it.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// userRow mirrors the table; roles is a TEXT[] column.
type userRow struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	SecondFactor *string        `db:"second_factor"`
	Roles        pq.StringArray `db:"roles"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row *userRow) toEntity() *entity.User {
	roles := []string(row.Roles)
	if roles == nil {
		roles = []string{}
	}
	return &entity.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		SecondFactor: row.SecondFactor,
		Roles:        roles,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

const selectUser = `SELECT id, username, email, password_hash, second_factor, roles, created_at, updated_at FROM users`

// Create inserts a new user row. ID must already be assigned; timestamps are
// filled from the database. Unique violations surface as *pq.Error (code 23505).
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, username, email, password_hash, second_factor, roles)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`
	if u.ID == "" {
		return errors.New("user id required")
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	row := r.db.QueryRowxContext(ctx, q, u.ID, u.Username, u.Email, u.PasswordHash, u.SecondFactor, pq.Array(roles))
	return row.Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetByIDAndUsername matches both columns at once: a token whose id belongs to
// another username finds nothing.
func (r *UserRepo) GetByIDAndUsername(ctx context.Context, id, username string) (*entity.User, error) {
	const q = selectUser + ` WHERE id=$1 AND username=$2`
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, id, username); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// GetByEmailOrUsername fetches by email (case-insensitive, citext) or username.
// An exact username match wins when the key matches two different rows.
func (r *UserRepo) GetByEmailOrUsername(ctx context.Context, key string) (*entity.User, error) {
	const q = selectUser + ` WHERE email=$1 OR username=$1
		ORDER BY CASE WHEN username=$1 THEN 0 ELSE 1 END LIMIT 1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, key); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, email)
}

func (r *UserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username)
}

func (r *UserRepo) exists(ctx context.Context, q string, arg string) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rolodex-app/rolodex/internal/platform/db"
	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	CreateAccount(ctx context.Context, in NewUser, passwordHash string) (User, error)
	CreateFederated(ctx context.Context, username, email string) (User, error)
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// CreateAccount inserts the user row and its credential in one transaction.
func (r *PGRepository) CreateAccount(ctx context.Context, in NewUser, passwordHash string) (User, error) {
	user := User{
		ID:       uuid.New(),
		Username: in.Username,
		Email:    in.Email,
	}
	now := time.Now().UTC()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertUser = `INSERT INTO users (id, username, email, phone, birth_date, is_admin, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, $6, $6)`
		if _, err := tx.Exec(ctx, insertUser, user.ID, in.Username, in.Email, in.Phone, in.BirthDate, now); err != nil {
			return translateConflict(err)
		}
		const insertCredential = `INSERT INTO user_credentials (user_id, password_hash, updated_at) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insertCredential, user.ID, passwordHash, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateFederated inserts a user row with no credential at all. Password
// login stays impossible until a password is set through a profile update.
func (r *PGRepository) CreateFederated(ctx context.Context, username, email string) (User, error) {
	user := User{
		ID:       uuid.New(),
		Username: username,
		Email:    email,
	}
	now := time.Now().UTC()
	const insertUser = `INSERT INTO users (id, username, email, phone, birth_date, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, NULL, false, $4, $4)`
	if _, err := r.pool.Exec(ctx, insertUser, user.ID, username, email, now); err != nil {
		return User{}, translateConflict(err)
	}
	return user, nil
}

const accountQuery = `SELECT u.id, u.username, u.email, u.is_admin, COALESCE(c.password_hash, '')
	FROM users u
	LEFT JOIN user_credentials c ON c.user_id = u.id`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.User.ID, &a.User.Username, &a.User.Email, &a.User.IsAdmin, &a.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, httpx.ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// FindByUsername fetches an account by its canonical username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, accountQuery+` WHERE u.username = $1`, username))
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, accountQuery+` WHERE u.email = $1`, email))
}

func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return fmt.Errorf("%w: username already taken", httpx.ErrConflict)
		case "users_email_key":
			return fmt.Errorf("%w: email already registered", httpx.ErrConflict)
		}
		return httpx.ErrConflict
	}
	return err
}

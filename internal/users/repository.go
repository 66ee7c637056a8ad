package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rolodex-app/rolodex/internal/addresses"
	"github.com/rolodex-app/rolodex/internal/platform/db"
	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// Repository defines persistence operations for user records. Account
// creation lives in the auth registration flow, not here.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context, filters ListFilters) ([]User, error)
	Update(ctx context.Context, id uuid.UUID, fields UpdateFields, passwordHash *string) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const userColumns = `u.id, u.username, u.email, u.phone, u.birth_date, u.is_admin, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var birth *time.Time
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &birth, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if birth != nil {
		u.BirthDate = &Date{Time: *birth}
	}
	u.Addresses = make([]addresses.Address, 0)
	return u, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, httpx.ErrNotFound
		}
		return User{}, err
	}
	if err := attachAddresses(ctx, r.pool, []*User{&u}); err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]User, error) {
	query := `SELECT DISTINCT ` + userColumns + ` FROM users u`
	if filters.City != "" || filters.Country != "" {
		query += ` JOIN user_addresses ua ON ua.user_id = u.id JOIN addresses a ON a.id = ua.address_id`
	}
	query += ` WHERE 1=1`

	args := []interface{}{}
	argCount := 0
	add := func(clause string, value interface{}) {
		argCount++
		query += ` AND ` + clause + ` = $` + strconv.Itoa(argCount)
		args = append(args, value)
	}
	if filters.Username != "" {
		add("u.username", filters.Username)
	}
	if filters.Email != "" {
		add("u.email", filters.Email)
	}
	if filters.Phone != "" {
		add("u.phone", filters.Phone)
	}
	if filters.City != "" {
		add("a.city", filters.City)
	}
	if filters.Country != "" {
		add("a.country", filters.Country)
	}

	query += ` ORDER BY u.created_at DESC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*User, len(list))
	for i := range list {
		refs[i] = &list[i]
	}
	if err := attachAddresses(ctx, r.pool, refs); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields UpdateFields, passwordHash *string) (User, error) {
	sets := []string{}
	args := []interface{}{}
	argCount := 0
	add := func(col string, val interface{}) {
		argCount++
		sets = append(sets, col+" = $"+strconv.Itoa(argCount))
		args = append(args, val)
	}

	if v, ok := fields.Username.Get(); ok {
		add("username", v)
	}
	if v, ok := fields.Email.Get(); ok {
		add("email", v)
	}
	if fields.Phone.Clear() {
		add("phone", nil)
	} else if v, ok := fields.Phone.Get(); ok {
		add("phone", v)
	}
	if fields.BirthDate.Clear() {
		add("birth_date", nil)
	} else if v, ok := fields.BirthDate.Get(); ok {
		add("birth_date", v.Time)
	}
	if v, ok := fields.IsAdmin.Get(); ok {
		add("is_admin", v)
	}

	now := time.Now().UTC()
	add("updated_at", now)
	argCount++
	args = append(args, id)

	query := `UPDATE users u SET ` + strings.Join(sets, ", ") +
		` WHERE u.id = $` + strconv.Itoa(argCount) + ` RETURNING ` + userColumns

	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return httpx.ErrNotFound
			}
			return translateConflict(err)
		}
		if passwordHash != nil {
			const upsert = `INSERT INTO user_credentials (user_id, password_hash, updated_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (user_id) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at`
			if _, err := tx.Exec(ctx, upsert, id, *passwordHash, now); err != nil {
				return err
			}
		}
		if err := attachAddresses(ctx, tx, []*User{&u}); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// attachAddresses batch-loads the linked addresses for a set of users, newest
// first, so a list never runs one query per row.
func attachAddresses(ctx context.Context, q queryer, users []*User) error {
	if len(users) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(users))
	byID := make(map[uuid.UUID]*User, len(users))
	for i, u := range users {
		ids[i] = u.ID
		byID[u.ID] = u
	}

	const query = `SELECT ua.user_id, a.id, a.street, a.city, a.state, a.postal_code, a.country, a.created_at, a.updated_at
		FROM user_addresses ua
		JOIN addresses a ON a.id = ua.address_id
		WHERE ua.user_id = ANY($1)
		ORDER BY a.created_at DESC`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var owner uuid.UUID
		var a addresses.Address
		if err := rows.Scan(&owner, &a.ID, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return err
		}
		if u, ok := byID[owner]; ok {
			u.Addresses = append(u.Addresses, a)
		}
	}
	return rows.Err()
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

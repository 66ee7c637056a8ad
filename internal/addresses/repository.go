package addresses

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rolodex-app/rolodex/internal/platform/db"
	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// Repository defines persistence operations for addresses, including the
// user links that drive invalidation fan-out.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Address, error)
	List(ctx context.Context, filters ListFilters) ([]Address, error)
	CreateForUser(ctx context.Context, userID uuid.UUID, in NewAddress) (Address, error)
	Update(ctx context.Context, id uuid.UUID, fields UpdateFields) (Address, []uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	Owners(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	Link(ctx context.Context, userID, addressID uuid.UUID) error
	Unlink(ctx context.Context, userID, addressID uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const addressColumns = `id, street, city, state, postal_code, country, created_at, updated_at`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	err := row.Scan(&a.ID, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1`
	a, err := scanAddress(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, httpx.ErrNotFound
		}
		return Address{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	add := func(clause, value string) {
		argCount++
		query += ` AND ` + clause + ` = $` + strconv.Itoa(argCount)
		args = append(args, value)
	}
	if filters.Street != "" {
		add("street", filters.Street)
	}
	if filters.City != "" {
		add("city", filters.City)
	}
	if filters.State != "" {
		add("state", filters.State)
	}
	if filters.PostalCode != "" {
		add("postal_code", filters.PostalCode)
	}
	if filters.Country != "" {
		add("country", filters.Country)
	}

	query += ` ORDER BY created_at DESC`
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

	list := make([]Address, 0)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *repository) CreateForUser(ctx context.Context, userID uuid.UUID, in NewAddress) (Address, error) {
	now := time.Now().UTC()
	a := Address{
		ID:         uuid.New(),
		Street:     in.Street,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `INSERT INTO addresses (id, street, city, state, postal_code, country, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.Exec(ctx, insert, a.ID, a.Street, a.City, a.State, a.PostalCode, a.Country, a.CreatedAt, a.UpdatedAt); err != nil {
			return err
		}
		const link = `INSERT INTO user_addresses (user_id, address_id) VALUES ($1, $2)`
		if _, err := tx.Exec(ctx, link, userID, a.ID); err != nil {
			return translatePGError(err)
		}
		return touchUsersTx(ctx, tx, []uuid.UUID{userID}, now)
	})
	if err != nil {
		return Address{}, err
	}
	return a, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields UpdateFields) (Address, []uuid.UUID, error) {
	sets := []string{}
	args := []interface{}{}
	argCount := 0

	add := func(col string, val interface{}) {
		argCount++
		sets = append(sets, col+" = $"+strconv.Itoa(argCount))
		args = append(args, val)
	}
	if v, ok := fields.Street.Get(); ok {
		add("street", v)
	}
	if v, ok := fields.City.Get(); ok {
		add("city", v)
	}
	if fields.State.Clear() {
		add("state", nil)
	} else if v, ok := fields.State.Get(); ok {
		add("state", v)
	}
	if v, ok := fields.PostalCode.Get(); ok {
		add("postal_code", v)
	}
	if v, ok := fields.Country.Get(); ok {
		add("country", v)
	}

	now := time.Now().UTC()
	add("updated_at", now)
	argCount++
	args = append(args, id)

	query := `UPDATE addresses SET ` + strings.Join(sets, ", ") +
		` WHERE id = $` + strconv.Itoa(argCount) + ` RETURNING ` + addressColumns

	var updated Address
	var owners []uuid.UUID
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		a, err := scanAddress(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return httpx.ErrNotFound
			}
			return err
		}
		updated = a
		owners, err = ownersTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return touchUsersTx(ctx, tx, owners, now)
	})
	if err != nil {
		return Address{}, nil, err
	}
	return updated, owners, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var owners []uuid.UUID
	now := time.Now().UTC()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		owners, err = ownersTx(ctx, tx, id)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return touchUsersTx(ctx, tx, owners, now)
	})
	if err != nil {
		return nil, err
	}
	return owners, nil
}

func (r *repository) Owners(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_addresses WHERE address_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var owner uuid.UUID
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (r *repository) Link(ctx context.Context, userID, addressID uuid.UUID) error {
	now := time.Now().UTC()
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1)`, addressID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return httpx.ErrNotFound
		}
		const link = `INSERT INTO user_addresses (user_id, address_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.Exec(ctx, link, userID, addressID); err != nil {
			return translatePGError(err)
		}
		return touchUsersTx(ctx, tx, []uuid.UUID{userID}, now)
	})
}

func (r *repository) Unlink(ctx context.Context, userID, addressID uuid.UUID) error {
	now := time.Now().UTC()
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM user_addresses WHERE user_id = $1 AND address_id = $2`, userID, addressID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return httpx.ErrNotFound
		}
		return touchUsersTx(ctx, tx, []uuid.UUID{userID}, now)
	})
}

func ownersTx(ctx context.Context, tx pgx.Tx, addressID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `SELECT user_id FROM user_addresses WHERE address_id = $1`, addressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var owner uuid.UUID
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func touchUsersTx(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID, now time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE users SET updated_at = $1 WHERE id = ANY($2)`, now, userIDs)
	return err
}

// translatePGError maps link-table foreign key violations to not-found; the
// referenced user or address row is simply absent.
func translatePGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return httpx.ErrNotFound
	}
	return err
}

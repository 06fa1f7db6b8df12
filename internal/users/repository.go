package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoeshop/shoeshop/internal/platform/db"
	"github.com/shoeshop/shoeshop/internal/roles"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, phone_number, sex, is_active,
	is_store_owner, is_store_manager, is_inventory_manager, is_sales_associate, is_customer_service, is_cashier,
	created_at, updated_at`

const staffPredicate = `(is_store_owner OR is_store_manager OR is_inventory_manager OR is_sales_associate OR is_customer_service OR is_cashier)`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool     *pgxpool.Pool
	registry *roles.Registry
	pgStore
}

// pgStore implements Store against a pool or a transaction.
type pgStore struct {
	q querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, registry *roles.Registry) *PGRepository {
	return &PGRepository{pool: pool, registry: registry, pgStore: pgStore{q: pool}}
}

var _ Repository = (*PGRepository)(nil)

// WithTx runs fn in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgStore{q: tx})
	})
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Sex, &u.IsActive,
		&u.Flags.StoreOwner, &u.Flags.StoreManager, &u.Flags.InventoryManager, &u.Flags.SalesAssociate, &u.Flags.CustomerService, &u.Flags.Cashier,
		&u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// FindByIDs returns the users whose id is in ids. Missing ids are skipped.
func (s pgStore) FindByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// FindByID fetches a user by id.
func (s pgStore) FindByID(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// FindByUsername fetches a user by username.
func (s pgStore) FindByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// SetRoleFlag writes only the column of role.
func (s pgStore) SetRoleFlag(ctx context.Context, id int64, role roles.Descriptor, value bool) error {
	if role.Column == "" {
		return roles.ErrUnknownRole
	}
	column := pgx.Identifier{role.Column}.Sanitize()
	tag, err := s.q.Exec(ctx, fmt.Sprintf(`UPDATE users SET %s = $1, updated_at = NOW() WHERE id = $2`, column), value, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StoreOwnerExists reports whether any owner record exists.
func (s pgStore) StoreOwnerExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM store_owners)`).Scan(&exists)
	return exists, err
}

// CreateStoreOwnerRecord inserts the owner record. The UNIQUE user_id constraint keeps
// it one per user.
func (s pgStore) CreateStoreOwnerRecord(ctx context.Context, userID int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `INSERT INTO store_owners (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrNotFound
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteStoreOwnerRecord removes the owner record of a user if present.
func (s pgStore) DeleteStoreOwnerRecord(ctx context.Context, userID int64) error {
	_, err := s.q.Exec(ctx, `DELETE FROM store_owners WHERE user_id = $1`, userID)
	return err
}

// ListStaff returns users holding any role, or filter.Role, ordered by id.
func (r *PGRepository) ListStaff(ctx context.Context, filter StaffFilter) ([]User, int, error) {
	where := staffPredicate
	if filter.Role != roles.None {
		desc, err := r.registry.Lookup(filter.Role)
		if err != nil {
			return nil, 0, err
		}
		where = pgx.Identifier{desc.Column}.Sanitize()
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 || total == 0 {
		return nil, total, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY id LIMIT $1 OFFSET $2`, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	users, err := collectUsers(rows)
	return users, total, err
}

// ListUsers returns users except excludeID, ordered by id.
func (r *PGRepository) ListUsers(ctx context.Context, excludeID int64, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id <> $1`, excludeID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || total == 0 {
		return nil, total, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY id LIMIT $2 OFFSET $3`, excludeID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	users, err := collectUsers(rows)
	return users, total, err
}

// UpdateProfile writes the non-nil fields of update.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (User, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, strings.TrimSpace(*value))
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("username", update.Username)
	add("email", update.Email)
	add("first_name", update.FirstName)
	add("last_name", update.LastName)
	add("phone_number", update.PhoneNumber)
	add("sex", update.Sex)
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d RETURNING `+userColumns, strings.Join(sets, ", "), len(args))
	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateUsername
		}
		return User{}, err
	}
	return u, nil
}

// DeleteUser removes a user; store_owners rows cascade.
func (r *PGRepository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

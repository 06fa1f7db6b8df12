package users_test

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoeshop/shoeshop/internal/platform/db"
	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/users"
)

// setupPostgresRepository migrates a throwaway schema on TEST_PG_DSN and drops it
// when the test ends.
func setupPostgresRepository(t *testing.T) (*users.PGRepository, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()

	admin, err := db.New(ctx, dsn, 2)
	require.NoError(t, err)
	schema := "shoeshop_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), `DROP SCHEMA `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		admin.Close()
	})

	config, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	config.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, config)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return users.NewRepository(pool, roles.NewRegistry()), pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, id int64, username string, columns ...string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, username, first_name, last_name) VALUES ($1, $2, $3, 'Test')`, id, username, strings.ToUpper(username[:1])+username[1:])
	require.NoError(t, err)
	for _, column := range columns {
		_, err := pool.Exec(context.Background(), `UPDATE users SET `+pgx.Identifier{column}.Sanitize()+` = TRUE WHERE id = $1`, id)
		require.NoError(t, err)
	}
}

func TestPostgresRepositoryRoleFlags(t *testing.T) {
	repo, pool := setupPostgresRepository(t)
	ctx := context.Background()
	registry := roles.NewRegistry()
	insertUser(t, pool, 1, "founder")
	insertUser(t, pool, 2, "mia", "is_store_manager")

	found, err := repo.FindByIDs(ctx, []int64{2, 999, 1})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, int64(1), found[0].ID)
	assert.True(t, found[1].Flags.StoreManager)

	cashier, err := registry.Lookup(roles.Cashier)
	require.NoError(t, err)
	require.NoError(t, repo.SetRoleFlag(ctx, 2, cashier, true))
	mia, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, roles.Flags{StoreManager: true, Cashier: true}, mia.Flags)

	assert.ErrorIs(t, repo.SetRoleFlag(ctx, 999, cashier, true), users.ErrNotFound)
	assert.ErrorIs(t, repo.SetRoleFlag(ctx, 2, roles.Descriptor{}, true), roles.ErrUnknownRole)

	_, err = repo.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestPostgresRepositoryStoreOwnerRecords(t *testing.T) {
	repo, pool := setupPostgresRepository(t)
	ctx := context.Background()
	insertUser(t, pool, 1, "founder")

	exists, err := repo.StoreOwnerExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := repo.CreateStoreOwnerRecord(ctx, 1)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateStoreOwnerRecord(ctx, 1)
	require.NoError(t, err)
	assert.False(t, created, "second insert hits ON CONFLICT")

	_, err = repo.CreateStoreOwnerRecord(ctx, 999)
	assert.ErrorIs(t, err, users.ErrNotFound)

	exists, err = repo.StoreOwnerExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.DeleteUser(ctx, 1))
	exists, err = repo.StoreOwnerExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "owner record cascades with the user")
	assert.ErrorIs(t, repo.DeleteUser(ctx, 1), users.ErrNotFound)
}

func TestPostgresRepositoryListStaff(t *testing.T) {
	repo, pool := setupPostgresRepository(t)
	ctx := context.Background()
	insertUser(t, pool, 1, "founder", "is_store_owner")
	insertUser(t, pool, 2, "shopper")
	insertUser(t, pool, 3, "carl", "is_cashier", "is_sales_associate")
	insertUser(t, pool, 4, "ines", "is_inventory_manager")

	staff, total, err := repo.ListStaff(ctx, users.StaffFilter{Role: roles.None, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "multi-role users are counted once")
	require.Len(t, staff, 3)
	assert.Equal(t, []string{"founder", "carl", "ines"}, []string{staff[0].Username, staff[1].Username, staff[2].Username})

	staff, total, err = repo.ListStaff(ctx, users.StaffFilter{Role: roles.Cashier, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, staff, 1)
	assert.Equal(t, "carl", staff[0].Username)

	staff, total, err = repo.ListStaff(ctx, users.StaffFilter{Role: roles.None, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, staff, 1)
	assert.Equal(t, "carl", staff[0].Username)

	staff, total, err = repo.ListStaff(ctx, users.StaffFilter{Role: roles.None, Limit: 10, Offset: math.MaxInt - 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, staff)

	others, total, err := repo.ListUsers(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, others, 3)
	assert.Equal(t, "shopper", others[0].Username)
}

func TestPostgresRepositoryUpdateProfile(t *testing.T) {
	repo, pool := setupPostgresRepository(t)
	ctx := context.Background()
	insertUser(t, pool, 1, "founder")
	insertUser(t, pool, 2, "mia")

	email := "mia@shoeshop.local"
	sex := "FEMALE"
	updated, err := repo.UpdateProfile(ctx, 2, users.ProfileUpdate{Email: &email, Sex: &sex})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, "FEMALE", updated.Sex)
	assert.Equal(t, "mia", updated.Username)

	taken := "founder"
	_, err = repo.UpdateProfile(ctx, 2, users.ProfileUpdate{Username: &taken})
	assert.ErrorIs(t, err, users.ErrDuplicateUsername)

	_, err = repo.UpdateProfile(ctx, 999, users.ProfileUpdate{Email: &email})
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestPostgresServiceAssignAndDismiss(t *testing.T) {
	repo, pool := setupPostgresRepository(t)
	ctx := context.Background()
	insertUser(t, pool, 1, "founder")
	insertUser(t, pool, 2, "mia")
	svc := users.NewService(repo, roles.NewRegistry(), users.ServiceConfig{})

	boot, err := svc.Assign(ctx, roles.StoreOwner, 1, nil)
	require.NoError(t, err)
	assert.True(t, boot.Bootstrap)

	result, err := svc.Assign(ctx, roles.StoreOwner, 1, []string{"2", "999", "abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mia"}, result.Affected)
	assert.Equal(t, []string{"999"}, result.NotFound)
	assert.Equal(t, []string{"abc"}, result.Invalid)

	var owners int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM store_owners`).Scan(&owners))
	assert.Equal(t, 2, owners)

	dismissed, err := svc.Dismiss(ctx, 1, []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mia"}, dismissed.Affected)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM store_owners WHERE user_id = 2`).Scan(&owners))
	assert.Zero(t, owners)
	mia, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.False(t, mia.Flags.Any())
}

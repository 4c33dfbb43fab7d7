// Package pgtest provides a migrated PostgreSQL pool for integration tests.
//
// TEST_DATABASE_URL (from the environment or ../../.env) points the tests at an
// existing disposable database. Without it a postgres:16-alpine container is started
// once per test binary. Tests are skipped under -short.
//
// Packages sharing one TEST_DATABASE_URL truncate each other's tables; run them with -p 1.
package pgtest

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"farm-ledger/internal/db"
	"farm-ledger/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedMu   sync.Mutex
	sharedPool *pgxpool.Pool
)

// engineTables lists every table the engine writes, truncated between tests.
const engineTables = `
	sales_claims, harvest_records, production_batches, purchases, customer_ledger,
	sales, inventory_logs, product_bom, products, customers, deletion_log`

// Pool returns a migrated pool with all engine tables emptied.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	ctx := context.Background()
	if sharedPool == nil {
		sharedPool = open(t, ctx)
	}

	_, err := sharedPool.Exec(ctx, "TRUNCATE TABLE "+engineTables+" RESTART IDENTITY CASCADE")
	require.NoError(t, err, "failed to truncate engine tables")
	return sharedPool
}

func open(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("farm_ledger_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "failed to start PostgreSQL container")

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "failed to get connection string")
	}

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "failed to ping test database")

	_, err = db.Migrate(ctx, pool, migrations.FS, nil)
	require.NoError(t, err, "failed to migrate test database")
	return pool
}

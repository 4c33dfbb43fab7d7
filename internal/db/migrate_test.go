package db_test

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"farm-ledger/internal/db"
	"farm-ledger/internal/pgtest"
	"farm-ledger/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_IsIdempotent(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	result, err := db.Migrate(ctx, pool, migrations.FS, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{"001_engine_schema.sql", "002_audit.sql", "003_claim_stock_recovered.sql"}, result.Skipped)
}

func TestMigrate_AppliesNewFilesOnce(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	name := fmt.Sprintf("9%d_noop.sql", time.Now().UnixNano())
	fsys := fstest.MapFS{name: {Data: []byte("SELECT 1;")}}

	result, err := db.Migrate(ctx, pool, fsys, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, result.Applied)

	result, err = db.Migrate(ctx, pool, fsys, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Applied)
	assert.Equal(t, []string{name}, result.Skipped)

	fsys[name] = &fstest.MapFile{Data: []byte("SELECT 2;")}
	_, err = db.Migrate(ctx, pool, fsys, nil)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestMigrate_RejectsBadFilenames(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()

	_, err := db.Migrate(ctx, pool, fstest.MapFS{"noop.sql": {Data: []byte("SELECT 1;")}}, nil)
	assert.ErrorContains(t, err, "expected NNN_description.sql")

	_, err = db.Migrate(ctx, pool, fstest.MapFS{
		"900_a.sql": {Data: []byte("SELECT 1;")},
		"900_b.sql": {Data: []byte("SELECT 1;")},
	}, nil)
	assert.ErrorContains(t, err, "duplicate migration version")
}

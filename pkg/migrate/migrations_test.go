package migrate_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedSchemaIsValid(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Schema()))
	require.NoError(t, migrate.Validate(os.DirFS("migrations")))
}

func TestEmbeddedSchemaMatchesDirectory(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embedded, err := fs.Glob(migrate.Schema(), "*.sql")
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
}

func TestReturnsMigrationGuardsOpenRequests(t *testing.T) {
	content := readMigration(t, "create_returns_support_tickets")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_returns_open_per_order",
		"WHERE status = 'Solicitada'",
		"CHECK (refund_amount > 0)",
		"DROP TABLE IF EXISTS returns",
	} {
		require.Contains(t, content, sub)
	}
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_products_inventory")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS inventory_records",
		"CONSTRAINT uq_inventory_records_product UNIQUE (product_id)",
		"min_stock integer NOT NULL DEFAULT 10",
		"CHECK (available_qty >= 0)",
		"DROP TABLE IF EXISTS inventory_movements",
	} {
		require.Contains(t, content, sub)
	}
	// products.stock is adjusted by signed deltas and is not constrained.
	require.NotContains(t, content, "CHECK (stock >= 0)")
}

func TestPromotionsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_promotions")
	for _, sub := range []string{
		"CONSTRAINT uq_promotions_code UNIQUE (code)",
		"CHECK (end_date > start_date)",
		"PRIMARY KEY (product_id, promotion_id)",
		"CREATE TABLE IF NOT EXISTS price_history",
	} {
		require.Contains(t, content, sub)
	}
}

func TestValidateRejectsBrokenSets(t *testing.T) {
	full := "-- +goose Up\n" + createAll() + "-- +goose Down\n"
	cases := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name:  "bad filename",
			files: fstest.MapFS{"bad-name.sql": {Data: []byte(full)}},
			want:  "invalid migration filename",
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"20260105090000_a.sql": {Data: []byte(full)},
				"20260105090000_b.sql": {Data: []byte(full)},
			},
			want: "duplicate migration version",
		},
		{
			name:  "missing down",
			files: fstest.MapFS{"20260105090000_a.sql": {Data: []byte("-- +goose Up\n" + createAll())}},
			want:  "-- +goose Down",
		},
		{
			name:  "lost outbox table",
			files: fstest.MapFS{"20260105090000_a.sql": {Data: []byte(strings.Replace(full, "outbox_dlq", "outbox_dead", 1))}},
			want:  "never create outbox_dlq",
		},
		{
			name:  "empty",
			files: fstest.MapFS{},
			want:  "no migrations found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := migrate.Validate(tc.files)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func createAll() string {
	var b strings.Builder
	for _, table := range migrate.StorefrontTables {
		b.WriteString("CREATE TABLE IF NOT EXISTS " + table + " (id uuid);\n")
	}
	return b.String()
}

func TestCreateWritesTimestampedMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	path, err := migrate.Create(dir, "Add Order Notes!", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20261015083000_add_order_notes.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "-- +goose Up")
	require.Contains(t, string(body), "-- +goose Down")

	_, err = migrate.Create(dir, "add order notes", at)
	require.Error(t, err, "same version must not be overwritten")
	_, err = migrate.Create(dir, "!!!", at)
	require.Error(t, err)
}

func TestApplySQLiteIsIdempotent(t *testing.T) {
	conn, err := db.Open(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, migrate.ApplySQLite(ctx, conn))
	require.NoError(t, migrate.ApplySQLite(ctx, conn))

	var tables int64
	require.NoError(t, conn.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('orders', 'returns', 'promotions')`).Scan(&tables).Error)
	require.EqualValues(t, 3, tables)
}

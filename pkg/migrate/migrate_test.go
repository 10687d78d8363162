package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duesengine/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Migrations(), "migrations/*_"+suffix+".sql")
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	raw, err := fs.ReadFile(migrate.Migrations(), matches[0])
	require.NoError(t, err)
	return string(raw)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.ValidateFS(migrate.Migrations(), "migrations"))
}

func TestMembershipMigrationEnforcesBinding(t *testing.T) {
	content := readMigration(t, "create_memberships")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS memberships",
		"CHECK (stripe_subscription_id IS NULL OR auto_pay_enabled)",
		"CHECK (NOT auto_pay_enabled OR stripe_customer_id IS NOT NULL)",
		"CHECK (payer_member_id IS NULL OR payer_member_id <> member_id)",
		"version INTEGER NOT NULL DEFAULT 0",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestPaymentMigrationKeepsInvoicesUnique(t *testing.T) {
	content := readMigration(t, "create_payments_and_onboarding_invites")
	assert.Contains(t, content, "ON payments (stripe_invoice_id) WHERE stripe_invoice_id IS NOT NULL")
	assert.Contains(t, content, "ON onboarding_invites (membership_id) WHERE status = 'pending'")
	assert.Contains(t, content, "CHECK (amount_cents > 0)")
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	up := "-- +goose Up\nCREATE TABLE IF NOT EXISTS widgets (id INT);\n"
	cases := map[string]fstest.MapFS{
		"bad name": {
			"m/1_widgets.sql": {Data: []byte(up + "-- +goose Down\nDROP TABLE IF EXISTS widgets;\n")},
		},
		"missing down": {
			"m/20250101000000_widgets.sql": {Data: []byte(up)},
		},
		"table not dropped": {
			"m/20250101000000_widgets.sql": {Data: []byte(up + "-- +goose Down\n")},
		},
		"duplicate version": {
			"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"m/20250101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, migrate.ValidateFS(fsys, "m"))
		})
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	path, err := migrate.CreateSQLMigration(dir, "Add Payer Index!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20250301093000_add_payer_index.sql"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "-- +goose Up"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "Add Payer Index!", now)
	assert.Error(t, err, "existing file must not be overwritten")

	_, err = migrate.CreateSQLMigration(dir, "!!!", now)
	assert.Error(t, err)
}

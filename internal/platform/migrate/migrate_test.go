package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsHaveGooseMarkers(t *testing.T) {
	entries, err := fs.ReadDir(migrations, dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		raw, err := fs.ReadFile(migrations, dir+"/"+entry.Name())
		require.NoError(t, err)
		body := string(raw)
		require.Contains(t, body, "-- +goose Up", entry.Name())
		require.Contains(t, body, "-- +goose Down", entry.Name())
	}
}

func TestInitMigrationCreatesLedgerTables(t *testing.T) {
	raw, err := fs.ReadFile(migrations, dir+"/00001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"items", "movements", "stock_balances", "bills", "delivery_notes", "productions", "audit_logs", "idempotency_keys"} {
		require.True(t, strings.Contains(string(raw), "CREATE TABLE "+table+" ("), table)
	}
}

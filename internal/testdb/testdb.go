// Package testdb opens throwaway SQLite ledgers for package tests.
package testdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/internal/database"
	"example.com/backstage/services/provenance/models"
)

// Open creates a migrated database in t.TempDir and closes it on cleanup
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Source: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)

	require.NoError(t, models.SetupModels(db))

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}

package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cnavas/warebox/internal/database"
)

// MustOpenTestDB opens an in-memory SQLite database for tests with the cache
// schema applied. The returned connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenAndMigrate(database.Config{})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}

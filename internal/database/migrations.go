package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/cnavas/warebox/internal/models"
)

// AutoMigrate applies the embedded store schema. Table and index definitions
// are fixed at open time; a schema version bump requires a full cache rebuild.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.CacheRecord{},
		&models.QueueItem{},
		&models.SyncState{},
	)
}

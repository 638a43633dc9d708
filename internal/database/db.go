package database

import (
	"errors"

	"gorm.io/gorm"
)

// Config contains database connection options for the embedded cache store.
type Config struct {
	Path string // SQLite database path; empty or ":memory:" opens an in-memory database
	DSN  string // Optional DSN override
}

// Open initialises a gorm.DB backed by the embedded SQLite store.
func Open(cfg Config) (*gorm.DB, error) {
	return openSQLite(cfg)
}

// OpenAndMigrate is the convenience helper used during application start-up.
func OpenAndMigrate(cfg Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying SQL handle.
func Close(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

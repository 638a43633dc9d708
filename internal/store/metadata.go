package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cnavas/warebox/internal/models"
)

// SetLastSync records a successful refresh for the named sync scope.
func (s *Store) SetLastSync(ctx context.Context, key string, at time.Time) error {
	db, err := s.Handle()
	if err != nil {
		return err
	}

	state := models.SyncState{Key: key, LastSyncAt: at}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sync_at", "updated_at"}),
		}).Create(&state).Error
}

// LastSync returns the recorded refresh time for the named sync scope.
func (s *Store) LastSync(ctx context.Context, key string) (time.Time, bool, error) {
	db, err := s.Handle()
	if err != nil {
		return time.Time{}, false, err
	}

	var state models.SyncState
	err = db.WithContext(ctx).Take(&state, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	return state.LastSyncAt, true, nil
}

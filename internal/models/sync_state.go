package models

import "time"

// SyncState records the last successful refresh per named sync scope.
type SyncState struct {
	Key        string    `gorm:"primaryKey;size:64" json:"key"`
	LastSyncAt time.Time `json:"last_sync_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

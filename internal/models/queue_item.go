package models

import (
	"time"

	"gorm.io/datatypes"
)

// QueueItem is a single persisted pending mutation awaiting remote
// confirmation. Items are drained strictly in ID order.
type QueueItem struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OperationType  string         `gorm:"size:16;index" json:"operation_type"`
	TargetTable    string         `gorm:"size:64" json:"target_table"`
	Payload        datatypes.JSON `json:"payload"`
	IdempotencyKey string         `gorm:"size:36" json:"idempotency_key"`
	EnqueuedAt     time.Time      `gorm:"index" json:"enqueued_at"`
	RetryCount     int            `json:"retry_count"`
	LastError      string         `json:"last_error,omitempty"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// CacheRecord is one locally cached entity row. The engine is schema-agnostic
// per table: the full attribute set lives in Attrs, and Indexed holds the
// values extracted for the table's declared secondary indexes.
type CacheRecord struct {
	TableName   string            `gorm:"primaryKey;size:64" json:"table_name"`
	RecordKey   string            `gorm:"primaryKey;size:128" json:"record_key"`
	Attrs       datatypes.JSON    `json:"attrs"`
	Indexed     datatypes.JSONMap `json:"indexed,omitempty"`
	PendingSync bool              `gorm:"index" json:"pending_sync"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

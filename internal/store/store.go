package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cnavas/warebox/internal/database"
	"github.com/cnavas/warebox/internal/models"
	apperrors "github.com/cnavas/warebox/pkg/errors"
	"github.com/cnavas/warebox/pkg/logger"
)

// Record is the schema-agnostic view of a cached entity row.
type Record struct {
	Key         string         `json:"key"`
	Attrs       map[string]any `json:"attrs"`
	PendingSync bool           `json:"pending_sync"`
}

// Store is the durable local read cache. All reads and writes go through it;
// operations fail with ErrStorageUnavailable until Init has succeeded, and
// each operation attempts at most one lazy re-init.
type Store struct {
	cfg    database.Config
	schema Schema
	log    *zap.Logger

	mu sync.Mutex
	db *gorm.DB
}

// New constructs a Store. The schema is fixed for the lifetime of the store.
func New(cfg database.Config, schema Schema) *Store {
	return &Store{
		cfg:    cfg,
		schema: schema,
		log:    logger.WithModule("store"),
	}
}

// Init opens the embedded database and applies the schema. It is idempotent
// and safe to call from multiple goroutines.
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *Store) initLocked() error {
	if s.db != nil {
		return nil
	}

	db, err := database.OpenAndMigrate(s.cfg)
	if err != nil {
		s.log.Error("store init failed", zap.Error(err))
		return apperrors.ErrStorageUnavailable.WithInternal(err)
	}

	s.db = db
	s.log.Info("store initialised", zap.String("path", s.cfg.Path))
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := database.Close(s.db)
	s.db = nil
	return err
}

// Handle returns the live database handle, retrying initialisation once.
// The queue shares the store's handle so both survive restarts together.
func (s *Store) Handle() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		if err := s.initLocked(); err != nil {
			return nil, err
		}
	}
	return s.db, nil
}

// Put creates or overwrites a record in the named table.
func (s *Store) Put(ctx context.Context, table string, rec Record) error {
	return s.PutMany(ctx, table, []Record{rec})
}

// PutMany upserts a batch of records into the named table.
func (s *Store) PutMany(ctx context.Context, table string, recs []Record) error {
	def, ok := s.schema.table(table)
	if !ok {
		return fmt.Errorf("store: unknown table %q", table)
	}
	if len(recs) == 0 {
		return nil
	}

	db, err := s.Handle()
	if err != nil {
		return err
	}

	rows := make([]models.CacheRecord, 0, len(recs))
	for _, rec := range recs {
		if strings.TrimSpace(rec.Key) == "" {
			return fmt.Errorf("store: record key is required for table %q", table)
		}

		attrs, err := json.Marshal(rec.Attrs)
		if err != nil {
			return fmt.Errorf("store: marshal attrs: %w", err)
		}

		rows = append(rows, models.CacheRecord{
			TableName:   table,
			RecordKey:   rec.Key,
			Attrs:       datatypes.JSON(attrs),
			Indexed:     extractIndexed(def, rec.Attrs),
			PendingSync: rec.PendingSync,
		})
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "table_name"}, {Name: "record_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"attrs", "indexed", "pending_sync", "updated_at"}),
		}).Create(&rows).Error
}

// Get retrieves a single record by primary key.
func (s *Store) Get(ctx context.Context, table, key string) (Record, bool, error) {
	if _, ok := s.schema.table(table); !ok {
		return Record{}, false, fmt.Errorf("store: unknown table %q", table)
	}

	db, err := s.Handle()
	if err != nil {
		return Record{}, false, err
	}

	var row models.CacheRecord
	err = db.WithContext(ctx).
		Take(&row, "table_name = ? AND record_key = ?", table, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	rec, err := toRecord(row)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// GetAllByIndex returns every record whose declared secondary index matches value.
func (s *Store) GetAllByIndex(ctx context.Context, table, index, value string) ([]Record, error) {
	def, ok := s.schema.table(table)
	if !ok {
		return nil, fmt.Errorf("store: unknown table %q", table)
	}
	if _, ok := def.Indexes[index]; !ok {
		return nil, fmt.Errorf("store: table %q has no index %q", table, index)
	}

	db, err := s.Handle()
	if err != nil {
		return nil, err
	}

	var rows []models.CacheRecord
	if err := db.WithContext(ctx).
		Where("table_name = ?", table).
		Where(datatypes.JSONQuery("indexed").Equals(value, index)).
		Order("record_key").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return toRecords(rows)
}

// GetAll returns every record in the named table.
func (s *Store) GetAll(ctx context.Context, table string) ([]Record, error) {
	if _, ok := s.schema.table(table); !ok {
		return nil, fmt.Errorf("store: unknown table %q", table)
	}

	db, err := s.Handle()
	if err != nil {
		return nil, err
	}

	var rows []models.CacheRecord
	if err := db.WithContext(ctx).
		Where("table_name = ?", table).
		Order("record_key").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	return toRecords(rows)
}

// Clear removes every record in the named table.
func (s *Store) Clear(ctx context.Context, table string) error {
	if _, ok := s.schema.table(table); !ok {
		return fmt.Errorf("store: unknown table %q", table)
	}

	db, err := s.Handle()
	if err != nil {
		return err
	}

	return db.WithContext(ctx).
		Where("table_name = ?", table).
		Delete(&models.CacheRecord{}).Error
}

// ClearAll empties every cache table, leaving the queue and sync state intact.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range s.schema.Tables() {
		if err := s.Clear(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func extractIndexed(def TableDef, attrs map[string]any) datatypes.JSONMap {
	if len(def.Indexes) == 0 {
		return nil
	}

	indexed := datatypes.JSONMap{}
	for name, path := range def.Indexes {
		if v, ok := attrs[path]; ok && v != nil {
			indexed[name] = fmt.Sprintf("%v", v)
		}
	}
	if len(indexed) == 0 {
		return nil
	}
	return indexed
}

func toRecord(row models.CacheRecord) (Record, error) {
	attrs := map[string]any{}
	if len(row.Attrs) > 0 {
		if err := json.Unmarshal(row.Attrs, &attrs); err != nil {
			return Record{}, fmt.Errorf("store: unmarshal attrs for %s/%s: %w", row.TableName, row.RecordKey, err)
		}
	}

	return Record{
		Key:         row.RecordKey,
		Attrs:       attrs,
		PendingSync: row.PendingSync,
	}, nil
}

func toRecords(rows []models.CacheRecord) ([]Record, error) {
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

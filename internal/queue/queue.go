// Package queue persists pending offline mutations in the local store and
// preserves strict enqueue order. Items are only ever removed after the
// remote service confirmed the operation; failures are recorded in place.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cnavas/warebox/internal/models"
	"github.com/cnavas/warebox/internal/mutation"
	"github.com/cnavas/warebox/internal/store"
	"github.com/cnavas/warebox/pkg/metrics"
)

// Operation describes a mutation to enqueue.
type Operation struct {
	Type        mutation.Type
	TargetTable string
	Payload     any
}

// Queue is the ordered, persisted list of pending write operations. It shares
// the local store's database handle so cache and queue survive restarts together.
type Queue struct {
	store *store.Store
	now   func() time.Time
}

// New constructs a Queue backed by the provided store.
func New(s *store.Store) (*Queue, error) {
	if s == nil {
		return nil, errors.New("queue: store is required")
	}
	return &Queue{store: s, now: time.Now}, nil
}

// Enqueue appends an operation and returns its assigned id. The item carries
// an idempotency key so a replay after a partial remote apply cannot
// double-apply.
func (q *Queue) Enqueue(ctx context.Context, op Operation) (uint64, error) {
	if !op.Type.Valid() {
		return 0, fmt.Errorf("queue: invalid operation type %q", op.Type)
	}

	db, err := q.store.Handle()
	if err != nil {
		return 0, err
	}

	raw, err := mutation.Encode(op.Payload)
	if err != nil {
		return 0, err
	}

	item := models.QueueItem{
		OperationType:  string(op.Type),
		TargetTable:    op.TargetTable,
		Payload:        datatypes.JSON(raw),
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     q.now().UTC(),
	}

	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return 0, fmt.Errorf("queue: enqueue: %w", err)
	}

	q.publishDepth(ctx)
	return item.ID, nil
}

// List returns all pending items in insertion order.
func (q *Queue) List(ctx context.Context) ([]models.QueueItem, error) {
	db, err := q.store.Handle()
	if err != nil {
		return nil, err
	}

	var items []models.QueueItem
	if err := db.WithContext(ctx).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	return items, nil
}

// Remove deletes a confirmed item.
func (q *Queue) Remove(ctx context.Context, id uint64) error {
	db, err := q.store.Handle()
	if err != nil {
		return err
	}

	if err := db.WithContext(ctx).Delete(&models.QueueItem{}, id).Error; err != nil {
		return fmt.Errorf("queue: remove %d: %w", id, err)
	}

	q.publishDepth(ctx)
	return nil
}

// RecordFailure increments the retry counter and stores the error message.
// The item keeps its position in the queue.
func (q *Queue) RecordFailure(ctx context.Context, id uint64, cause error) error {
	db, err := q.store.Handle()
	if err != nil {
		return err
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	result := db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  msg,
		})
	if result.Error != nil {
		return fmt.Errorf("queue: record failure for %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("queue: item %d not found", id)
	}
	return nil
}

// Len returns the number of pending items.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	db, err := q.store.Handle()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.QueueItem{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("queue: count: %w", err)
	}
	return count, nil
}

func (q *Queue) publishDepth(ctx context.Context) {
	if count, err := q.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(count))
	}
}

package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cnavas/warebox/internal/database"
	"github.com/cnavas/warebox/internal/mutation"
	"github.com/cnavas/warebox/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	s := store.New(database.Config{Path: filepath.Join(t.TempDir(), "cache.sqlite")}, store.DefaultSchema())
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	q, err := New(s)
	require.NoError(t, err)
	return q
}

func TestEnqueuePreservesInsertionOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Operation{
		Type:        mutation.TypeApprove,
		TargetTable: "requests",
		Payload:     mutation.Approve{RequestID: "req-1", ApprovedQty: 5, ApprovedBy: "user-1"},
	})
	require.NoError(t, err)

	second, err := q.Enqueue(ctx, Operation{
		Type:        mutation.TypeDeliver,
		TargetTable: "requests",
		Payload:     mutation.Deliver{RequestID: "req-2", DeliveredBy: "user-1", Quantity: 2},
	})
	require.NoError(t, err)
	require.Greater(t, second, first)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, first, items[0].ID)
	require.Equal(t, "approve", items[0].OperationType)
	require.Equal(t, second, items[1].ID)
	require.Equal(t, "deliver", items[1].OperationType)

	require.NotEmpty(t, items[0].IdempotencyKey)
	require.NotEqual(t, items[0].IdempotencyKey, items[1].IdempotencyKey)
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), Operation{Type: mutation.Type("explode")})
	require.Error(t, err)
}

func TestRemoveDeletesOnlyTarget(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Operation{Type: mutation.TypeReject, TargetTable: "requests", Payload: mutation.Reject{RequestID: "req-1", Reason: "out of stock"}})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, Operation{Type: mutation.TypeReject, TargetTable: "requests", Payload: mutation.Reject{RequestID: "req-2", Reason: "duplicate"}})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, first))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, second, items[0].ID)

	count, err := q.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestRecordFailureKeepsItemAndPosition(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, Operation{Type: mutation.TypeApprove, TargetTable: "requests", Payload: mutation.Approve{RequestID: "req-1"}})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Operation{Type: mutation.TypeApprove, TargetTable: "requests", Payload: mutation.Approve{RequestID: "req-2"}})
	require.NoError(t, err)

	require.NoError(t, q.RecordFailure(ctx, first, errors.New("network timeout")))
	require.NoError(t, q.RecordFailure(ctx, first, errors.New("network timeout")))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, first, items[0].ID)
	require.Equal(t, 2, items[0].RetryCount)
	require.Equal(t, "network timeout", items[0].LastError)
	require.Equal(t, 0, items[1].RetryCount)
}

func TestRecordFailureUnknownItem(t *testing.T) {
	q := newTestQueue(t)
	require.Error(t, q.RecordFailure(context.Background(), 999, errors.New("boom")))
}

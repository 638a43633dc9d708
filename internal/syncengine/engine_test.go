package syncengine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cnavas/warebox/internal/connectivity"
	"github.com/cnavas/warebox/internal/database"
	"github.com/cnavas/warebox/internal/mutation"
	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/remote/remotetest"
	"github.com/cnavas/warebox/internal/store"
)

func newTestEngine(t *testing.T, svc remote.Service, mon connectivity.Monitor, scope Scope) (*Engine, *store.Store, *queue.Queue) {
	t.Helper()

	s := store.New(database.Config{Path: filepath.Join(t.TempDir(), "cache.sqlite")}, store.DefaultSchema())
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	q, err := queue.New(s)
	require.NoError(t, err)

	e, err := New(s, q, svc, mon, Config{Scope: scope})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	return e, s, q
}

func enqueueApprove(t *testing.T, q *queue.Queue, requestID string, qty int) uint64 {
	t.Helper()

	id, err := q.Enqueue(context.Background(), queue.Operation{
		Type:        mutation.TypeApprove,
		TargetTable: "requests",
		Payload: mutation.Approve{
			RequestID:   requestID,
			ApprovedQty: qty,
			ApprovedBy:  "user-1",
			ApprovedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	return id
}

func TestSyncAllDrainsAndReconciles(t *testing.T) {
	ctx := context.Background()

	svc := &remotetest.Service{
		UpdateStatusFn: func(ctx context.Context, in remote.UpdateStatusInput) (remote.Record, error) {
			return remote.Record{"id": in.RequestID, "status": in.Status, "approved_qty": 5}, nil
		},
		FetchRequestsFn: func(ctx context.Context, q remote.RequestQuery) ([]remote.Record, error) {
			return []remote.Record{{"id": "req-1", "status": "approved", "approved_qty": 5}}, nil
		},
		FetchTableFn: func(ctx context.Context, name string) ([]remote.Record, error) {
			return []remote.Record{{"id": "item-1", "name": "helmet"}}, nil
		},
	}

	mon := connectivity.NewManualMonitor(connectivity.Online)
	e, s, q := newTestEngine(t, svc, mon, Scope{
		Statuses:        []string{"pending", "approved"},
		FetchLimit:      100,
		ReferenceTables: []string{"stock_items"},
	})

	// Optimistic local state, as the facade writes it while offline.
	require.NoError(t, s.Put(ctx, "requests", store.Record{
		Key:         "req-1",
		Attrs:       map[string]any{"status": "approved", "approved_qty": float64(5)},
		PendingSync: true,
	}))
	enqueueApprove(t, q, "req-1", 5)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	wantKey := items[0].IdempotencyKey

	require.Equal(t, OutcomeCompleted, e.SyncAll(ctx))

	// Queue drained, idempotency key forwarded.
	count, err := q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	var statusCalls []remotetest.Call
	for _, c := range svc.Calls() {
		if c.Op == "updateRequestStatus" {
			statusCalls = append(statusCalls, c)
		}
	}
	require.Len(t, statusCalls, 1)
	require.Equal(t, wantKey, statusCalls[0].IdempotencyKey)

	// Cached record is confirmed and no longer pending.
	rec, ok, err := s.Get(ctx, "requests", "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, rec.PendingSync)
	require.Equal(t, "approved", rec.Attrs["status"])

	// Reference table landed in the cache.
	stock, err := s.GetAll(ctx, "stock_items")
	require.NoError(t, err)
	require.Len(t, stock, 1)
	require.Equal(t, "item-1", stock[0].Key)

	// Refresh succeeded, so the sync marker advanced.
	_, ok, err = s.LastSync(ctx, FullSyncKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDrainPreservesEnqueueOrder(t *testing.T) {
	ctx := context.Background()

	svc := &remotetest.Service{}
	mon := connectivity.NewManualMonitor(connectivity.Online)
	e, _, q := newTestEngine(t, svc, mon, Scope{})

	enqueueApprove(t, q, "req-1", 1)

	_, err := q.Enqueue(ctx, queue.Operation{
		Type:        mutation.TypeDeliver,
		TargetTable: "requests",
		Payload: mutation.Deliver{
			RequestID:   "req-2",
			DeliveredBy: "user-1",
			Quantity:    2,
			DeliveredAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, queue.Operation{
		Type:        mutation.TypeReject,
		TargetTable: "requests",
		Payload: mutation.Reject{
			RequestID:  "req-3",
			Reason:     "out of policy",
			RejectedBy: "user-1",
			RejectedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	require.Equal(t, OutcomeCompleted, e.SyncAll(ctx))

	var mutations []remotetest.Call
	for _, c := range svc.Calls() {
		switch c.Op {
		case "updateRequestStatus", "deliverRequest":
			mutations = append(mutations, c)
		}
	}

	require.Len(t, mutations, 3)
	require.Equal(t, "req-1", mutations[0].RequestID)
	require.Equal(t, "deliverRequest", mutations[1].Op)
	require.Equal(t, "req-2", mutations[1].RequestID)
	require.Equal(t, "req-3", mutations[2].RequestID)
}

func TestSyncAllSkipsWhenOffline(t *testing.T) {
	ctx := context.Background()

	svc := &remotetest.Service{}
	mon := connectivity.NewManualMonitor(connectivity.Offline)
	e, _, q := newTestEngine(t, svc, mon, Scope{})

	enqueueApprove(t, q, "req-1", 1)

	require.Equal(t, OutcomeSkippedOffline, e.SyncAll(ctx))
	require.Empty(t, svc.Calls())

	count, err := q.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestConcurrentSyncAllRunsExactlyOnePass(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	svc := &remotetest.Service{
		UpdateStatusFn: func(ctx context.Context, in remote.UpdateStatusInput) (remote.Record, error) {
			entered <- struct{}{}
			<-release
			return nil, nil
		},
	}
	mon := connectivity.NewManualMonitor(connectivity.Online)
	e, _, q := newTestEngine(t, svc, mon, Scope{})

	enqueueApprove(t, q, "req-1", 1)

	first := make(chan Outcome, 1)
	go func() { first <- e.SyncAll(ctx) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never reached the remote service")
	}

	require.Equal(t, OutcomeSkippedBusy, e.SyncAll(ctx))
	require.True(t, e.Syncing())

	close(release)
	select {
	case outcome := <-first:
		require.Equal(t, OutcomeCompleted, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never finished")
	}
	require.False(t, e.Syncing())
}

func TestFailedItemKeepsPositionAndIdempotencyKey(t *testing.T) {
	ctx := context.Background()

	svc := &remotetest.Service{
		UpdateStatusFn: func(ctx context.Context, in remote.UpdateStatusInput) (remote.Record, error) {
			return nil, errors.New("connection reset")
		},
	}
	mon := connectivity.NewManualMonitor(connectivity.Online)
	e, _, q := newTestEngine(t, svc, mon, Scope{})

	enqueueApprove(t, q, "req-1", 1)
	enqueueApprove(t, q, "req-2", 2)

	for range 3 {
		require.Equal(t, OutcomeCompleted, e.SyncAll(ctx))
	}

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 3, items[0].RetryCount)
	require.Contains(t, items[0].LastError, "connection reset")

	// The failed item keeps the head of the queue.
	var approves []remotetest.Call
	for _, c := range svc.Calls() {
		if c.Op == "updateRequestStatus" {
			approves = append(approves, c)
		}
	}
	require.Len(t, approves, 6)
	require.Equal(t, "req-1", approves[0].RequestID)

	// Replays reuse the key assigned at enqueue time.
	for _, c := range approves {
		if c.RequestID == "req-1" {
			require.Equal(t, items[0].IdempotencyKey, c.IdempotencyKey)
		}
	}
}

func TestRefreshFailureLeavesSyncMarkerUnchanged(t *testing.T) {
	ctx := context.Background()

	fail := true
	svc := &remotetest.Service{
		FetchRequestsFn: func(ctx context.Context, q remote.RequestQuery) ([]remote.Record, error) {
			if fail {
				return nil, errors.New("gateway timeout")
			}
			return []remote.Record{{"id": "req-1", "status": "pending"}}, nil
		},
	}
	mon := connectivity.NewManualMonitor(connectivity.Online)
	e, s, _ := newTestEngine(t, svc, mon, Scope{Statuses: []string{"pending"}})

	require.Equal(t, OutcomeCompleted, e.SyncAll(ctx))

	_, ok, err := s.LastSync(ctx, FullSyncKey)
	require.NoError(t, err)
	require.False(t, ok, "marker must not advance after a failed refresh")

	fail = false
	require.Equal(t, OutcomeCompleted, e.SyncAll(ctx))

	_, ok, err = s.LastSync(ctx, FullSyncKey)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOnlineEdgeTriggersSync(t *testing.T) {
	ctx := context.Background()

	svc := &remotetest.Service{}
	mon := connectivity.NewManualMonitor(connectivity.Offline)
	e, s, q := newTestEngine(t, svc, mon, Scope{})

	enqueueApprove(t, q, "req-1", 1)

	// Edge delivery is synchronous, so the pass has finished when Set returns.
	mon.Set(connectivity.Online)

	count, err := q.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	_, ok, err := s.LastSync(ctx, FullSyncKey)
	require.NoError(t, err)
	require.True(t, ok)

	status, err := e.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Online)
	require.False(t, status.Syncing)
	require.NotNil(t, status.LastSyncAt)
}

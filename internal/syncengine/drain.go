package syncengine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cnavas/warebox/internal/models"
	"github.com/cnavas/warebox/internal/mutation"
	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/store"
	"github.com/cnavas/warebox/pkg/metrics"
)

// drain replays queued mutations against the remote service in strict FIFO
// order. Per-item failures are recorded in place and never block later items;
// a failed item keeps its position and is retried on the next pass.
func (e *Engine) drain(ctx context.Context) {
	items, err := e.queue.List(ctx)
	if err != nil {
		e.log.Error("drain aborted, cannot list queue", zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}

	e.log.Info("draining queue", zap.Int("items", len(items)))

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}

		payload, err := mutation.Decode(mutation.Type(item.OperationType), item.Payload)
		if err == nil {
			var confirmed remote.Record
			confirmed, err = e.dispatch(ctx, item, payload)
			if err == nil {
				if err := e.queue.Remove(ctx, item.ID); err != nil {
					e.log.Error("confirmed item could not be removed",
						zap.Uint64("item_id", item.ID), zap.Error(err))
					continue
				}
				e.reconcile(ctx, item, payload, confirmed)
				metrics.DrainedItems.WithLabelValues(item.OperationType, "success").Inc()
				continue
			}
		}

		metrics.DrainedItems.WithLabelValues(item.OperationType, "failure").Inc()
		if rfErr := e.queue.RecordFailure(ctx, item.ID, err); rfErr != nil {
			e.log.Error("failed to record queue item failure",
				zap.Uint64("item_id", item.ID), zap.Error(rfErr))
		}

		attempts := item.RetryCount + 1
		log := e.log.With(
			zap.Uint64("item_id", item.ID),
			zap.String("operation", item.OperationType),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		switch {
		case attempts >= e.retryThreshold:
			log.Warn("queue item keeps failing, likely needs manual resolution")
		case remote.IsPermanent(err):
			log.Warn("queue item rejected by remote service")
		default:
			log.Info("queue item failed, will retry on next pass")
		}
	}
}

// dispatch replays a single queued mutation. The item's idempotency key rides
// along so a replay after a partially applied call cannot double-apply.
func (e *Engine) dispatch(ctx context.Context, item models.QueueItem, payload any) (remote.Record, error) {
	switch p := payload.(type) {
	case mutation.Approve:
		return e.remote.UpdateRequestStatus(ctx, remote.UpdateStatusInput{
			RequestID: p.RequestID,
			Status:    "approved",
			Fields: map[string]any{
				"approved_qty": p.ApprovedQty,
				"approved_by":  p.ApprovedBy,
				"approved_at":  p.ApprovedAt,
			},
			IdempotencyKey: item.IdempotencyKey,
		})
	case mutation.Reject:
		return e.remote.UpdateRequestStatus(ctx, remote.UpdateStatusInput{
			RequestID: p.RequestID,
			Status:    "rejected",
			Fields: map[string]any{
				"rejection_reason": p.Reason,
				"rejected_by":      p.RejectedBy,
				"rejected_at":      p.RejectedAt,
			},
			IdempotencyKey: item.IdempotencyKey,
		})
	case mutation.Deliver:
		return e.remote.DeliverRequest(ctx, remote.DeliverInput{
			RequestID:         p.RequestID,
			DeliveredBy:       p.DeliveredBy,
			Quantity:          p.Quantity,
			ConditionCode:     p.ConditionCode,
			Notes:             p.Notes,
			CertificateNumber: p.CertificateNumber,
			CertificateExpiry: p.CertificateExpiry,
			DeliveredAt:       p.DeliveredAt,
			IdempotencyKey:    item.IdempotencyKey,
		})
	case mutation.Create:
		return e.remote.CreateRecord(ctx, item.TargetTable, p.Attrs)
	case mutation.Update:
		return e.remote.UpdateRecord(ctx, item.TargetTable, p.RecordKey, p.Fields)
	default:
		return nil, fmt.Errorf("sync engine: unhandled operation type %q", item.OperationType)
	}
}

// reconcile replaces the optimistic cached copy with the confirmed state,
// clearing the pending flag. When the remote response carries no body the
// cached copy is patched with the mutation's end state instead.
func (e *Engine) reconcile(ctx context.Context, item models.QueueItem, payload any, confirmed remote.Record) {
	key, fields := endState(payload)
	if confirmed != nil {
		if k := recordKey(confirmed); k != "" {
			key = k
		}
	}
	if key == "" {
		e.log.Warn("confirmed item has no record key, skipping reconcile",
			zap.Uint64("item_id", item.ID))
		return
	}

	if confirmed != nil {
		if err := e.store.Put(ctx, item.TargetTable, store.Record{Key: key, Attrs: confirmed}); err != nil {
			e.log.Error("failed to reconcile confirmed record",
				zap.String("table", item.TargetTable), zap.String("key", key), zap.Error(err))
		}
		return
	}

	rec, ok, err := e.store.Get(ctx, item.TargetTable, key)
	if err != nil {
		e.log.Error("failed to load cached record for reconcile",
			zap.String("table", item.TargetTable), zap.String("key", key), zap.Error(err))
		return
	}
	if !ok {
		// Nothing cached locally; the refresh phase pulls canonical state.
		return
	}

	for k, v := range fields {
		rec.Attrs[k] = v
	}
	rec.PendingSync = false
	if err := e.store.Put(ctx, item.TargetTable, rec); err != nil {
		e.log.Error("failed to patch reconciled record",
			zap.String("table", item.TargetTable), zap.String("key", key), zap.Error(err))
	}
}

// endState derives the record key and confirmed field values a mutation
// implies, mirroring the optimistic patch the facade wrote at enqueue time.
func endState(payload any) (string, map[string]any) {
	switch p := payload.(type) {
	case mutation.Approve:
		return p.RequestID, map[string]any{
			"status":       "approved",
			"approved_qty": p.ApprovedQty,
			"approved_by":  p.ApprovedBy,
			"approved_at":  p.ApprovedAt,
		}
	case mutation.Reject:
		return p.RequestID, map[string]any{
			"status":           "rejected",
			"rejection_reason": p.Reason,
			"rejected_by":      p.RejectedBy,
			"rejected_at":      p.RejectedAt,
		}
	case mutation.Deliver:
		return p.RequestID, map[string]any{
			"status":        "delivered",
			"delivered_by":  p.DeliveredBy,
			"delivered_qty": p.Quantity,
			"delivered_at":  p.DeliveredAt,
		}
	case mutation.Update:
		return p.RecordKey, p.Fields
	default:
		return "", nil
	}
}

func recordKey(rec remote.Record) string {
	if id, ok := rec["id"]; ok && id != nil {
		return fmt.Sprintf("%v", id)
	}
	return ""
}

// Package operations is the facade business code calls instead of talking to
// the remote service or the cache directly. Each write picks the online or
// offline path based on current connectivity; both paths leave the local
// cache reflecting the operation immediately.
package operations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cnavas/warebox/internal/connectivity"
	"github.com/cnavas/warebox/internal/mutation"
	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/store"
	apperrors "github.com/cnavas/warebox/pkg/errors"
	"github.com/cnavas/warebox/pkg/logger"
	"github.com/cnavas/warebox/pkg/validator"
)

const requestsTable = "requests"

// Facade routes domain operations over the online or offline path.
type Facade struct {
	store   *store.Store
	queue   *queue.Queue
	remote  remote.Service
	monitor connectivity.Monitor
	log     *zap.Logger
	now     func() time.Time
}

// New constructs the operation facade.
func New(s *store.Store, q *queue.Queue, svc remote.Service, mon connectivity.Monitor) (*Facade, error) {
	if s == nil || q == nil || svc == nil || mon == nil {
		return nil, errors.New("operations: store, queue, remote service and monitor are required")
	}

	return &Facade{
		store:   s,
		queue:   q,
		remote:  svc,
		monitor: mon,
		log:     logger.WithModule("operations"),
		now:     time.Now,
	}, nil
}

// ApproveInput carries the parameters of an approve operation.
type ApproveInput struct {
	RequestID   string `json:"request_id" validate:"required"`
	ApprovedQty int    `json:"approved_qty" validate:"required,gt=0"`
	ApprovedBy  string `json:"approved_by" validate:"required"`
}

// Approve grants a request with the approved quantity. Online, the remote
// service confirms immediately; offline, the operation is queued and the
// cache patched optimistically.
func (f *Facade) Approve(ctx context.Context, in ApproveInput) (store.Record, error) {
	if err := validator.ValidateStruct(in); err != nil {
		return store.Record{}, apperrors.NewBadRequest(err.Error())
	}

	payload := mutation.Approve{
		RequestID:   in.RequestID,
		ApprovedQty: in.ApprovedQty,
		ApprovedBy:  in.ApprovedBy,
		ApprovedAt:  f.now().UTC(),
	}
	fields := map[string]any{
		"status":       "approved",
		"approved_qty": payload.ApprovedQty,
		"approved_by":  payload.ApprovedBy,
		"approved_at":  payload.ApprovedAt,
	}

	if f.online() {
		confirmed, err := f.remote.UpdateRequestStatus(ctx, remote.UpdateStatusInput{
			RequestID: payload.RequestID,
			Status:    "approved",
			Fields: map[string]any{
				"approved_qty": payload.ApprovedQty,
				"approved_by":  payload.ApprovedBy,
				"approved_at":  payload.ApprovedAt,
			},
			IdempotencyKey: uuid.NewString(),
		})
		switch {
		case err == nil:
			return f.confirm(ctx, requestsTable, payload.RequestID, confirmed, fields)
		case remote.IsPermanent(err):
			return store.Record{}, err
		}
		f.logFallback("approve", payload.RequestID)
	}

	return f.enqueue(ctx, mutation.TypeApprove, requestsTable, payload, payload.RequestID, fields)
}

// DeliverInput carries the parameters of a deliver operation.
type DeliverInput struct {
	RequestID         string     `json:"request_id" validate:"required"`
	DeliveredBy       string     `json:"delivered_by" validate:"required"`
	Quantity          int        `json:"quantity" validate:"required,gt=0"`
	ConditionCode     string     `json:"condition_code"`
	Notes             string     `json:"notes"`
	CertificateNumber string     `json:"certificate_number"`
	CertificateExpiry *time.Time `json:"certificate_expiry"`
}

// Deliver hands the requested material over. The remote side performs the
// stock debit, inventory update and status change atomically; offline, the
// whole operation is deferred as one queue item.
func (f *Facade) Deliver(ctx context.Context, in DeliverInput) (store.Record, error) {
	if err := validator.ValidateStruct(in); err != nil {
		return store.Record{}, apperrors.NewBadRequest(err.Error())
	}

	payload := mutation.Deliver{
		RequestID:         in.RequestID,
		DeliveredBy:       in.DeliveredBy,
		Quantity:          in.Quantity,
		ConditionCode:     in.ConditionCode,
		Notes:             in.Notes,
		CertificateNumber: in.CertificateNumber,
		CertificateExpiry: in.CertificateExpiry,
		DeliveredAt:       f.now().UTC(),
	}
	fields := map[string]any{
		"status":        "delivered",
		"delivered_by":  payload.DeliveredBy,
		"delivered_qty": payload.Quantity,
		"delivered_at":  payload.DeliveredAt,
	}

	if f.online() {
		confirmed, err := f.remote.DeliverRequest(ctx, remote.DeliverInput{
			RequestID:         payload.RequestID,
			DeliveredBy:       payload.DeliveredBy,
			Quantity:          payload.Quantity,
			ConditionCode:     payload.ConditionCode,
			Notes:             payload.Notes,
			CertificateNumber: payload.CertificateNumber,
			CertificateExpiry: payload.CertificateExpiry,
			DeliveredAt:       payload.DeliveredAt,
			IdempotencyKey:    uuid.NewString(),
		})
		switch {
		case err == nil:
			return f.confirm(ctx, requestsTable, payload.RequestID, confirmed, fields)
		case remote.IsPermanent(err):
			return store.Record{}, err
		}
		f.logFallback("deliver", payload.RequestID)
	}

	return f.enqueue(ctx, mutation.TypeDeliver, requestsTable, payload, payload.RequestID, fields)
}

// RejectInput carries the parameters of a reject operation.
type RejectInput struct {
	RequestID  string `json:"request_id" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
	RejectedBy string `json:"rejected_by" validate:"required"`
}

// Reject declines a request with a reason.
func (f *Facade) Reject(ctx context.Context, in RejectInput) (store.Record, error) {
	if err := validator.ValidateStruct(in); err != nil {
		return store.Record{}, apperrors.NewBadRequest(err.Error())
	}

	payload := mutation.Reject{
		RequestID:  in.RequestID,
		Reason:     in.Reason,
		RejectedBy: in.RejectedBy,
		RejectedAt: f.now().UTC(),
	}
	fields := map[string]any{
		"status":           "rejected",
		"rejection_reason": payload.Reason,
		"rejected_by":      payload.RejectedBy,
		"rejected_at":      payload.RejectedAt,
	}

	if f.online() {
		confirmed, err := f.remote.UpdateRequestStatus(ctx, remote.UpdateStatusInput{
			RequestID: payload.RequestID,
			Status:    "rejected",
			Fields: map[string]any{
				"rejection_reason": payload.Reason,
				"rejected_by":      payload.RejectedBy,
				"rejected_at":      payload.RejectedAt,
			},
			IdempotencyKey: uuid.NewString(),
		})
		switch {
		case err == nil:
			return f.confirm(ctx, requestsTable, payload.RequestID, confirmed, fields)
		case remote.IsPermanent(err):
			return store.Record{}, err
		}
		f.logFallback("reject", payload.RequestID)
	}

	return f.enqueue(ctx, mutation.TypeReject, requestsTable, payload, payload.RequestID, fields)
}

// CreateRecord inserts a new record into a remote table, deferring offline.
// The key is the record's id attribute; offline creates must supply one.
func (f *Facade) CreateRecord(ctx context.Context, table string, attrs map[string]any) (store.Record, error) {
	if f.online() {
		confirmed, err := f.remote.CreateRecord(ctx, table, attrs)
		switch {
		case err == nil:
			return f.confirm(ctx, table, keyOf(attrs), confirmed, attrs)
		case remote.IsPermanent(err):
			return store.Record{}, err
		}
		f.logFallback("create", table)
	}

	key := keyOf(attrs)
	if key == "" {
		return store.Record{}, apperrors.NewBadRequest("offline create requires an id attribute")
	}
	return f.enqueue(ctx, mutation.TypeCreate, table, mutation.Create{Attrs: attrs}, key, attrs)
}

// UpdateRecord patches fields of an existing record, deferring offline.
func (f *Facade) UpdateRecord(ctx context.Context, table, key string, fields map[string]any) (store.Record, error) {
	if key == "" {
		return store.Record{}, apperrors.NewBadRequest("record key is required")
	}

	if f.online() {
		confirmed, err := f.remote.UpdateRecord(ctx, table, key, fields)
		switch {
		case err == nil:
			return f.confirm(ctx, table, key, confirmed, fields)
		case remote.IsPermanent(err):
			return store.Record{}, err
		}
		f.logFallback("update", table)
	}

	return f.enqueue(ctx, mutation.TypeUpdate, table, mutation.Update{RecordKey: key, Fields: fields}, key, fields)
}

// RequestsByStatus reads requests from the cache. When online it also kicks
// off a background remote fetch so the cache converges, but the returned
// value never waits on the network.
func (f *Facade) RequestsByStatus(ctx context.Context, status string) ([]store.Record, error) {
	recs, err := f.store.GetAllByIndex(ctx, requestsTable, "by-status", status)
	if err != nil {
		return nil, err
	}

	if f.online() {
		go f.refreshStatus(status)
	}

	return recs, nil
}

// RequestsByLocation reads requests for a location from the cache.
func (f *Facade) RequestsByLocation(ctx context.Context, locationID string) ([]store.Record, error) {
	return f.store.GetAllByIndex(ctx, requestsTable, "by-location", locationID)
}

// PendingCount reports the number of queued operations awaiting sync.
func (f *Facade) PendingCount(ctx context.Context) (int64, error) {
	return f.queue.Len(ctx)
}

func (f *Facade) online() bool {
	return f.monitor.State() == connectivity.Online
}

// confirm writes the authoritative remote result into the cache. A remote
// call that returned no body falls back to the fields the caller sent.
func (f *Facade) confirm(ctx context.Context, table, key string, confirmed remote.Record, fields map[string]any) (store.Record, error) {
	if confirmed != nil {
		if k := keyOf(confirmed); k != "" {
			key = k
		}
		rec := store.Record{Key: key, Attrs: confirmed}
		return rec, f.store.Put(ctx, table, rec)
	}

	rec, err := f.patch(ctx, table, key, fields, false)
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// enqueue defers the operation and patches the cache optimistically. The
// queue write happens first so a cache failure never loses the operation.
func (f *Facade) enqueue(ctx context.Context, typ mutation.Type, table string, payload any, key string, fields map[string]any) (store.Record, error) {
	if _, err := f.queue.Enqueue(ctx, queue.Operation{Type: typ, TargetTable: table, Payload: payload}); err != nil {
		return store.Record{}, err
	}

	rec, err := f.patch(ctx, table, key, fields, true)
	if err != nil {
		f.log.Error("queued operation but optimistic cache patch failed",
			zap.String("table", table), zap.String("key", key), zap.Error(err))
		return store.Record{}, err
	}
	return rec, nil
}

// patch merges fields into the cached record, creating it when absent.
func (f *Facade) patch(ctx context.Context, table, key string, fields map[string]any, pending bool) (store.Record, error) {
	rec, ok, err := f.store.Get(ctx, table, key)
	if err != nil {
		return store.Record{}, err
	}
	if !ok {
		rec = store.Record{Key: key, Attrs: map[string]any{"id": key}}
	}

	for k, v := range fields {
		rec.Attrs[k] = v
	}
	rec.PendingSync = pending

	if err := f.store.Put(ctx, table, rec); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (f *Facade) refreshStatus(status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := f.remote.FetchRequestsByStatus(ctx, remote.RequestQuery{Statuses: []string{status}})
	if err != nil {
		f.log.Debug("background request refresh failed",
			zap.String("status", status), zap.Error(err))
		return
	}

	rows := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		if key := keyOf(rec); key != "" {
			rows = append(rows, store.Record{Key: key, Attrs: rec})
		}
	}
	if err := f.store.PutMany(ctx, requestsTable, rows); err != nil {
		f.log.Debug("background request refresh failed to write cache", zap.Error(err))
	}
}

func (f *Facade) logFallback(op, target string) {
	f.log.Warn("remote call failed transiently, queuing operation for sync",
		zap.String("operation", op), zap.String("target", target))
}

func keyOf(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	if id, ok := attrs["id"]; ok && id != nil {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

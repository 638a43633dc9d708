// Package remote talks to the warehouse inventory service. The engine treats
// these as opaque RPC-like calls: they are invoked by name with a payload and
// either succeed or fail. Business rules (stock debit, status transitions)
// are enforced server-side.
package remote

import (
	"context"
	"time"
)

// Record is a raw remote entity row.
type Record = map[string]any

// UpdateStatusInput drives updateRequestStatus, used for approve and reject.
type UpdateStatusInput struct {
	RequestID      string
	Status         string
	Fields         map[string]any
	IdempotencyKey string
}

// DeliverInput drives the atomic deliver operation: stock debit, inventory
// update and status change happen in a single remote transaction.
type DeliverInput struct {
	RequestID         string
	DeliveredBy       string
	Quantity          int
	ConditionCode     string
	Notes             string
	CertificateNumber string
	CertificateExpiry *time.Time
	DeliveredAt       time.Time
	IdempotencyKey    string
}

// RequestQuery bounds a fetchRequestsByStatus call.
type RequestQuery struct {
	Statuses []string
	Since    *time.Time
	Limit    int
}

// Service is the remote system of record as seen by the sync engine.
type Service interface {
	Ping(ctx context.Context) error
	UpdateRequestStatus(ctx context.Context, in UpdateStatusInput) (Record, error)
	DeliverRequest(ctx context.Context, in DeliverInput) (Record, error)
	CreateRecord(ctx context.Context, table string, attrs map[string]any) (Record, error)
	UpdateRecord(ctx context.Context, table, key string, fields map[string]any) (Record, error)
	FetchRequestsByStatus(ctx context.Context, q RequestQuery) ([]Record, error)
	FetchReferenceTable(ctx context.Context, name string) ([]Record, error)
}

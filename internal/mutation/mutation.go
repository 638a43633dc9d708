// Package mutation defines the typed payloads carried by queued offline
// operations. Each operation type has its own payload struct so the drain
// phase dispatches on an exhaustive switch instead of inspecting raw maps.
package mutation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type tags a queued operation.
type Type string

const (
	TypeApprove Type = "approve"
	TypeDeliver Type = "deliver"
	TypeReject  Type = "reject"
	TypeCreate  Type = "create"
	TypeUpdate  Type = "update"
)

// Valid reports whether t is a known operation type.
func (t Type) Valid() bool {
	switch t {
	case TypeApprove, TypeDeliver, TypeReject, TypeCreate, TypeUpdate:
		return true
	}
	return false
}

// Approve marks a request approved with the granted quantity.
type Approve struct {
	RequestID   string    `json:"request_id"`
	ApprovedQty int       `json:"approved_qty"`
	ApprovedBy  string    `json:"approved_by"`
	ApprovedAt  time.Time `json:"approved_at"`
}

// Deliver hands the requested material over, debiting stock remotely.
type Deliver struct {
	RequestID         string     `json:"request_id"`
	DeliveredBy       string     `json:"delivered_by"`
	Quantity          int        `json:"quantity"`
	ConditionCode     string     `json:"condition_code"`
	Notes             string     `json:"notes,omitempty"`
	CertificateNumber string     `json:"certificate_number,omitempty"`
	CertificateExpiry *time.Time `json:"certificate_expiry,omitempty"`
	DeliveredAt       time.Time  `json:"delivered_at"`
}

// Reject declines a request with a reason.
type Reject struct {
	RequestID  string    `json:"request_id"`
	Reason     string    `json:"reason"`
	RejectedBy string    `json:"rejected_by"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Create inserts a new record into a remote table.
type Create struct {
	Attrs map[string]any `json:"attrs"`
}

// Update patches fields of an existing remote record.
type Update struct {
	RecordKey string         `json:"record_key"`
	Fields    map[string]any `json:"fields"`
}

// Encode serialises a payload for persistence in the queue.
func Encode(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mutation: encode payload: %w", err)
	}
	return raw, nil
}

// Decode deserialises a queue payload according to its operation type.
func Decode(t Type, raw []byte) (any, error) {
	switch t {
	case TypeApprove:
		return decodeInto[Approve](raw)
	case TypeDeliver:
		return decodeInto[Deliver](raw)
	case TypeReject:
		return decodeInto[Reject](raw)
	case TypeCreate:
		return decodeInto[Create](raw)
	case TypeUpdate:
		return decodeInto[Update](raw)
	default:
		return nil, fmt.Errorf("mutation: unknown operation type %q", t)
	}
}

func decodeInto[T any](raw []byte) (T, error) {
	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("mutation: decode payload: %w", err)
	}
	return payload, nil
}

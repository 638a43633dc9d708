// Package remotetest provides a configurable in-memory Service for tests.
package remotetest

import (
	"context"
	"sync"

	"github.com/cnavas/warebox/internal/remote"
)

// Call records one invocation against the fake service.
type Call struct {
	Op             string
	RequestID      string
	Table          string
	IdempotencyKey string
}

// Service is a test double for remote.Service. Behaviour is overridden per
// operation via function fields; unset operations succeed with nil results.
type Service struct {
	mu    sync.Mutex
	calls []Call

	PingFn          func(ctx context.Context) error
	UpdateStatusFn  func(ctx context.Context, in remote.UpdateStatusInput) (remote.Record, error)
	DeliverFn       func(ctx context.Context, in remote.DeliverInput) (remote.Record, error)
	CreateFn        func(ctx context.Context, table string, attrs map[string]any) (remote.Record, error)
	UpdateFn        func(ctx context.Context, table, key string, fields map[string]any) (remote.Record, error)
	FetchRequestsFn func(ctx context.Context, q remote.RequestQuery) ([]remote.Record, error)
	FetchTableFn    func(ctx context.Context, name string) ([]remote.Record, error)
}

var _ remote.Service = (*Service)(nil)

// Calls returns a snapshot of recorded invocations in order.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Service) record(c Call) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *Service) Ping(ctx context.Context) error {
	s.record(Call{Op: "ping"})
	if s.PingFn != nil {
		return s.PingFn(ctx)
	}
	return nil
}

func (s *Service) UpdateRequestStatus(ctx context.Context, in remote.UpdateStatusInput) (remote.Record, error) {
	s.record(Call{Op: "updateRequestStatus", RequestID: in.RequestID, IdempotencyKey: in.IdempotencyKey})
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, in)
	}
	return nil, nil
}

func (s *Service) DeliverRequest(ctx context.Context, in remote.DeliverInput) (remote.Record, error) {
	s.record(Call{Op: "deliverRequest", RequestID: in.RequestID, IdempotencyKey: in.IdempotencyKey})
	if s.DeliverFn != nil {
		return s.DeliverFn(ctx, in)
	}
	return nil, nil
}

func (s *Service) CreateRecord(ctx context.Context, table string, attrs map[string]any) (remote.Record, error) {
	s.record(Call{Op: "createRecord", Table: table})
	if s.CreateFn != nil {
		return s.CreateFn(ctx, table, attrs)
	}
	return nil, nil
}

func (s *Service) UpdateRecord(ctx context.Context, table, key string, fields map[string]any) (remote.Record, error) {
	s.record(Call{Op: "updateRecord", Table: table, RequestID: key})
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, table, key, fields)
	}
	return nil, nil
}

func (s *Service) FetchRequestsByStatus(ctx context.Context, q remote.RequestQuery) ([]remote.Record, error) {
	s.record(Call{Op: "fetchRequestsByStatus"})
	if s.FetchRequestsFn != nil {
		return s.FetchRequestsFn(ctx, q)
	}
	return nil, nil
}

func (s *Service) FetchReferenceTable(ctx context.Context, name string) ([]remote.Record, error) {
	s.record(Call{Op: "fetchReferenceTable", Table: name})
	if s.FetchTableFn != nil {
		return s.FetchTableFn(ctx, name)
	}
	return nil, nil
}

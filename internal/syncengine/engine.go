// Package syncengine reconciles the local cache with the remote system of
// record: one pass drains the mutation queue in FIFO order, then refreshes
// the cache from canonical remote state.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cnavas/warebox/internal/connectivity"
	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/store"
	"github.com/cnavas/warebox/pkg/logger"
	"github.com/cnavas/warebox/pkg/metrics"
)

// FullSyncKey is the sync scope updated after a successful refresh phase.
const FullSyncKey = "full_sync"

const defaultRetryThreshold = 3

// Outcome reports how a SyncAll invocation ended. Skips are signals, not
// errors: a later scheduled tick covers any missed work.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeSkippedOffline Outcome = "skipped_offline"
	OutcomeSkippedBusy    Outcome = "skipped_busy"
)

// Phase is the engine's position in the sync state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDraining
	PhaseRefreshing
)

func (p Phase) String() string {
	switch p {
	case PhaseDraining:
		return "draining"
	case PhaseRefreshing:
		return "refreshing"
	default:
		return "idle"
	}
}

// Scope bounds the refresh phase.
type Scope struct {
	Statuses        []string
	LookbackDays    int
	FetchLimit      int
	ReferenceTables []string
}

// Config customises the engine.
type Config struct {
	RetryThreshold int
	Scope          Scope
}

// Engine orchestrates sync passes. At most one pass runs at a time; callers
// racing to trigger one collapse into a single active pass.
type Engine struct {
	store   *store.Store
	queue   *queue.Queue
	remote  remote.Service
	monitor connectivity.Monitor

	retryThreshold int
	scope          Scope
	log            *zap.Logger
	now            func() time.Time

	inFlight atomic.Bool
	phase    atomic.Int32

	mu          sync.Mutex
	cron        *cron.Cron
	entry       cron.EntryID
	unsubscribe func()
}

// New constructs an Engine and subscribes it to connectivity transitions:
// the offline-to-online edge triggers a sync in the same turn.
func New(s *store.Store, q *queue.Queue, svc remote.Service, mon connectivity.Monitor, cfg Config) (*Engine, error) {
	if s == nil {
		return nil, errors.New("sync engine: store is required")
	}
	if q == nil {
		return nil, errors.New("sync engine: queue is required")
	}
	if svc == nil {
		return nil, errors.New("sync engine: remote service is required")
	}
	if mon == nil {
		return nil, errors.New("sync engine: connectivity monitor is required")
	}

	threshold := cfg.RetryThreshold
	if threshold <= 0 {
		threshold = defaultRetryThreshold
	}

	e := &Engine{
		store:          s,
		queue:          q,
		remote:         svc,
		monitor:        mon,
		retryThreshold: threshold,
		scope:          cfg.Scope,
		log:            logger.WithModule("sync"),
		now:            time.Now,
	}

	e.unsubscribe = mon.Subscribe(func(state connectivity.State) {
		if state == connectivity.Online {
			e.log.Info("connection restored, starting sync")
			e.SyncAll(context.Background())
		}
	})

	return e, nil
}

// Close detaches the engine from its triggers. An in-flight pass finishes.
func (e *Engine) Close() {
	e.StopAutoSync()

	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// SyncAll runs one drain+refresh pass. It never panics callers with pass
// errors: failures are logged and retried on the next trigger. A second
// caller while a pass is running returns immediately with OutcomeSkippedBusy.
func (e *Engine) SyncAll(ctx context.Context) Outcome {
	if !e.inFlight.CompareAndSwap(false, true) {
		metrics.SyncPasses.WithLabelValues(string(OutcomeSkippedBusy)).Inc()
		e.log.Debug("sync already in progress, skipping")
		return OutcomeSkippedBusy
	}
	defer e.inFlight.Store(false)
	defer e.phase.Store(int32(PhaseIdle))

	if e.monitor.State() != connectivity.Online {
		metrics.SyncPasses.WithLabelValues(string(OutcomeSkippedOffline)).Inc()
		e.log.Debug("offline, skipping sync")
		return OutcomeSkippedOffline
	}

	started := e.now()
	e.log.Info("sync pass started")

	e.phase.Store(int32(PhaseDraining))
	e.drain(ctx)

	e.phase.Store(int32(PhaseRefreshing))
	e.refresh(ctx)

	metrics.SyncPasses.WithLabelValues(string(OutcomeCompleted)).Inc()
	e.log.Info("sync pass finished", zap.Duration("took", e.now().Sub(started)))
	return OutcomeCompleted
}

// Phase reports the engine's current position in the state machine.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Syncing reports whether a pass is currently running.
func (e *Engine) Syncing() bool {
	return e.inFlight.Load()
}

// StartAutoSync schedules periodic sync passes. Calling it again replaces
// the previous schedule.
func (e *Engine) StartAutoSync(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("sync engine: interval must be positive, got %d", intervalMinutes)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron == nil {
		e.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
		e.cron.Start()
	} else if e.entry != 0 {
		e.cron.Remove(e.entry)
	}

	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	entry, err := e.cron.AddFunc(spec, func() {
		e.SyncAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("sync engine: schedule auto-sync: %w", err)
	}

	e.entry = entry
	e.log.Info("auto-sync started", zap.Int("interval_minutes", intervalMinutes))
	return nil
}

// StopAutoSync cancels the periodic timer. It never interrupts an in-flight pass.
func (e *Engine) StopAutoSync() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cron == nil {
		return
	}

	e.cron.Stop()
	e.cron = nil
	e.entry = 0
	e.log.Info("auto-sync stopped")
}

// Status is the feedback surface the embedding application renders.
type Status struct {
	Online       bool       `json:"online"`
	Syncing      bool       `json:"syncing"`
	Phase        string     `json:"phase"`
	PendingCount int64      `json:"pending_count"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

// Status assembles the online/syncing indicator and pending-operation counter.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Online:       e.monitor.State() == connectivity.Online,
		Syncing:      e.Syncing(),
		Phase:        e.Phase().String(),
		PendingCount: pending,
	}

	if at, ok, err := e.store.LastSync(ctx, FullSyncKey); err == nil && ok {
		status.LastSyncAt = &at
	}

	return status, nil
}

package syncengine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/store"
	"github.com/cnavas/warebox/pkg/metrics"
)

const requestsTable = "requests"

// refresh pulls canonical state from the remote service and overwrites the
// local cache, clearing pending flags on records that are now confirmed.
// Sub-fetches write to disjoint tables so they run concurrently; the sync
// marker only advances when every sub-fetch succeeded.
func (e *Engine) refresh(ctx context.Context) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)

	run := func(table string, fetch func(context.Context) error) {
		defer wg.Done()

		if err := fetch(ctx); err != nil {
			metrics.RefreshFetches.WithLabelValues(table, "failure").Inc()
			e.log.Warn("refresh fetch failed", zap.String("table", table), zap.Error(err))

			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", table, err))
			mu.Unlock()
			return
		}
		metrics.RefreshFetches.WithLabelValues(table, "success").Inc()
	}

	wg.Add(1)
	go run(requestsTable, e.refreshRequests)

	for _, table := range e.scope.ReferenceTables {
		wg.Add(1)
		go run(table, func(ctx context.Context) error {
			return e.refreshReferenceTable(ctx, table)
		})
	}

	wg.Wait()

	if errs != nil {
		e.log.Warn("refresh incomplete, keeping previous sync marker", zap.Error(errs))
		return
	}

	if err := e.store.SetLastSync(ctx, FullSyncKey, e.now().UTC()); err != nil {
		e.log.Error("failed to record sync marker", zap.Error(err))
	}
}

// refreshRequests fetches the bounded set of requests the client cares about:
// active statuses within the configured lookback window.
func (e *Engine) refreshRequests(ctx context.Context) error {
	query := remote.RequestQuery{
		Statuses: e.scope.Statuses,
		Limit:    e.scope.FetchLimit,
	}
	if e.scope.LookbackDays > 0 {
		since := e.now().UTC().AddDate(0, 0, -e.scope.LookbackDays)
		query.Since = &since
	}

	recs, err := e.remote.FetchRequestsByStatus(ctx, query)
	if err != nil {
		return err
	}
	return e.store.PutMany(ctx, requestsTable, toStoreRecords(recs))
}

func (e *Engine) refreshReferenceTable(ctx context.Context, table string) error {
	recs, err := e.remote.FetchReferenceTable(ctx, table)
	if err != nil {
		return err
	}
	return e.store.PutMany(ctx, table, toStoreRecords(recs))
}

// toStoreRecords converts remote rows to cache records, keyed by their id.
// Rows without an id cannot be cached and are dropped.
func toStoreRecords(recs []remote.Record) []store.Record {
	out := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		key := recordKey(rec)
		if key == "" {
			continue
		}
		out = append(out, store.Record{Key: key, Attrs: rec})
	}
	return out
}

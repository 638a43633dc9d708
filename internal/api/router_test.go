package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cnavas/warebox/internal/app"
	"github.com/cnavas/warebox/internal/connectivity"
	"github.com/cnavas/warebox/internal/database"
	"github.com/cnavas/warebox/internal/operations"
	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/remote/remotetest"
	"github.com/cnavas/warebox/internal/store"
	"github.com/cnavas/warebox/internal/syncengine"
)

type testEnv struct {
	router  *gin.Engine
	store   *store.Store
	queue   *queue.Queue
	monitor *connectivity.ManualMonitor
}

func newTestEnv(t *testing.T, svc remote.Service, state connectivity.State) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New(database.Config{Path: filepath.Join(t.TempDir(), "cache.sqlite")}, store.DefaultSchema())
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	q, err := queue.New(s)
	require.NoError(t, err)

	mon := connectivity.NewManualMonitor(state)

	facade, err := operations.New(s, q, svc, mon)
	require.NoError(t, err)

	engine, err := syncengine.New(s, q, svc, mon, syncengine.Config{})
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	cfg := &app.Config{}
	cfg.Sync.RetryThreshold = 3
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"

	router, err := NewRouter(cfg, facade, engine, q)
	require.NoError(t, err)

	return testEnv{router: router, store: s, queue: q, monitor: mon}
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 && strings.Contains(w.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, body := doJSON(t, env.router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	mw := httptest.NewRecorder()
	env.router.ServeHTTP(mw, req)
	require.Equal(t, http.StatusOK, mw.Code)
	require.Contains(t, mw.Body.String(), "warebox_")
}

func TestSyncStatusReflectsConnectivity(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, body := doJSON(t, env.router, http.MethodGet, "/api/sync/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]any)
	require.Equal(t, false, data["online"])
	require.Equal(t, false, data["syncing"])
	require.EqualValues(t, 0, data["pending_count"])
}

func TestManualSyncTriggerWhileOffline(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, body := doJSON(t, env.router, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]any)
	require.Equal(t, string(syncengine.OutcomeSkippedOffline), data["outcome"])
}

func TestOfflineApproveFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, body := doJSON(t, env.router, http.MethodPost, "/api/requests/req-1/approve",
		`{"approved_qty": 5, "approved_by": "user-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]any)
	require.Equal(t, true, data["pending_sync"])

	// The queue listing shows the deferred mutation.
	w, body = doJSON(t, env.router, http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, w.Code)

	items := body["data"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	require.Equal(t, "approve", item["operation_type"])
	require.Equal(t, false, item["likely_permanent"])

	// The cache-first read includes the optimistic record.
	w, body = doJSON(t, env.router, http.MethodGet, "/api/requests?status=approved", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["data"].([]any), 1)
}

func TestApproveValidationFailure(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, body := doJSON(t, env.router, http.MethodPost, "/api/requests/req-1/approve",
		`{"approved_qty": 0, "approved_by": ""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, false, body["success"])
}

func TestListRequestsRequiresFilter(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, _ := doJSON(t, env.router, http.MethodGet, "/api/requests", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	env := newTestEnv(t, &remotetest.Service{}, connectivity.Offline)

	w, body := doJSON(t, env.router, http.MethodGet, "/api/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, body["success"])
}

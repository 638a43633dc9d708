package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpdateRequestStatusSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/requests/req-1/status", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": "req-1", "status": "approved"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL, Token: "tok-1"})
	require.NoError(t, err)

	rec, err := client.UpdateRequestStatus(context.Background(), UpdateStatusInput{
		RequestID:      "req-1",
		Status:         "approved",
		Fields:         map[string]any{"approved_qty": 5},
		IdempotencyKey: "key-123",
	})
	require.NoError(t, err)

	require.Equal(t, "key-123", gotKey)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.Equal(t, "approved", gotBody["status"])
	require.Equal(t, float64(5), gotBody["approved_qty"])
	require.Equal(t, "approved", rec["status"])
}

func TestFetchRequestsByStatusQueryParams(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "pending,approved", q.Get("status"))
		require.Equal(t, "2026-02-01T00:00:00Z", q.Get("since"))
		require.Equal(t, "500", q.Get("limit"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"id": "req-1", "status": "pending"},
				{"id": "req-2", "status": "approved"},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	recs, err := client.FetchRequestsByStatus(context.Background(), RequestQuery{
		Statuses: []string{"pending", "approved"},
		Since:    &since,
		Limit:    500,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "req-1", recs[0]["id"])
}

func TestErrorTagging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"code": "INSUFFICIENT_STOCK", "message": "not enough stock"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.DeliverRequest(context.Background(), DeliverInput{RequestID: "req-1", Quantity: 99})
	require.Error(t, err)
	require.True(t, IsPermanent(err))

	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "INSUFFICIENT_STOCK", remoteErr.Code)
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	err = client.Ping(context.Background())
	require.Error(t, err)
	require.False(t, IsPermanent(err))
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/pkg/response"
)

// queueItemView is the diagnostic shape of a pending mutation. Items past
// the retry threshold are flagged so an operator can spot stuck entries.
type queueItemView struct {
	ID              uint64          `json:"id"`
	OperationType   string          `json:"operation_type"`
	TargetTable     string          `json:"target_table"`
	Payload         json.RawMessage `json:"payload"`
	EnqueuedAt      time.Time       `json:"enqueued_at"`
	RetryCount      int             `json:"retry_count"`
	LastError       string          `json:"last_error,omitempty"`
	LikelyPermanent bool            `json:"likely_permanent"`
}

func registerQueueRoutes(api *gin.RouterGroup, q *queue.Queue, retryThreshold int) {
	api.GET("/queue", func(c *gin.Context) {
		items, err := q.List(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}

		views := make([]queueItemView, 0, len(items))
		for _, item := range items {
			views = append(views, queueItemView{
				ID:              item.ID,
				OperationType:   item.OperationType,
				TargetTable:     item.TargetTable,
				Payload:         json.RawMessage(item.Payload),
				EnqueuedAt:      item.EnqueuedAt,
				RetryCount:      item.RetryCount,
				LastError:       item.LastError,
				LikelyPermanent: retryThreshold > 0 && item.RetryCount >= retryThreshold,
			})
		}

		response.SuccessWithMeta(c, http.StatusOK, views, &response.Meta{Total: len(views)})
	})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cnavas/warebox/internal/syncengine"
	apperrors "github.com/cnavas/warebox/pkg/errors"
	"github.com/cnavas/warebox/pkg/response"
)

func registerSyncRoutes(api *gin.RouterGroup, engine *syncengine.Engine) {
	sync := api.Group("/sync")
	{
		sync.GET("/status", func(c *gin.Context) {
			status, err := engine.Status(c.Request.Context())
			if err != nil {
				response.Error(c, err)
				return
			}
			response.Success(c, http.StatusOK, status)
		})

		// Manual trigger. An offline skip is normal operation and reported
		// in the body; a pass already running answers 409 as a no-op signal.
		sync.POST("", func(c *gin.Context) {
			outcome := engine.SyncAll(c.Request.Context())
			if outcome == syncengine.OutcomeSkippedBusy {
				response.Error(c, apperrors.ErrSyncInProgress)
				return
			}
			response.Success(c, http.StatusOK, gin.H{"outcome": outcome})
		})
	}
}

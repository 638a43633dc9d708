package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func registerHealthRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"status":     "ok",
			"checked_at": time.Now().UTC(),
		})
	})
}

// Package api exposes the engine over a local HTTP surface: sync status and
// triggering, queue inspection, and the request operations the embedding
// application calls.
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cnavas/warebox/internal/app"
	"github.com/cnavas/warebox/internal/middleware"
	"github.com/cnavas/warebox/internal/operations"
	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/internal/syncengine"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, facade *operations.Facade, engine *syncengine.Engine, q *queue.Queue) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if facade == nil {
		return nil, fmt.Errorf("operation facade must be provided")
	}
	if engine == nil {
		return nil, fmt.Errorf("sync engine must be provided")
	}
	if q == nil {
		return nil, fmt.Errorf("queue must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")

	registerSyncRoutes(api, engine)
	registerRequestRoutes(api, facade)
	registerQueueRoutes(api, q, cfg.Sync.RetryThreshold)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

package api

import (
	"github.com/gin-gonic/gin"

	"backtest-lab/internal/observability"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	api := r.Group("/api")
	{
		api.POST("/backtest/run", h.SubmitStandardRun)
		api.POST("/backtest/grid", h.SubmitGridRun)
		api.POST("/ifvg/run", h.SubmitIFVGRun)
		api.POST("/scorecard/run", h.SubmitScorecardRun)

		api.GET("/runs/:id", h.GetRun)
		api.POST("/runs/:id/cancel", h.CancelRun)
		api.GET("/runs/:id/results", h.GetResults)
		api.GET("/runs/:id/ws", h.WatchRun)
	}

	return r
}

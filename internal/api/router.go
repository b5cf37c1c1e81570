package api

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires the estimation API. hub may be nil, which disables the
// event stream.
func NewRouter(h *EstimationHandler, hub *SSEHub) *gin.Engine {
	router := gin.Default()

	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.GET("/models", h.Models)
	api.POST("/estimate", h.Estimate)
	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:id", h.GetRun)
	api.GET("/runs/:id/report", h.RunReport)
	api.GET("/compare", h.Compare)
	if hub != nil {
		api.GET("/events", hub.HandleSSE)
	}
	return router
}

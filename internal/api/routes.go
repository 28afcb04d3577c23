package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes on the given router
func SetupRoutes(router *gin.Engine, handler *Handler, hub *Hub) {
	v1 := router.Group("/api/v1")
	{
		// System endpoints
		v1.GET("/status", handler.GetStatus)
		v1.GET("/config", handler.GetConfig)
		v1.GET("/presets", handler.GetPresets)

		// Lifecycle
		v1.GET("/state", handler.GetState)
		monitor := v1.Group("/monitor")
		monitor.POST("/start", handler.Start)
		monitor.POST("/stop", handler.Stop)
		monitor.POST("/pause", handler.Pause)
		monitor.POST("/resume", handler.Resume)

		// Statistics and history
		v1.GET("/stats", handler.GetAllStats)
		v1.GET("/stats/target", handler.GetTargetStats)
		v1.POST("/stats/reset", handler.ResetStats)
		v1.GET("/recent", handler.GetRecent)
		v1.GET("/history", handler.GetHistory)
		v1.GET("/chart.png", handler.GetChart)

		// Settings
		v1.PUT("/settings/interval", handler.SetInterval)

		// Roster
		v1.GET("/targets", handler.GetTargets)
		v1.POST("/targets", handler.AddTarget)
		v1.PUT("/targets/:id", handler.UpdateTarget)
		v1.DELETE("/targets/:id", handler.RemoveTarget)
		v1.POST("/targets/:id/toggle", handler.ToggleTarget)

		if hub != nil {
			v1.GET("/ws", ServeWebSocket(hub))
		}
	}

	// Health check endpoint (outside versioned API)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}

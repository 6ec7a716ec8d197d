// Package router assembles the gin engine and route table.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/interfaces/http/handler"
	"github.com/sellerpulse/backend/internal/interfaces/http/middleware"
)

// New builds the gin engine with the full middleware stack and routes.
func New(env string, syncHandler *handler.SyncHandler, logger *zap.Logger) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.Recovery(logger),
	)

	engine.GET("/healthz", syncHandler.Health)

	api := engine.Group("/api/v1")
	{
		syncGroup := api.Group("/sync")
		{
			syncGroup.POST("/trigger", syncHandler.TriggerSync)
			syncGroup.GET("/history", syncHandler.History)
		}
		api.GET("/tracking/stats", syncHandler.TrackingStats)
	}

	return engine
}

package router

import (
	"github.com/gin-gonic/gin"

	"viammo.app/tripscan/internal/http/handler"
	"viammo.app/tripscan/internal/service"
)

type RouterConfig struct {
	DashboardURL string
	IsProduction bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, reader handler.ProgressReader, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authHandler := handler.NewAuthHandler(services.Auth(), services.Scans(), cfg.DashboardURL, cfg.IsProduction)
	AuthRouter(router.Group("/auth/google"), authHandler)

	v1 := router.Group("/api/v1")
	{
		scanHandler := handler.NewScanHandler(services.Scans(), reader, 0)
		ScanRouter(v1.Group("/scans"), scanHandler)
	}
}

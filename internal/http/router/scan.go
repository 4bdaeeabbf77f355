package router

import (
	"github.com/gin-gonic/gin"

	"viammo.app/tripscan/internal/http/handler"
)

func ScanRouter(rg *gin.RouterGroup, h *handler.ScanHandler) {
	rg.POST("", h.Start)
	rg.GET("/:id", h.Status)
	rg.GET("/:id/result", h.Result)
	rg.GET("/:id/stream", h.Stream)
}

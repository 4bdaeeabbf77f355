package router

import (
	"github.com/gin-gonic/gin"

	"viammo.app/tripscan/internal/http/handler"
)

func AuthRouter(rg *gin.RouterGroup, h *handler.AuthHandler) {
	rg.GET("/login", h.Login)
	rg.GET("/callback", h.Callback)
}

package server

import (
	"net/http"

	"cityalert/internal/gateway/handler"
	"cityalert/internal/gateway/middleware"

	"github.com/gin-gonic/gin"
)

func NewRouter(sessions *handler.SessionHandler, alerts *handler.AlertsHandler) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/alerts", alerts.List)

		s := api.Group("/sessions")
		s.POST("", sessions.Create)
		s.GET("/:id", sessions.Get)
		s.DELETE("/:id", sessions.Delete)
		s.POST("/:id/turns", sessions.Turn)
		s.POST("/:id/image", sessions.AttachImage)
		s.DELETE("/:id/image", sessions.DetachImage)
		s.POST("/:id/reset", sessions.Reset)
		s.GET("/:id/ws", sessions.Chat)
	}
	return router
}

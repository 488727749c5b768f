// Package api exposes the task engine over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daily-tracker/internal/auth"
	"daily-tracker/internal/engine"
	"daily-tracker/internal/metrics"
)

type Server struct {
	manager *engine.Manager
	auth    *auth.Auth
}

func NewServer(manager *engine.Manager, a *auth.Auth) *Server {
	return &Server{manager: manager, auth: a}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.manager.Len()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(s.authMiddleware())
	{
		api.GET("/tasks", s.listTasks)
		api.POST("/tasks", s.createTask)
		api.PUT("/tasks/:id", s.editTask)
		api.POST("/tasks/:id/toggle", s.toggleTask)
		api.DELETE("/tasks/:id", s.requestDelete)

		api.POST("/toggle/confirm", s.confirmToggle)
		api.POST("/toggle/cancel", s.cancelToggle)
		api.POST("/delete/confirm", s.confirmDelete)
		api.POST("/delete/cancel", s.cancelDelete)
		api.GET("/confirmations", s.pendingConfirmations)

		api.GET("/stats", s.stats)
		api.GET("/settings", s.settings)
		api.PUT("/settings/reset-time", s.setResetTime)
		api.POST("/reset", s.resetNow)
		api.GET("/countdown", s.countdown)

		api.GET("/export", s.exportTasks)
		api.POST("/import", s.importTasks)
		api.POST("/session/logout", s.logout)
	}

	return router
}

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/medivoice/internal/api/handlers"
	"github.com/yoockh/medivoice/internal/api/middleware"
)

type Deps struct {
	Auth    middleware.AuthConfig
	Session *handlers.SessionHandler
	Report  *handlers.ReportHandler
	WS      *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/doctors", handlers.ListDoctors)

	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.POST("/session/start", d.Session.Start)
	auth.GET("/sessions", d.Session.List)
	auth.GET("/session/:session_id", d.Session.Get)
	auth.POST("/session/:session_id/end", d.Session.End)
	auth.GET("/session/:session_id/report", d.Report.Get)
	auth.GET("/history", d.Report.History)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/reports", d.Report.ListAll)

	auth.GET("/ws/session/:session_id", d.WS.SessionWS)
}

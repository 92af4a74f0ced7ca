package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/arifwid/docuchat/internal/api/handlers"
	"github.com/arifwid/docuchat/internal/api/middleware"
)

type Deps struct {
	Session  *handlers.SessionHandler
	Document *handlers.DocumentHandler
	Query    *handlers.QueryHandler
	Health   *handlers.HealthHandler
	WS       *handlers.WSHandler

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", d.Health.Check)

	// Protected routes (bearer JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWTSecret, d.JWTIssuer, d.JWTAudience))

	auth.POST("/sessions/", d.Session.Create)
	auth.GET("/sessions/:id", d.Session.ListByUser) // :id is a user id here
	auth.PATCH("/sessions/:id", d.Session.Update)
	auth.DELETE("/sessions/:id", d.Session.Delete)
	auth.GET("/sessions/:id/chat-history", d.Session.ChatHistory)
	auth.GET("/sessions/:id/documents", d.Session.Documents)
	auth.POST("/sessions/:id/link-document", d.Session.LinkDocument)
	auth.DELETE("/sessions/:id/unlink-document", d.Session.UnlinkDocument)

	auth.POST("/documents/upload", d.Document.Upload)
	auth.GET("/documents/user/:id", d.Document.ListByUser)
	auth.GET("/documents/:id/status", d.Document.Status)
	auth.GET("/documents/:id/url", d.Document.SignedURL)
	auth.DELETE("/documents/:id", d.Document.Delete)

	auth.POST("/query/", d.Query.Process)

	auth.GET("/ws/sessions/:id/events", d.WS.SessionEvents)
}

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/mockinterview/internal/api/handlers"
	"github.com/yoockh/mockinterview/internal/api/middleware"
	"github.com/yoockh/mockinterview/internal/observability"
)

type Deps struct {
	Auth      middleware.JWTSettings
	Reference *handlers.ReferenceHandler
	Quota     *handlers.QuotaHandler
	Interview *handlers.InterviewHandler
	Session   *handlers.SessionHandler
	Feedback  *handlers.FeedbackHandler
	WS        *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	// Lookup catalogs are public; the interview form loads them before sign-in.
	ref := r.Group("/reference")
	ref.GET("/interview-types", d.Reference.InterviewTypes)
	ref.GET("/experience-levels", d.Reference.ExperienceLevels)
	ref.GET("/difficulty-levels", d.Reference.DifficultyLevels)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.GET("/quota", d.Quota.Me)

	auth.POST("/interviews", d.Interview.Create)
	auth.GET("/interviews", d.Interview.List)
	auth.GET("/interviews/:id", d.Interview.Get)
	auth.PATCH("/interviews/:id", d.Interview.Update)
	auth.DELETE("/interviews/:id", d.Interview.Delete)
	auth.POST("/interviews/:id/cancel", d.Interview.Cancel)
	auth.POST("/interviews/:id/prompt/retry", d.Interview.RetryPrompt)
	auth.POST("/interviews/:id/session", d.Session.Start)
	auth.POST("/interviews/:id/feedback", d.Feedback.Start)

	auth.GET("/sessions/:conversation_id", d.Session.Status)
	auth.POST("/sessions/:conversation_id/end", d.Session.End)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.PUT("/accounts/:account_id/quota", d.Quota.SetTotal)

	// WebSocket
	auth.GET("/ws/interviews/:id", d.WS.InterviewStatus)
}

package api

import (
	"net/http"

	"cochat-backend/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	requireAuth := delivery.AuthMiddleware(h.authUsecase)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks. Machines call these; they are never authenticated
	// with user tokens.
	if h.webhookHandler != nil {
		r.POST("/gmail/push", h.webhookHandler.GmailPush)
		r.GET("/instagram/webhook", h.webhookHandler.InstagramVerify)
		r.POST("/instagram/webhook", h.webhookHandler.InstagramWebhook)
	}

	// OAuth callbacks carry a signed state instead of a user token.
	r.GET("/gmail/auth/login", requireAuth, h.messengerHandler.GmailLogin)
	r.GET("/gmail/auth/callback", h.messengerHandler.GmailCallback)
	r.GET("/instagram/login", requireAuth, h.messengerHandler.InstagramLogin)
	r.GET("/instagram/callback", h.messengerHandler.InstagramCallback)
	r.POST("/imap/link", requireAuth, h.messengerHandler.LinkIMAP)

	auth := r.Group("/auth")
	{
		auth.POST("/register", h.authHandler.Register)
		auth.POST("/login", h.authHandler.Login)
		auth.POST("/refresh", h.authHandler.RefreshToken)
		auth.POST("/logout", h.authHandler.Logout)
		auth.GET("/me", requireAuth, h.authHandler.Me)
	}

	users := r.Group("/users", requireAuth)
	{
		users.POST("/preferences", h.authHandler.SetPreferences)
	}

	fcm := r.Group("/fcm", requireAuth)
	{
		fcm.POST("/register", h.authHandler.RegisterFCMToken)
		fcm.DELETE("/:token", h.authHandler.UnregisterFCMToken)
	}

	messengers := r.Group("/messengers", requireAuth)
	{
		messengers.GET("", h.messengerHandler.List)
		messengers.DELETE("/:id", h.messengerHandler.Unlink)
		messengers.POST("/:id/sync", h.messengerHandler.Resync)
	}

	messages := r.Group("/messages", requireAuth)
	{
		messages.GET("", h.messageHandler.List)
		messages.GET("/latest", h.messageHandler.Latest)
		messages.GET("/search", h.messageHandler.Search)
		messages.POST("/search/semantic", h.messageHandler.SemanticSearch)
		messages.GET("/:id", h.messageHandler.Get)
		messages.PATCH("/:id", h.messageHandler.Update)
		messages.DELETE("/:id", h.messageHandler.Delete)
	}

	if h.sseManager != nil {
		r.GET("/events", requireAuth, func(c *gin.Context) {
			h.sseManager.ServeHTTP(c, c.GetString("userID"))
		})
	}
}

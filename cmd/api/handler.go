package api

import (
	"net/http"

	authdelivery "cochat-backend/internal/auth/delivery"
	authusecase "cochat-backend/internal/auth/usecase"
	msgdelivery "cochat-backend/internal/message/delivery"
	messengerdelivery "cochat-backend/internal/messenger/delivery"
	"cochat-backend/internal/notification"
	"cochat-backend/pkg/sse"

	"github.com/gin-gonic/gin"
)

// Handler bundles the HTTP handlers of every domain.
type Handler struct {
	authUsecase      authusecase.AuthUsecase
	authHandler      *authdelivery.AuthHandler
	messageHandler   *msgdelivery.MessageHandler
	messengerHandler *messengerdelivery.MessengerHandler
	webhookHandler   *notification.WebhookHandler
	sseManager       *sse.Manager
}

func NewHandler(
	authUc authusecase.AuthUsecase,
	messageHandler *msgdelivery.MessageHandler,
	messengerHandler *messengerdelivery.MessengerHandler,
	webhookHandler *notification.WebhookHandler,
	sseManager *sse.Manager,
) *Handler {
	return &Handler{
		authUsecase:      authUc,
		authHandler:      authdelivery.NewAuthHandler(authUc),
		messageHandler:   messageHandler,
		messengerHandler: messengerHandler,
		webhookHandler:   webhookHandler,
		sseManager:       sseManager,
	}
}

// Engine builds the gin engine with CORS and every route.
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors())
	SetupRoutes(r, h)
	return r
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	return h.Engine().Run(addr)
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

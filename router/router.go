package router

import (
	"net/http"

	"sofia/config"
	"sofia/controllers"
	"sofia/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Initialize registra todas las rutas y middlewares del servicio.
func Initialize(r *gin.Engine, cfg config.Configuration) {
	_ = cfg

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")

	// Webhook de WhatsApp (Meta). El GET es el handshake de verificación.
	api.GET("/webhook", controllers.WebhookVerify)
	api.POST("/webhook", controllers.WebhookUpdate)

	// Bandeja de conversaciones para los asesores.
	inbox := api.Group("/inbox")
	inbox.GET("", Logger(), controllers.GetInbox)
	inbox.GET("/:id/messages", Logger(), controllers.GetInboxMessages)
	inbox.POST("/:id/take", Logger(), controllers.TakeOverLead)
	inbox.POST("/:id/release", Logger(), controllers.ReleaseLead)
	inbox.POST("/:id/state", Logger(), controllers.ChangeLeadState)
	inbox.POST("/:id/read", Logger(), controllers.MarkLeadRead)
	inbox.POST("/:id/convert", Logger(), controllers.ConvertLead)
	inbox.POST("/:id/discard", Logger(), controllers.DiscardLead)

	log.Info().Msg("Rutas inicializadas")
}

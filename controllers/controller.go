package controllers

import (
	"context"

	"sofia/bot"
	"sofia/inbox"
	"sofia/sessions"
	"sofia/tools"
	"sofia/workers"

	"github.com/gin-gonic/gin"
)

// MediaFetcher resuelve una referencia de media del proveedor a un archivo
// local. Falla → el mensaje se registra solo con texto.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) (path string, mime string, err error)
}

// Services son las dependencias del gateway de ingesta. Se configuran una
// vez desde main.
type Services struct {
	Sessions  *sessions.Store
	ChatLog   *inbox.ChatLog
	Router    *inbox.Router
	Engine    *bot.Engine
	Scheduler *workers.Scheduler
	Sender    bot.Sender
	Media     MediaFetcher
}

var services Services

// phoneLocks serializa el procesamiento por teléfono: los mensajes de un
// contacto terminan de procesarse (respuesta del bot incluida) antes del
// siguiente del mismo contacto.
var phoneLocks = tools.NewKeyLock()

func Configure(s Services) {
	services = s
}

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

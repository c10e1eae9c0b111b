package controllers

import (
	"errors"
	"net/http"

	dbpkg "sofia/db"
	"sofia/inbox"

	"github.com/gin-gonic/gin"
)

func chatlogFor(c *gin.Context) (*inbox.ChatLog, bool) {
	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db no configurada en el contexto", http.StatusInternalServerError)
		return nil, false
	}
	return inbox.NewChatLog(db), true
}

func routerFor(c *gin.Context) (*inbox.Router, bool) {
	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db no configurada en el contexto", http.StatusInternalServerError)
		return nil, false
	}
	return inbox.NewRouter(db), true
}

func respondInboxError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inbox.ErrLeadNotFound):
		RespondError(c, "lead no encontrado", http.StatusNotFound)
	case errors.Is(err, inbox.ErrInvalidState):
		RespondError(c, "estado inválido", http.StatusBadRequest)
	case errors.Is(err, inbox.ErrNoActiveAgents):
		RespondError(c, "no hay asesores activos", http.StatusConflict)
	default:
		RespondError(c, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/inbox
func GetInbox(c *gin.Context) {
	chatlog, ok := chatlogFor(c)
	if !ok {
		return
	}
	threads, err := chatlog.ListOpen()
	if err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"threads": threads})
}

// GET /api/inbox/:id/messages
func GetInboxMessages(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	chatlog, ok := chatlogFor(c)
	if !ok {
		return
	}
	msgs, err := chatlog.Messages(id)
	if err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"messages": msgs})
}

type takeOverRequest struct {
	AgentID int64 `json:"agent_id" form:"agent_id"`
}

// POST /api/inbox/:id/take
func TakeOverLead(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req takeOverRequest
	if err := c.Bind(&req); err != nil || req.AgentID <= 0 {
		RespondError(c, "agent_id es obligatorio", http.StatusBadRequest)
		return
	}
	chatlog, ok := chatlogFor(c)
	if !ok {
		return
	}
	if err := chatlog.TakeOver(id, req.AgentID); err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"ok": true})
}

// POST /api/inbox/:id/release
func ReleaseLead(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	chatlog, ok := chatlogFor(c)
	if !ok {
		return
	}
	if err := chatlog.Release(id); err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"ok": true})
}

type changeStateRequest struct {
	State string `json:"state" form:"state"`
}

// POST /api/inbox/:id/state
func ChangeLeadState(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req changeStateRequest
	if err := c.Bind(&req); err != nil || req.State == "" {
		RespondError(c, "state es obligatorio", http.StatusBadRequest)
		return
	}
	chatlog, ok := chatlogFor(c)
	if !ok {
		return
	}
	if err := chatlog.ChangeState(id, req.State); err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"ok": true})
}

// POST /api/inbox/:id/read
func MarkLeadRead(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	chatlog, ok := chatlogFor(c)
	if !ok {
		return
	}
	if err := chatlog.MarkRead(id); err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"ok": true})
}

type convertRequest struct {
	CustomerID int64 `json:"customer_id" form:"customer_id"`
}

// POST /api/inbox/:id/convert
func ConvertLead(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req convertRequest
	if err := c.Bind(&req); err != nil || req.CustomerID <= 0 {
		RespondError(c, "customer_id es obligatorio", http.StatusBadRequest)
		return
	}
	router, ok := routerFor(c)
	if !ok {
		return
	}
	if err := router.Convert(id, req.CustomerID); err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"ok": true})
}

// POST /api/inbox/:id/discard
func DiscardLead(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	router, ok := routerFor(c)
	if !ok {
		return
	}
	if err := router.Discard(id); err != nil {
		respondInboxError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"ok": true})
}

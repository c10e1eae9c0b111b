package inbox

import (
	"sort"
	"time"
	"unicode/utf8"

	"sofia/models"

	"github.com/jinzhu/gorm"
)

const previewMaxRunes = 50

// ChatLog maneja el historial de mensajes de los leads, el estado de
// lectura y el cambio de modo bot/asesor.
type ChatLog struct {
	DB *gorm.DB
}

func NewChatLog(db *gorm.DB) *ChatLog {
	return &ChatLog{DB: db}
}

// GetOrCreateOpenLead devuelve el hilo del teléfono o crea uno nuevo en
// NUEVO/BOT. El segundo valor indica si se creó.
//
// Si el último hilo está en estado terminal se devuelve ese mismo: el
// entrante que viene atrás lo reabre (ver SaveMessage) en vez de duplicar
// hilos para el mismo contacto.
func (l *ChatLog) GetOrCreateOpenLead(phone, initialMessage, name string) (*models.Lead, bool, error) {
	var lead models.Lead
	err := l.DB.
		Where("phone = ?", phone).
		Order("id desc").
		First(&lead).Error
	if err == nil {
		return &lead, false, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, false, err
	}

	now := time.Now()
	lead = models.Lead{
		Phone:          phone,
		Name:           name,
		InitialMessage: initialMessage,
		State:          models.LEAD_STATE_NUEVO,
		Mode:           models.LEAD_MODE_BOT,
		ReceivedAt:     &now,
	}
	if err := l.DB.Create(&lead).Error; err != nil {
		return nil, false, err
	}
	return &lead, true, nil
}

// FindByPhone devuelve el hilo más reciente del teléfono, o nil si el
// contacto nunca escribió. No crea nada: es la consulta de revalidación
// del scheduler y de cualquier guard que no deba tener efectos.
func (l *ChatLog) FindByPhone(phone string) (*models.Lead, error) {
	var lead models.Lead
	err := l.DB.
		Where("phone = ?", phone).
		Order("id desc").
		First(&lead).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// SaveMessage agrega un mensaje al historial del lead y mantiene los campos
// derivados del hilo:
//   - last_message_at se actualiza siempre
//   - un entrante sobre un lead terminal lo reabre a NUEVO/BOT
//   - el primer saliente estampa first_response_at y la latencia en minutos
//
// Los entrantes nacen no leídos; el resto nace leído.
func (l *ChatLog) SaveMessage(msg *models.ChatMessage) error {
	var lead models.Lead
	if err := l.DB.First(&lead, msg.LeadID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ErrLeadNotFound
		}
		return err
	}

	msg.Read = msg.Direction != models.MESSAGE_DIRECTION_IN
	if err := l.DB.Create(msg).Error; err != nil {
		return err
	}

	now := time.Now()
	updates := map[string]any{"last_message_at": &now}

	if msg.Direction == models.MESSAGE_DIRECTION_IN && !lead.IsOpen() {
		updates["state"] = models.LEAD_STATE_NUEVO
		updates["mode"] = models.LEAD_MODE_BOT
		updates["completed_at"] = nil
	}

	if msg.Direction == models.MESSAGE_DIRECTION_OUT && lead.FirstResponseAt == nil {
		updates["first_response_at"] = &now
		if lead.ReceivedAt != nil {
			latency := int64(now.Sub(*lead.ReceivedAt).Minutes())
			updates["response_latency_minutes"] = latency
		}
	}

	return l.DB.Model(&models.Lead{}).Where("id = ?", lead.ID).Updates(updates).Error
}

// TakeOver pasa el hilo a modo ASESOR con el agente indicado. Si estaba en
// NUEVO o PENDIENTE lo promueve a EN_GESTION.
func (l *ChatLog) TakeOver(leadID, agentID int64) error {
	var lead models.Lead
	if err := l.DB.First(&lead, leadID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ErrLeadNotFound
		}
		return err
	}

	updates := map[string]any{
		"mode":      models.LEAD_MODE_ASESOR,
		"asesor_id": agentID,
	}
	if lead.State == models.LEAD_STATE_NUEVO || lead.State == models.LEAD_STATE_PENDIENTE {
		updates["state"] = models.LEAD_STATE_EN_GESTION
	}
	return l.DB.Model(&models.Lead{}).Where("id = ?", leadID).Updates(updates).Error
}

// Release devuelve el hilo al bot.
func (l *ChatLog) Release(leadID int64) error {
	res := l.DB.Model(&models.Lead{}).
		Where("id = ?", leadID).
		Update("mode", models.LEAD_MODE_BOT)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// ChangeState valida contra el allow-list y aplica el cambio. Entrar a
// CIERRE o DESCARTADO también fuerza modo BOT y estampa completed_at.
func (l *ChatLog) ChangeState(leadID int64, state string) error {
	if !models.IsLeadStateValid(state) {
		return ErrInvalidState
	}

	var lead models.Lead
	if err := l.DB.First(&lead, leadID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ErrLeadNotFound
		}
		return err
	}

	updates := map[string]any{"state": state}
	if models.IsLeadStateTerminal(state) {
		now := time.Now()
		updates["mode"] = models.LEAD_MODE_BOT
		updates["completed_at"] = &now
	}
	return l.DB.Model(&models.Lead{}).Where("id = ?", leadID).Updates(updates).Error
}

// MarkRead marca leídos todos los entrantes pendientes del lead.
func (l *ChatLog) MarkRead(leadID int64) error {
	var lead models.Lead
	if err := l.DB.First(&lead, leadID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ErrLeadNotFound
		}
		return err
	}
	return l.DB.Model(&models.ChatMessage{}).
		Where("lead_id = ? AND direction = ? AND read = ?", leadID, models.MESSAGE_DIRECTION_IN, false).
		Update("read", true).Error
}

// Messages devuelve el historial completo del lead en orden de conversación.
func (l *ChatLog) Messages(leadID int64) ([]models.ChatMessage, error) {
	var lead models.Lead
	if err := l.DB.First(&lead, leadID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	var msgs []models.ChatMessage
	if err := l.DB.Where("lead_id = ?", leadID).Order("id asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ThreadSummary es un item del listado del inbox.
type ThreadSummary struct {
	Lead        models.Lead `json:"lead"`
	UnreadCount int         `json:"unread_count"`
	Preview     string      `json:"preview"`
}

// ListOpen lista los hilos abiertos ordenados por último mensaje descendente;
// los hilos sin mensajes van al final. Cada item lleva el conteo de no
// leídos y un preview de hasta 50 caracteres del último mensaje (o del
// mensaje inicial si todavía no hay historial).
func (l *ChatLog) ListOpen() ([]ThreadSummary, error) {
	var leads []models.Lead
	if err := l.DB.
		Where("state NOT IN (?)", models.LeadTerminalStates()).
		Find(&leads).Error; err != nil {
		return nil, err
	}

	out := make([]ThreadSummary, 0, len(leads))
	for _, lead := range leads {
		var unread int
		if err := l.DB.Model(&models.ChatMessage{}).
			Where("lead_id = ? AND direction = ? AND read = ?", lead.ID, models.MESSAGE_DIRECTION_IN, false).
			Count(&unread).Error; err != nil {
			return nil, err
		}

		preview := lead.InitialMessage
		var lastMsg models.ChatMessage
		err := l.DB.Where("lead_id = ?", lead.ID).Order("id desc").First(&lastMsg).Error
		if err == nil {
			preview = lastMsg.Content
		} else if !gorm.IsRecordNotFoundError(err) {
			return nil, err
		}

		out = append(out, ThreadSummary{
			Lead:        lead,
			UnreadCount: unread,
			Preview:     truncatePreview(preview),
		})
	}

	// Ordenamos acá y no en SQL para que los NULL de last_message_at queden
	// al final igual en sqlite y postgres.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Lead.LastMessageAt, out[j].Lead.LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	return out, nil
}

func truncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= previewMaxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewMaxRunes]) + "…"
}

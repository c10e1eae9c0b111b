package models

import (
	"encoding/json"
	"time"
)

/************************************************
/**** MARK: SESSION STATES ****/
/************************************************/
// Pasos del diálogo del bot. El estado por defecto es el menú principal.
const SESSION_STATE_MENU = "menu_principal"
const SESSION_STATE_AGENDA = "agendando_visita"
const SESSION_STATE_INFO = "info_servicios"
const SESSION_STATE_COTIZANDO = "cotizando"
const SESSION_STATE_PROCESANDO = "procesando_cotizacion"
const SESSION_STATE_DERIVADO = "derivado_asesor"

// SessionStateTTL define qué estados expiran solos. Los que no aparecen
// aquí quedan con expires_at en null (sesión sin timeout).
var SessionStateTTL = map[string]time.Duration{
	SESSION_STATE_DERIVADO: 10 * time.Minute,
}

// ConversationSession guarda el estado del diálogo de un contacto.
// Invariante: a lo sumo una sesión activa por teléfono; "activa" significa
// expires_at null o en el futuro. La expiración se chequea al leer, nunca
// borramos filas para expirar.
type ConversationSession struct {
	ID        int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Phone     string     `gorm:"not null;index" json:"phone"`
	State     string     `gorm:"not null;default:'menu_principal'" json:"state"`
	Data      string     `gorm:"type:text" json:"data"` // payload JSON tipado por estado
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at"`
}

func (s ConversationSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// DecodeData deserializa el payload del paso actual en la struct tipada
// que corresponde al estado (QuoteData, HandoffData, etc).
func (s ConversationSession) DecodeData(v any) error {
	if s.Data == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.Data), v)
}

/************************************************
/**** MARK: STEP DATA ****/
/************************************************/

// QuoteData es el payload de los pasos de cotización: el buffer de mensajes
// del cliente y la última actividad, que el scheduler relee en cada wake.
type QuoteData struct {
	Messages     []string  `json:"messages"`
	LastActivity time.Time `json:"last_activity"`
}

// HandoffData es el payload del paso de enfriamiento post-derivación.
type HandoffData struct {
	AsesorName string `json:"asesor_name"`
}

// ScheduleData es el payload del sub-flujo de agendamiento de visita.
type ScheduleData struct {
	Detail string `json:"detail"`
}

package models

import "time"

/************************************************
/**** MARK: LEAD STATES ****/
/************************************************/
const LEAD_STATE_NUEVO = "NUEVO"
const LEAD_STATE_PENDIENTE = "PENDIENTE"
const LEAD_STATE_EN_GESTION = "EN_GESTION"
const LEAD_STATE_SEGUIMIENTO = "SEGUIMIENTO"
const LEAD_STATE_COTIZADO = "COTIZADO"
const LEAD_STATE_CIERRE = "CIERRE"
const LEAD_STATE_DESCARTADO = "DESCARTADO"
const LEAD_STATE_CONVERTIDO = "CONVERTIDO"

/************************************************
/**** MARK: LEAD MODES ****/
/************************************************/
const LEAD_MODE_BOT = "BOT"
const LEAD_MODE_ASESOR = "ASESOR"

// leadStates es el allow-list para cambios de estado.
var leadStates = []string{
	LEAD_STATE_NUEVO,
	LEAD_STATE_PENDIENTE,
	LEAD_STATE_EN_GESTION,
	LEAD_STATE_SEGUIMIENTO,
	LEAD_STATE_COTIZADO,
	LEAD_STATE_CIERRE,
	LEAD_STATE_DESCARTADO,
	LEAD_STATE_CONVERTIDO,
}

// leadTerminalStates: un lead en estos estados está cerrado. Un mensaje
// entrante lo reabre a NUEVO/BOT.
var leadTerminalStates = []string{
	LEAD_STATE_CIERRE,
	LEAD_STATE_DESCARTADO,
	LEAD_STATE_CONVERTIDO,
}

func IsLeadStateValid(state string) bool {
	for _, s := range leadStates {
		if s == state {
			return true
		}
	}
	return false
}

func IsLeadStateTerminal(state string) bool {
	for _, s := range leadTerminalStates {
		if s == state {
			return true
		}
	}
	return false
}

func LeadTerminalStates() []string {
	out := make([]string, len(leadTerminalStates))
	copy(out, leadTerminalStates)
	return out
}

// Lead es un hilo del inbox: la conversación de un prospecto.
// Invariante: a lo sumo un lead abierto (estado no terminal) por teléfono.
type Lead struct {
	ID                 int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Phone              string     `gorm:"not null;index" json:"phone"`
	Name               string     `gorm:"default:''" json:"name"`
	InitialMessage     string     `gorm:"column:initial_message;type:text" json:"initial_message"`
	Interest           string     `gorm:"default:''" json:"interest"`
	State              string     `gorm:"not null;default:'NUEVO';index" json:"state"`
	Mode               string     `gorm:"not null;default:'BOT'" json:"mode"`
	AsesorID           *int64     `gorm:"column:asesor_id;index" json:"asesor_id"`
	CustomerID         *int64     `gorm:"column:customer_id" json:"customer_id"`
	ReceivedAt         *time.Time `json:"received_at"`
	LastMessageAt      *time.Time `gorm:"index" json:"last_message_at"`
	FirstResponseAt    *time.Time `json:"first_response_at"`
	ResponseLatencyMin *int64     `gorm:"column:response_latency_minutes" json:"response_latency_minutes"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          *time.Time `json:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"`
}

func (l Lead) IsOpen() bool {
	return !IsLeadStateTerminal(l.State)
}

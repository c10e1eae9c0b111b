package models

import "time"

/************************************************
/**** MARK: MESSAGE DIRECTION ****/
/************************************************/
const MESSAGE_DIRECTION_IN = "ENTRANTE"
const MESSAGE_DIRECTION_OUT = "SALIENTE"

/************************************************
/**** MARK: MESSAGE SENDER ****/
/************************************************/
const MESSAGE_SENDER_CLIENTE = "CLIENTE"
const MESSAGE_SENDER_AGENTE = "AGENTE"
const MESSAGE_SENDER_BOT = "BOT"

/************************************************
/**** MARK: CONTENT TYPES ****/
/************************************************/
// Tipos cerrados resueltos en el borde de ingesta; el resto del sistema
// nunca vuelve a inspeccionar strings del proveedor.
const CONTENT_TYPE_TEXT = "text"
const CONTENT_TYPE_IMAGE = "image"
const CONTENT_TYPE_AUDIO = "audio"
const CONTENT_TYPE_VIDEO = "video"
const CONTENT_TYPE_DOCUMENT = "document"
const CONTENT_TYPE_LOCATION = "location"
const CONTENT_TYPE_UNSUPPORTED = "unsupported"

// ChatMessage es el historial de un lead. Append-only: el orden de creación
// define el orden de la conversación.
type ChatMessage struct {
	ID                int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	LeadID            int64      `gorm:"not null;index" json:"lead_id"`
	Direction         string     `gorm:"not null" json:"direction"`
	Sender            string     `gorm:"not null" json:"sender"`
	Content           string     `gorm:"type:text" json:"content"`
	ContentType       string     `gorm:"not null;default:'text'" json:"content_type"`
	MediaPath         string     `gorm:"default:''" json:"media_path"`
	MediaMime         string     `gorm:"default:''" json:"media_mime"`
	Read              bool       `gorm:"not null;default:false" json:"read"`
	ProviderMessageID string     `gorm:"column:provider_message_id;default:''" json:"provider_message_id"`
	CreatedAt         *time.Time `json:"created_at"`
}

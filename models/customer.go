package models

import "time"

// Customer es un cliente ya convertido. Si tiene asesor asignado, los leads
// nuevos de ese teléfono se derivan directo a su asesor (sin round robin).
type Customer struct {
	ID        int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Name      string     `gorm:"not null" json:"name" form:"name"`
	Phone     string     `gorm:"not null;index" json:"phone" form:"phone"`
	AsesorID  *int64     `gorm:"column:asesor_id;index" json:"asesor_id"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

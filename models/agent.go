package models

import "time"

/************************************************
/**** MARK: AGENT ROLES ****/
/************************************************/
const AGENT_ROLE_ASESOR = "asesor"
const AGENT_ROLE_ADMIN = "admin"

/************************************************
/**** MARK: AGENT STATUS ****/
/************************************************/
const AGENT_STATUS_ACTIVE = 0
const AGENT_STATUS_INACTIVE = 1

// Agent representa un usuario interno que atiende leads.
// El pool de round robin son los agentes activos con rol "asesor".
type Agent struct {
	ID        int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	Name      string     `gorm:"not null" json:"name" form:"name"`
	Email     string     `gorm:"not null;unique" json:"email" form:"email"`
	Phone     string     `gorm:"default:''" json:"phone" form:"phone"`
	Role      string     `gorm:"not null;default:'asesor';index" json:"role" form:"role"`
	Status    int        `gorm:"default:0;index" json:"status" form:"status"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func (a Agent) IsActive() bool {
	return a.Status == AGENT_STATUS_ACTIVE
}

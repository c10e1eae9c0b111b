package inbox

import (
	"errors"
	"time"

	"sofia/models"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog/log"
)

// ErrLeadNotFound: el id de lead no existe.
var ErrLeadNotFound = errors.New("lead no encontrado")

// ErrNoActiveAgents es un error de configuración: no hay asesores activos
// para el round robin.
var ErrNoActiveAgents = errors.New("no hay asesores activos para asignar")

// Assignment es el resultado de Distribute: el lead en PENDIENTE y el asesor
// que quedó a cargo.
type Assignment struct {
	Lead  *models.Lead
	Agent *models.Agent
}

// Router asigna leads a asesores.
type Router struct {
	DB *gorm.DB
}

func NewRouter(db *gorm.DB) *Router {
	return &Router{DB: db}
}

// Distribute resuelve el asesor de un lead y lo deja en PENDIENTE.
//
// Orden de resolución:
//  1. Si el lead abierto del teléfono ya está asignado (PENDIENTE, en
//     gestión, o con un asesor a cargo del hilo), devuelve esa asignación
//     tal cual (idempotente): distribuir nunca le saca un hilo a un asesor.
//  2. Si el teléfono es de un cliente con asesor propio, va directo a ese
//     asesor (sin round robin).
//  3. Round robin sobre los asesores activos ordenados por id: el siguiente
//     al último asignado según el historial de leads, con wrap; si el último
//     asignado ya no está en el pool, arranca del primero.
//
// Si el gateway ya había abierto un lead (NUEVO/BOT) para el teléfono, se
// promueve ese mismo lead en vez de crear otro, para sostener el invariante
// de un solo lead abierto por teléfono.
func (r *Router) Distribute(phone, initialMessage, name, interest string) (*Assignment, error) {
	tx := r.DB.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	// 1) ya distribuido
	var open models.Lead
	err := tx.
		Where("phone = ?", phone).
		Where("state NOT IN (?)", models.LeadTerminalStates()).
		Order("id desc").
		First(&open).Error
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		tx.Rollback()
		return nil, err
	}
	hasOpen := err == nil

	if hasOpen && (open.State == models.LEAD_STATE_PENDIENTE ||
		open.State == models.LEAD_STATE_EN_GESTION ||
		open.Mode == models.LEAD_MODE_ASESOR) {
		tx.Rollback() // solo lectura, no hay nada que confirmar
		var agent *models.Agent
		if open.AsesorID != nil {
			agent = &models.Agent{}
			if err := r.DB.First(agent, *open.AsesorID).Error; err != nil {
				agent = nil
			}
		}
		return &Assignment{Lead: &open, Agent: agent}, nil
	}

	agent, err := r.resolveAgent(tx, phone)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now()
	var lead *models.Lead
	if hasOpen {
		updates := map[string]any{
			"state":     models.LEAD_STATE_PENDIENTE,
			"asesor_id": agent.ID,
		}
		if interest != "" {
			updates["interest"] = interest
		}
		if open.InitialMessage == "" && initialMessage != "" {
			updates["initial_message"] = initialMessage
		}
		if err := tx.Model(&models.Lead{}).Where("id = ?", open.ID).Updates(updates).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		lead = &open
		lead.State = models.LEAD_STATE_PENDIENTE
		lead.AsesorID = &agent.ID
		if interest != "" {
			lead.Interest = interest
		}
	} else {
		lead = &models.Lead{
			Phone:          phone,
			Name:           name,
			InitialMessage: initialMessage,
			Interest:       interest,
			State:          models.LEAD_STATE_PENDIENTE,
			Mode:           models.LEAD_MODE_BOT,
			AsesorID:       &agent.ID,
			ReceivedAt:     &now,
		}
		if err := tx.Create(lead).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	log.Info().
		Str("phone", phone).
		Int64("lead_id", lead.ID).
		Int64("asesor_id", agent.ID).
		Msg("inbox: lead distribuido")

	return &Assignment{Lead: lead, Agent: agent}, nil
}

// resolveAgent elige el asesor dentro de la transacción, para que "último
// asignado" y "pool activo" se lean en un solo paso lógico.
func (r *Router) resolveAgent(tx *gorm.DB, phone string) (*models.Agent, error) {
	// 2) cliente con asesor propio
	var customer models.Customer
	err := tx.Where("phone = ?", phone).Order("id desc").First(&customer).Error
	if err == nil && customer.AsesorID != nil {
		var owner models.Agent
		if err := tx.First(&owner, *customer.AsesorID).Error; err == nil && owner.IsActive() {
			return &owner, nil
		}
		// asesor dueño inactivo o borrado: cae al round robin
	} else if err != nil && !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	// 3) round robin por id ascendente
	var pool []models.Agent
	if err := tx.
		Where("role = ? AND status = ?", models.AGENT_ROLE_ASESOR, models.AGENT_STATUS_ACTIVE).
		Order("id asc").
		Find(&pool).Error; err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrNoActiveAgents
	}

	var last models.Lead
	err = tx.
		Where("asesor_id IS NOT NULL").
		Order("id desc").
		First(&last).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return &pool[0], nil
		}
		return nil, err
	}

	for i := range pool {
		if last.AsesorID != nil && pool[i].ID == *last.AsesorID {
			next := pool[(i+1)%len(pool)]
			return &next, nil
		}
	}
	// el último asignado ya no está en el pool: reinicia desde el primero
	return &pool[0], nil
}

// Convert marca el lead como CONVERTIDO, lo vincula al cliente y estampa la
// fecha de cierre.
func (r *Router) Convert(leadID, customerID int64) error {
	return r.complete(leadID, models.LEAD_STATE_CONVERTIDO, &customerID)
}

// Discard marca el lead como DESCARTADO y estampa la fecha de cierre.
func (r *Router) Discard(leadID int64) error {
	return r.complete(leadID, models.LEAD_STATE_DESCARTADO, nil)
}

func (r *Router) complete(leadID int64, state string, customerID *int64) error {
	var lead models.Lead
	if err := r.DB.First(&lead, leadID).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return ErrLeadNotFound
		}
		return err
	}

	now := time.Now()
	updates := map[string]any{
		"state":        state,
		"mode":         models.LEAD_MODE_BOT,
		"completed_at": &now,
	}
	if customerID != nil {
		updates["customer_id"] = *customerID
	}
	return r.DB.Model(&models.Lead{}).Where("id = ?", leadID).Updates(updates).Error
}

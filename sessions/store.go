package sessions

import (
	"encoding/json"
	"time"

	"sofia/models"

	"github.com/jinzhu/gorm"
)

// Store maneja las sesiones de diálogo por teléfono sobre la base de datos.
//
// La expiración es lazy: una fila con expires_at en el pasado se trata como
// inexistente al leer, sin borrarla. Última escritura gana; la garantía de
// orden por teléfono del gateway hace que eso alcance.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Get devuelve la sesión activa del teléfono, o nil si no hay (o la que
// había ya expiró).
func (s *Store) Get(phone string) (*models.ConversationSession, error) {
	var sess models.ConversationSession
	err := s.DB.
		Where("phone = ?", phone).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("id desc").
		First(&sess).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetOrCreate devuelve la sesión activa o crea una nueva en el paso por
// defecto (menú principal) sin payload.
func (s *Store) GetOrCreate(phone string) (*models.ConversationSession, error) {
	sess, err := s.Get(phone)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	sess = &models.ConversationSession{
		Phone: phone,
		State: models.SESSION_STATE_MENU,
	}
	if err := s.DB.Create(sess).Error; err != nil {
		return nil, err
	}
	return sess, nil
}

// Update pisa estado y payload de la sesión activa del teléfono (la crea si
// no existe). ttl distinto de cero setea expires_at = now+ttl (un ttl
// negativo deja la sesión ya vencida); ttl 0 lo deja en null.
func (s *Store) Update(phone string, state string, data any, ttl time.Duration) error {
	payload := ""
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = string(b)
	}

	var expires *time.Time
	if ttl != 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}

	sess, err := s.Get(phone)
	if err != nil {
		return err
	}
	if sess == nil {
		return s.DB.Create(&models.ConversationSession{
			Phone:     phone,
			State:     state,
			Data:      payload,
			ExpiresAt: expires,
		}).Error
	}

	return s.DB.Model(&models.ConversationSession{}).
		Where("id = ?", sess.ID).
		Updates(map[string]any{
			"state":      state,
			"data":       payload,
			"expires_at": expires,
		}).Error
}

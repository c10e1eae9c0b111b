package workers

import (
	"context"
	"strings"
	"time"

	"sofia/bot"
	"sofia/inbox"
	"sofia/models"
	"sofia/sessions"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const msgHandoffAck = "¡Gracias! Ya tengo todo lo que me pasaste, le doy tu consulta a un asesor."

// Scheduler es el planificador de derivaciones diferidas: espera una ventana
// de silencio después del último mensaje de un flujo de cotización antes de
// derivar a un humano, para que una ráfaga de mensajes no escale antes de
// tiempo.
//
// El registro de timers por teléfono vive en memoria y es solo advisory: en
// cada wake el timer revalida contra la sesión persistida antes de actuar.
type Scheduler struct {
	Sessions *sessions.Store
	Router   *inbox.Router
	Log      *inbox.ChatLog
	Sender   bot.Sender
	Grace    time.Duration

	timers *gocache.Cache
}

func NewScheduler(store *sessions.Store, router *inbox.Router, chatlog *inbox.ChatLog, sender bot.Sender, grace time.Duration) *Scheduler {
	return &Scheduler{
		Sessions: store,
		Router:   router,
		Log:      chatlog,
		Sender:   sender,
		Grace:    grace,
		timers:   gocache.New(gocache.NoExpiration, 0),
	}
}

// Arm arranca el timer de gracia para un teléfono. Si ya hay uno vivo es un
// no-op: el timer existente relee la última actividad en cada wake, así que
// absorbe la actividad nueva sin reiniciarse.
//
// Add de go-cache es el check-and-insert atómico: dos llamadas concurrentes
// no pueden lanzar dos timers para el mismo teléfono.
func (s *Scheduler) Arm(phone string) {
	if err := s.timers.Add(phone, time.Now(), gocache.NoExpiration); err != nil {
		return
	}
	go s.watch(phone)
}

// Pending informa si hay un timer vivo para el teléfono (solo para tests y
// diagnóstico; nunca es fuente de verdad).
func (s *Scheduler) Pending(phone string) bool {
	_, ok := s.timers.Get(phone)
	return ok
}

// watch es el loop del timer. Cualquier error se loguea y termina el loop:
// nada sale hacia quien disparó el flujo (fire and forget). En todo camino
// de salida se libera la entrada del registro para que una cotización
// posterior pueda armar un timer nuevo.
func (s *Scheduler) watch(phone string) {
	defer s.timers.Delete(phone)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("phone", phone).Msg("handoff worker: panic contenido")
		}
	}()

	wait := s.Grace
	for {
		time.Sleep(wait)

		sess, err := s.Sessions.Get(phone)
		if err != nil {
			log.Error().Err(err).Str("phone", phone).Msg("handoff worker: error leyendo sesión")
			return
		}
		// Sesión desaparecida o ya fuera del paso de espera: abandonar sin
		// efectos.
		if sess == nil || sess.State != models.SESSION_STATE_PROCESANDO {
			return
		}

		// TakeOver no toca la sesión, así que el modo del hilo se revalida
		// aparte: con un asesor a cargo el timer muere sin derivar.
		lead, err := s.Log.FindByPhone(phone)
		if err != nil {
			log.Error().Err(err).Str("phone", phone).Msg("handoff worker: error leyendo lead")
			return
		}
		if lead != nil && lead.Mode == models.LEAD_MODE_ASESOR {
			return
		}

		var data models.QuoteData
		if err := sess.DecodeData(&data); err != nil {
			log.Error().Err(err).Str("phone", phone).Msg("handoff worker: payload de sesión ilegible")
			return
		}

		last := data.LastActivity
		if last.IsZero() && sess.UpdatedAt != nil {
			last = *sess.UpdatedAt
		}

		elapsed := time.Since(last)
		if elapsed < s.Grace {
			// Hubo actividad durante el sueño: dormir el delta restante y
			// volver a mirar. Nunca cancelamos por supersesión.
			wait = s.Grace - elapsed
			continue
		}

		if err := s.Handoff(phone); err != nil {
			log.Error().Err(err).Str("phone", phone).Msg("handoff worker: derivación falló")
		}
		return
	}
}

// Handoff ejecuta la derivación a humano: mensaje de confirmación,
// asignación de asesor (reusando el contrato idempotente de Distribute),
// mensaje con el nombre del asesor, ambos registrados como mensajes del bot,
// y la sesión pasa al enfriamiento con el nombre del asesor.
//
// También la usa el gateway en forma síncrona cuando el diálogo pide un
// asesor de manera inmediata (action HANDOFF).
func (s *Scheduler) Handoff(phone string) error {
	ctx := context.Background()

	lead, _, err := s.Log.GetOrCreateOpenLead(phone, "", "")
	if err != nil {
		return err
	}

	// Un asesor ya es dueño del hilo: no hay nada que derivar.
	if lead.Mode == models.LEAD_MODE_ASESOR {
		return nil
	}

	initial := lead.InitialMessage
	interest := "asesoria"
	if sess, err := s.Sessions.Get(phone); err == nil && sess != nil {
		var data models.QuoteData
		if derr := sess.DecodeData(&data); derr == nil && len(data.Messages) > 0 {
			initial = strings.Join(data.Messages, "\n")
			interest = "cotizacion"
		}
	}

	s.sendBot(ctx, lead.ID, phone, msgHandoffAck)

	asg, err := s.Router.Distribute(phone, initial, lead.Name, interest)
	if err != nil {
		return err
	}

	asesorName := "un asesor"
	if asg.Agent != nil {
		asesorName = asg.Agent.Name
	}
	s.sendBot(ctx, lead.ID, phone, "Tu consulta quedó con "+asesorName+", te va a escribir por acá. 🙌")

	ttl := models.SessionStateTTL[models.SESSION_STATE_DERIVADO]
	if err := s.Sessions.Update(phone, models.SESSION_STATE_DERIVADO, models.HandoffData{AsesorName: asesorName}, ttl); err != nil {
		return err
	}

	log.Info().Str("phone", phone).Int64("lead_id", lead.ID).Str("asesor", asesorName).Msg("handoff worker: lead derivado")
	return nil
}

// sendBot manda y registra un mensaje del bot. La falla de envío se loguea
// y no corta la derivación (degradación silenciosa hacia el cliente).
func (s *Scheduler) sendBot(ctx context.Context, leadID int64, phone, text string) {
	if err := s.Sender.SendText(ctx, phone, text); err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("handoff worker: envío falló")
	}
	msg := &models.ChatMessage{
		LeadID:            leadID,
		Direction:         models.MESSAGE_DIRECTION_OUT,
		Sender:            models.MESSAGE_SENDER_BOT,
		Content:           text,
		ContentType:       models.CONTENT_TYPE_TEXT,
		ProviderMessageID: "bot-" + uuid.NewString(),
	}
	if err := s.Log.SaveMessage(msg); err != nil {
		log.Error().Err(err).Int64("lead_id", leadID).Msg("handoff worker: no se pudo registrar el mensaje")
	}
}

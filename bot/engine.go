package bot

import (
	"context"
	"strings"
	"time"

	"sofia/models"

	"github.com/rs/zerolog/log"
)

/************************************************
/**** MARK: STEP ACTIONS ****/
/************************************************/
const ACTION_NONE = "none"
const ACTION_NO_ACTION = "no_action"
const ACTION_HANDOFF = "handoff"

/************************************************
/**** MARK: MENU OPTION IDS ****/
/************************************************/
const OPTION_COTIZAR = "cotizar"
const OPTION_AGENDAR = "agendar"
const OPTION_ASESOR = "asesor"
const OPTION_INFO = "info"
const OPTION_VOLVER = "volver"

// StepResult es la salida de un paso del diálogo: el estado nuevo con su
// payload tipado, las respuestas a despachar y la acción para el gateway.
type StepResult struct {
	State   string
	Data    any
	Replies []Reply
	Action  string
}

// Engine es la máquina de estados del diálogo automático. No toca la base
// ni el proveedor: recibe la sesión, devuelve qué hacer.
type Engine struct {
	Classify IntentFunc
}

func NewEngine(classify IntentFunc) *Engine {
	return &Engine{Classify: classify}
}

// Step procesa un mensaje entrante contra el estado actual de la sesión.
func (e *Engine) Step(ctx context.Context, sess *models.ConversationSession, text string) StepResult {
	input := strings.ToLower(strings.TrimSpace(text))

	switch sess.State {
	case models.SESSION_STATE_COTIZANDO, models.SESSION_STATE_PROCESANDO:
		return e.stepQuote(sess, text)
	case models.SESSION_STATE_AGENDA:
		return e.stepSchedule(text)
	case models.SESSION_STATE_INFO:
		return e.stepInfo(ctx, sess, input, text)
	case models.SESSION_STATE_DERIVADO:
		return e.stepCooldown(sess)
	default:
		return e.stepMenu(ctx, input, text)
	}
}

// stepMenu es el menú principal: primero las opciones conocidas (ids de
// botones/lista o palabras clave), después el clasificador para texto libre.
func (e *Engine) stepMenu(ctx context.Context, input, raw string) StepResult {
	switch {
	case input == OPTION_COTIZAR || strings.Contains(input, "cotiz"):
		return StepResult{
			State:   models.SESSION_STATE_COTIZANDO,
			Data:    models.QuoteData{LastActivity: time.Now()},
			Replies: []Reply{TextReply(msgQuoteIntro)},
			Action:  ACTION_NONE,
		}
	case input == OPTION_AGENDAR:
		return StepResult{
			State:   models.SESSION_STATE_AGENDA,
			Replies: []Reply{TextReply(msgScheduleAsk)},
			Action:  ACTION_NONE,
		}
	case input == OPTION_ASESOR:
		return StepResult{
			State:  models.SESSION_STATE_MENU,
			Action: ACTION_HANDOFF,
		}
	case input == OPTION_INFO:
		return StepResult{
			State:   models.SESSION_STATE_INFO,
			Replies: []Reply{infoMenu()},
			Action:  ACTION_NONE,
		}
	}

	switch e.classify(ctx, raw) {
	case INTENT_GREETING:
		return StepResult{
			State:   models.SESSION_STATE_MENU,
			Replies: []Reply{TextReply(msgGreeting), mainMenu()},
			Action:  ACTION_NONE,
		}
	case INTENT_SCHEDULE:
		return StepResult{
			State:   models.SESSION_STATE_AGENDA,
			Replies: []Reply{TextReply(msgScheduleAsk)},
			Action:  ACTION_NONE,
		}
	case INTENT_ADVISOR:
		return StepResult{
			State:  models.SESSION_STATE_MENU,
			Action: ACTION_HANDOFF,
		}
	case INTENT_INFO:
		return StepResult{
			State:   models.SESSION_STATE_INFO,
			Replies: []Reply{infoMenu()},
			Action:  ACTION_NONE,
		}
	default:
		return StepResult{
			State:   models.SESSION_STATE_MENU,
			Replies: []Reply{TextReply(msgFallback), mainMenu()},
			Action:  ACTION_NONE,
		}
	}
}

// stepQuote acumula los requerimientos del cliente en el buffer de la sesión
// y refresca last_activity. No responde nada: el scheduler diferido decide
// cuándo cerrar la ventana y derivar. Este es el contrato de debounce.
func (e *Engine) stepQuote(sess *models.ConversationSession, text string) StepResult {
	var data models.QuoteData
	if err := sess.DecodeData(&data); err != nil {
		log.Warn().Err(err).Str("phone", sess.Phone).Msg("bot: payload de cotización ilegible, se reinicia el buffer")
		data = models.QuoteData{}
	}

	data.Messages = append(data.Messages, text)
	data.LastActivity = time.Now()

	return StepResult{
		State:  models.SESSION_STATE_PROCESANDO,
		Data:   data,
		Action: ACTION_NO_ACTION,
	}
}

func (e *Engine) stepSchedule(text string) StepResult {
	return StepResult{
		State:   models.SESSION_STATE_MENU,
		Data:    models.ScheduleData{Detail: strings.TrimSpace(text)},
		Replies: []Reply{TextReply(msgScheduleConfirm)},
		Action:  ACTION_NONE,
	}
}

func (e *Engine) stepInfo(ctx context.Context, sess *models.ConversationSession, input, raw string) StepResult {
	switch input {
	case "info_servicios":
		return StepResult{
			State:   models.SESSION_STATE_INFO,
			Replies: []Reply{infoReply(msgInfoServicios)},
			Action:  ACTION_NONE,
		}
	case "info_horarios":
		return StepResult{
			State:   models.SESSION_STATE_INFO,
			Replies: []Reply{infoReply(msgInfoHorarios)},
			Action:  ACTION_NONE,
		}
	case OPTION_VOLVER:
		return StepResult{
			State:   models.SESSION_STATE_MENU,
			Replies: []Reply{mainMenu()},
			Action:  ACTION_NONE,
		}
	}
	// Texto libre dentro de info: volvemos a rutear por el menú.
	return e.stepMenu(ctx, input, raw)
}

// stepCooldown: ya hay una derivación en curso; recordamos el asesor asignado
// y no relanzamos el flujo. El paso expira solo por TTL de sesión.
func (e *Engine) stepCooldown(sess *models.ConversationSession) StepResult {
	var data models.HandoffData
	_ = sess.DecodeData(&data)

	text := msgCooldown
	if data.AsesorName != "" {
		text = "Tu asesor " + data.AsesorName + " te contactará en breve. ¡Gracias por la paciencia!"
	}
	return StepResult{
		State:   models.SESSION_STATE_DERIVADO,
		Data:    data,
		Replies: []Reply{TextReply(text)},
		Action:  ACTION_NONE,
	}
}

func (e *Engine) classify(ctx context.Context, text string) string {
	if e.Classify == nil {
		return INTENT_UNKNOWN
	}
	return ClampIntent(e.Classify(ctx, text))
}

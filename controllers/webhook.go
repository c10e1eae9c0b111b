package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"sofia/bot"
	"sofia/models"
	"sofia/tools"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// WebhookPayload es el sobre que manda la Cloud API de Meta.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text"`
					Image    *mediaRef `json:"image"`
					Audio    *mediaRef `json:"audio"`
					Video    *mediaRef `json:"video"`
					Document *mediaRef `json:"document"`
					Location *struct {
						Latitude  float64 `json:"latitude"`
						Longitude float64 `json:"longitude"`
						Name      string  `json:"name"`
					} `json:"location"`
					Interactive *struct {
						Type        string `json:"type"`
						ButtonReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
						ListReply *struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// InboundMessage es el mensaje ya normalizado: tipo cerrado resuelto acá,
// en el borde; de acá para adentro nadie vuelve a mirar strings del
// proveedor.
type InboundMessage struct {
	From          string
	Name          string
	Kind          string // models.CONTENT_TYPE_*
	Text          string
	MediaRef      string
	ProviderMsgID string
}

func extractMessages(payload WebhookPayload) []InboundMessage {
	var out []InboundMessage

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if strings.TrimSpace(change.Field) != "messages" {
				continue
			}

			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, m := range change.Value.Messages {
				msg := InboundMessage{
					From:          strings.TrimSpace(m.From),
					Name:          names[strings.TrimSpace(m.From)],
					ProviderMsgID: strings.TrimSpace(m.ID),
				}
				if msg.From == "" {
					continue
				}

				switch strings.ToLower(strings.TrimSpace(m.Type)) {
				case "text":
					if m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
						continue
					}
					msg.Kind = models.CONTENT_TYPE_TEXT
					msg.Text = strings.TrimSpace(m.Text.Body)
				case "interactive":
					// Las respuestas de botones/listas entran al diálogo por
					// el id de la opción elegida.
					if m.Interactive == nil {
						continue
					}
					msg.Kind = models.CONTENT_TYPE_TEXT
					switch {
					case m.Interactive.ButtonReply != nil:
						msg.Text = m.Interactive.ButtonReply.ID
					case m.Interactive.ListReply != nil:
						msg.Text = m.Interactive.ListReply.ID
					default:
						continue
					}
				case "image":
					msg.Kind = models.CONTENT_TYPE_IMAGE
					msg.Text = captionOr(m.Image, "[imagen]")
					msg.MediaRef = refID(m.Image)
				case "audio":
					msg.Kind = models.CONTENT_TYPE_AUDIO
					msg.Text = "[audio]"
					msg.MediaRef = refID(m.Audio)
				case "video":
					msg.Kind = models.CONTENT_TYPE_VIDEO
					msg.Text = captionOr(m.Video, "[video]")
					msg.MediaRef = refID(m.Video)
				case "document":
					msg.Kind = models.CONTENT_TYPE_DOCUMENT
					msg.Text = captionOr(m.Document, "[documento]")
					msg.MediaRef = refID(m.Document)
				case "location":
					msg.Kind = models.CONTENT_TYPE_LOCATION
					msg.Text = "[ubicación]"
				default:
					msg.Kind = models.CONTENT_TYPE_UNSUPPORTED
					msg.Text = "[mensaje no soportado]"
				}

				out = append(out, msg)
			}
		}
	}

	return out
}

func captionOr(ref *mediaRef, fallback string) string {
	if ref != nil && strings.TrimSpace(ref.Caption) != "" {
		return strings.TrimSpace(ref.Caption)
	}
	return fallback
}

func refID(ref *mediaRef) string {
	if ref == nil {
		return ""
	}
	return ref.ID
}

// verifyMetaSignature valida el body contra X-Hub-Signature-256 (HMAC con
// el App Secret de Meta). Si no hay secret configurado no se exige.
func verifyMetaSignature(c *gin.Context, rawBody []byte) bool {
	secret := strings.TrimSpace(os.Getenv("WEBHOOK_APP_SECRET"))
	if secret == "" {
		return true
	}

	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}

// GET /api/webhook
//
// Handshake de verificación de Meta:
// GET /webhook?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func WebhookVerify(c *gin.Context) {
	verifyToken := os.Getenv("WEBHOOK_VERIFY_TOKEN")
	if verifyToken == "" {
		RespondError(c, "WEBHOOK_VERIFY_TOKEN not set", http.StatusInternalServerError)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == verifyToken && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}

	RespondError(c, "forbidden", http.StatusForbidden)
}

// POST /api/webhook
//
// Siempre respondemos 200 para frenar los reintentos del proveedor: un
// payload malformado se loguea y listo. La falla de un mensaje del lote no
// frena a sus hermanos.
func WebhookUpdate(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		log.Warn().Err(err).Msg("webhook: no se pudo leer el body")
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	if !verifyMetaSignature(c, raw) {
		RespondError(c, "forbidden: invalid signature", http.StatusForbidden)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Err(err).Msg("webhook: payload inválido, se reconoce igual")
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	msgs := extractMessages(payload)

	// responde rápido a Meta
	c.String(http.StatusOK, "EVENT_RECEIVED")

	ctx := context.Background()
	for _, m := range msgs {
		if err := ProcessInbound(ctx, m); err != nil {
			log.Error().Err(err).Str("from", m.From).Str("msg_id", m.ProviderMsgID).
				Msg("webhook: mensaje falló, se sigue con el resto")
		}
	}
}

// ProcessInbound corre el pipeline de un mensaje entrante: normalizar el
// teléfono, asegurar lead, registrar historial, y recién ahí decidir si el
// bot contesta. El historial se guarda ANTES de esa decisión para que quede
// completo también en modo asesor.
func ProcessInbound(ctx context.Context, m InboundMessage) error {
	phone, err := tools.NormalizePhone(m.From)
	if err != nil {
		return err
	}

	phoneLocks.Lock(phone)
	defer phoneLocks.Unlock(phone)

	content := m.Text
	mediaPath, mediaMime := "", ""
	if m.MediaRef != "" && services.Media != nil {
		path, mime, err := services.Media.FetchMedia(ctx, m.MediaRef)
		if err != nil {
			// sin media: el mensaje queda registrado solo con el texto/label
			log.Warn().Err(err).Str("media_ref", m.MediaRef).Msg("webhook: media no disponible")
		} else {
			mediaPath, mediaMime = path, mime
		}
	}

	lead, _, err := services.ChatLog.GetOrCreateOpenLead(phone, content, m.Name)
	if err != nil {
		return err
	}

	if err := services.ChatLog.SaveMessage(&models.ChatMessage{
		LeadID:            lead.ID,
		Direction:         models.MESSAGE_DIRECTION_IN,
		Sender:            models.MESSAGE_SENDER_CLIENTE,
		Content:           content,
		ContentType:       m.Kind,
		MediaPath:         mediaPath,
		MediaMime:         mediaMime,
		ProviderMessageID: m.ProviderMsgID,
	}); err != nil {
		return err
	}

	// Con un asesor a cargo el bot no participa.
	if lead.Mode == models.LEAD_MODE_ASESOR {
		return nil
	}

	sess, err := services.Sessions.GetOrCreate(phone)
	if err != nil {
		return err
	}

	res := services.Engine.Step(ctx, sess, m.Text)

	if err := services.Sessions.Update(phone, res.State, res.Data, models.SessionStateTTL[res.State]); err != nil {
		return err
	}

	switch res.Action {
	case bot.ACTION_NO_ACTION:
		// contrato de debounce: la sesión ya quedó actualizada, el timer
		// relee la última actividad al despertar
		services.Scheduler.Arm(phone)
		return nil
	case bot.ACTION_HANDOFF:
		return services.Scheduler.Handoff(phone)
	}

	for _, r := range res.Replies {
		if err := bot.Dispatch(ctx, services.Sender, phone, r); err != nil {
			log.Error().Err(err).Str("phone", phone).Msg("webhook: envío de respuesta falló")
			continue
		}
		if err := services.ChatLog.SaveMessage(&models.ChatMessage{
			LeadID:      lead.ID,
			Direction:   models.MESSAGE_DIRECTION_OUT,
			Sender:      models.MESSAGE_SENDER_BOT,
			Content:     replyLogText(r),
			ContentType: models.CONTENT_TYPE_TEXT,
		}); err != nil {
			log.Error().Err(err).Int64("lead_id", lead.ID).Msg("webhook: no se pudo registrar la respuesta")
		}
	}

	return nil
}

func replyLogText(r bot.Reply) string {
	if r.List != nil {
		return r.List.Body
	}
	return r.Text
}

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sofia/bot"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WhatsAppClient habla con la Cloud API de Meta. Implementa bot.Sender y
// hace de media fetcher para los adjuntos entrantes.
type WhatsAppClient struct {
	http          *resty.Client
	accessToken   string
	phoneNumberID string
	apiVersion    string
	mediaDir      string
}

// NewWhatsAppClient arma el cliente desde env:
// WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_NUMBER_ID, WHATSAPP_API_VERSION
// (default v20.0) y MEDIA_DIR (default "media").
func NewWhatsAppClient() (*WhatsAppClient, error) {
	token := strings.TrimSpace(os.Getenv("WHATSAPP_ACCESS_TOKEN"))
	phoneID := strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID"))
	if token == "" || phoneID == "" {
		return nil, fmt.Errorf("WHATSAPP_ACCESS_TOKEN or WHATSAPP_PHONE_NUMBER_ID not set")
	}

	version := strings.TrimSpace(os.Getenv("WHATSAPP_API_VERSION"))
	if version == "" {
		version = "v20.0"
	}
	mediaDir := strings.TrimSpace(os.Getenv("MEDIA_DIR"))
	if mediaDir == "" {
		mediaDir = "media"
	}

	client := resty.New().
		SetBaseURL("https://graph.facebook.com").
		SetAuthToken(token).
		SetTimeout(30 * time.Second)

	return &WhatsAppClient{
		http:          client,
		accessToken:   token,
		phoneNumberID: phoneID,
		apiVersion:    version,
		mediaDir:      mediaDir,
	}, nil
}

// waRecipient devuelve el número en formato internacional que espera la
// Cloud API: la clave de contacto interna va sin código de país.
func waRecipient(phone string) string {
	if len(phone) <= 9 {
		return DefaultCountryCode + phone
	}
	return phone
}

func (c *WhatsAppClient) send(ctx context.Context, payload map[string]any) error {
	url := fmt.Sprintf("/%s/%s/messages", c.apiVersion, c.phoneNumberID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("whatsapp api request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp api error: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SendText manda un mensaje de texto plano.
func (c *WhatsAppClient) SendText(ctx context.Context, to string, text string) error {
	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                waRecipient(to),
		"type":              "text",
		"text":              map[string]any{"body": text},
	})
}

// SendButtons manda un interactivo de botones de respuesta (máximo 3).
func (c *WhatsAppClient) SendButtons(ctx context.Context, to string, body string, buttons []bot.Button) error {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	btns := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": b.Title},
		})
	}

	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                waRecipient(to),
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"buttons": btns},
		},
	})
}

// SendList manda un interactivo de lista seleccionable.
func (c *WhatsAppClient) SendList(ctx context.Context, to string, list bot.ListReply) error {
	sections := make([]map[string]any, 0, len(list.Sections))
	for _, s := range list.Sections {
		rows := make([]map[string]any, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, map[string]any{"id": r.ID, "title": r.Title})
		}
		sections = append(sections, map[string]any{"title": s.Title, "rows": rows})
	}

	return c.send(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                waRecipient(to),
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"header": map[string]any{"type": "text", "text": list.Header},
			"body":   map[string]any{"text": list.Body},
			"action": map[string]any{
				"button":   list.ButtonLabel,
				"sections": sections,
			},
		},
	})
}

// FetchMedia resuelve una referencia de media del proveedor y descarga el
// archivo. Devuelve ruta local y mime type. Cualquier falla se trata arriba
// como "sin media": el mensaje se registra igual, solo texto.
func (c *WhatsAppClient) FetchMedia(ctx context.Context, mediaID string) (string, string, error) {
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&meta).
		Get(fmt.Sprintf("/%s/%s", c.apiVersion, mediaID))
	if err != nil {
		return "", "", fmt.Errorf("whatsapp media lookup failed: %w", err)
	}
	if resp.IsError() || meta.URL == "" {
		return "", "", fmt.Errorf("whatsapp media lookup error: status=%d", resp.StatusCode())
	}

	if err := os.MkdirAll(c.mediaDir, 0o755); err != nil {
		return "", "", err
	}
	path := filepath.Join(c.mediaDir, uuid.NewString()+extForMime(meta.MimeType))

	// La URL de descarga es del CDN de Meta y también exige el token.
	dl, err := c.http.R().
		SetContext(ctx).
		SetOutput(path).
		Get(meta.URL)
	if err != nil {
		return "", "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	if dl.IsError() {
		return "", "", fmt.Errorf("whatsapp media download error: status=%d", dl.StatusCode())
	}

	log.Debug().Str("media_id", mediaID).Str("path", path).Str("mime", meta.MimeType).Msg("media descargada")
	return path, meta.MimeType, nil
}

func extForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mime, "image/png"):
		return ".png"
	case strings.HasPrefix(mime, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mime, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mime, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(mime, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(mime, "application/pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}

package tools

import (
	"context"
	"os"
	"strings"
	"time"

	"sofia/bot"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const classifierInstructions = "Clasificás mensajes de clientes de una empresa de importaciones. " +
	"Respondé con UNA sola palabra de esta lista, nada más: " +
	"GREETING (saludo), SCHEDULE (quiere agendar una visita o reunión), " +
	"ADVISOR (pide hablar con una persona o asesor), INFO (pregunta por servicios, " +
	"horarios o la empresa), UNKNOWN (cualquier otra cosa)."

// ClassifyIntent clasifica texto libre con la Responses API de OpenAI y
// devuelve una etiqueta fija del set de bot.
//
// Nunca devuelve error: sin API key, timeout, respuesta rara, lo que sea,
// degrada a UNKNOWN. El diálogo sigue con el fallback genérico.
func ClassifyIntent(ctx context.Context, text string) string {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return bot.INTENT_UNKNOWN
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4.1-mini"
	}

	var parsed struct {
		Output []struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}

	resp, err := resty.New().
		SetTimeout(15*time.Second).
		R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"model":        model,
			"instructions": classifierInstructions,
			"input":        text,
		}).
		SetResult(&parsed).
		Post("https://api.openai.com/v1/responses")
	if err != nil {
		log.Warn().Err(err).Msg("classifier: request falló, degradando a UNKNOWN")
		return bot.INTENT_UNKNOWN
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Msg("classifier: error de API, degradando a UNKNOWN")
		return bot.INTENT_UNKNOWN
	}

	for _, item := range parsed.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				label := strings.ToUpper(strings.TrimSpace(c.Text))
				return bot.ClampIntent(label)
			}
		}
	}
	return bot.INTENT_UNKNOWN
}

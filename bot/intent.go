package bot

import "context"

/************************************************
/**** MARK: INTENT LABELS ****/
/************************************************/
// Etiquetas fijas del clasificador externo. El clasificador nunca devuelve
// error: cualquier falla degrada a UNKNOWN.
const INTENT_GREETING = "GREETING"
const INTENT_SCHEDULE = "SCHEDULE"
const INTENT_ADVISOR = "ADVISOR"
const INTENT_INFO = "INFO"
const INTENT_UNKNOWN = "UNKNOWN"

// IntentFunc clasifica texto libre en una etiqueta fija.
type IntentFunc func(ctx context.Context, text string) string

// ClampIntent normaliza la salida del clasificador al set de etiquetas
// conocidas; cualquier otra cosa es UNKNOWN.
func ClampIntent(label string) string {
	switch label {
	case INTENT_GREETING, INTENT_SCHEDULE, INTENT_ADVISOR, INTENT_INFO:
		return label
	default:
		return INTENT_UNKNOWN
	}
}

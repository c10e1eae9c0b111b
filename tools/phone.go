package tools

import (
	"fmt"
	"strings"
	"unicode"
)

// Código de país que se recorta del número normalizado. Todos los contactos
// se indexan por el número local, solo dígitos.
const DefaultCountryCode = "51"

// NormalizePhone normaliza un teléfono a la clave de contacto del sistema:
// solo dígitos, sin el código de país adelante.
//
// Heurística actual (Perú):
// - quita todo lo que no es dígito (y ceros a la izquierda)
// - si viene con el DDI 51 adelante y sobra largo, se lo recorta
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty phone")
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	phone = strings.TrimLeft(phone, "0")

	if strings.HasPrefix(phone, DefaultCountryCode) && len(phone) > 9 {
		phone = phone[len(DefaultCountryCode):]
	}

	if len(phone) < 6 {
		return "", fmt.Errorf("invalid phone length: %d", len(phone))
	}
	return phone, nil
}

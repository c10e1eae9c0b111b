package bot

import "context"

// Button es un botón de respuesta rápida del proveedor (máximo 3 por mensaje).
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListSection agrupa filas dentro de un mensaje de lista seleccionable.
type ListSection struct {
	Title string   `json:"title"`
	Rows  []Button `json:"rows"`
}

// ListReply es el mensaje de lista seleccionable del proveedor.
type ListReply struct {
	Header      string        `json:"header"`
	Body        string        `json:"body"`
	ButtonLabel string        `json:"button_label"`
	Sections    []ListSection `json:"sections"`
}

// Reply es un mensaje saliente del bot en alguna de las tres formas que
// soporta el proveedor: texto plano, botones o lista.
type Reply struct {
	Text    string
	Buttons []Button
	List    *ListReply
}

func TextReply(text string) Reply {
	return Reply{Text: text}
}

func ButtonsReply(text string, buttons ...Button) Reply {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	return Reply{Text: text, Buttons: buttons}
}

// Sender es el cliente de mensajería saliente (WhatsApp Cloud API en
// producción, un fake en tests).
type Sender interface {
	SendText(ctx context.Context, to string, text string) error
	SendButtons(ctx context.Context, to string, body string, buttons []Button) error
	SendList(ctx context.Context, to string, list ListReply) error
}

// Dispatch manda una Reply por la forma que corresponda.
func Dispatch(ctx context.Context, s Sender, to string, r Reply) error {
	switch {
	case r.List != nil:
		return s.SendList(ctx, to, *r.List)
	case len(r.Buttons) > 0:
		return s.SendButtons(ctx, to, r.Text, r.Buttons)
	default:
		return s.SendText(ctx, to, r.Text)
	}
}

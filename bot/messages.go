package bot

// Textos fijos del bot. Si esto crece conviene moverlo a configuración,
// por ahora alcanza con constantes.
const msgGreeting = "¡Hola! Soy Sofía 👋, la asistente virtual de Cargoline. ¿En qué te puedo ayudar?"

const msgFallback = "Perdón, no te entendí. Elegí una opción del menú y seguimos."

const msgQuoteIntro = "¡Perfecto! Contame qué necesitás cotizar: producto, cantidad aproximada y origen. " +
	"Podés mandarlo en varios mensajes, yo los junto todos."

const msgScheduleAsk = "¡Claro! ¿Qué día y horario te queda cómodo para la visita?"

const msgScheduleConfirm = "¡Anotado! Un asesor va a confirmarte la visita por este mismo chat."

const msgCooldown = "Ya derivamos tu consulta a un asesor, te contactará en breve."

const msgInfoServicios = "Hacemos importación puerta a puerta desde China: búsqueda de proveedor, " +
	"consolidación, flete marítimo/aéreo y despacho de aduana."

const msgInfoHorarios = "Atendemos de lunes a viernes de 9 a 18 hs. Fuera de ese horario me tenés a mí 🙂"

func mainMenu() Reply {
	return Reply{
		List: &ListReply{
			Header:      "Menú principal",
			Body:        "Elegí una opción para continuar:",
			ButtonLabel: "Ver opciones",
			Sections: []ListSection{
				{
					Title: "¿Qué querés hacer?",
					Rows: []Button{
						{ID: OPTION_COTIZAR, Title: "Cotizar un envío"},
						{ID: OPTION_AGENDAR, Title: "Agendar una visita"},
						{ID: OPTION_ASESOR, Title: "Hablar con un asesor"},
						{ID: OPTION_INFO, Title: "Información"},
					},
				},
			},
		},
	}
}

func infoMenu() Reply {
	return ButtonsReply("¿Sobre qué querés saber más?",
		Button{ID: "info_servicios", Title: "Servicios"},
		Button{ID: "info_horarios", Title: "Horarios"},
		Button{ID: OPTION_VOLVER, Title: "Volver al menú"},
	)
}

func infoReply(text string) Reply {
	return ButtonsReply(text,
		Button{ID: "info_servicios", Title: "Servicios"},
		Button{ID: "info_horarios", Title: "Horarios"},
		Button{ID: OPTION_VOLVER, Title: "Volver al menú"},
	)
}

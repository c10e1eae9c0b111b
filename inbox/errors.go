package inbox

import "errors"

// ErrInvalidState: el estado pedido no está en el allow-list de leads.
var ErrInvalidState = errors.New("estado de lead inválido")

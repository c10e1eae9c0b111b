package tools

import "sync"

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock serializa trabajo por clave. El gateway lo usa por teléfono: los
// mensajes de un contacto se procesan de punta a punta antes de arrancar el
// siguiente del mismo contacto; entre teléfonos distintos no hay orden.
//
// Cada entrada lleva su conteo de holders y se borra del mapa cuando el
// último suelta, así el registro no acumula un mutex por contacto para
// siempre.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyLockEntry)}
}

func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyLockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()
	e.mu.Lock()
}

func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
	e.mu.Unlock()
}

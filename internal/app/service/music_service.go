package service

import (
	"sync"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// RadioLock es el recurso de exclusión mutua del subsistema de música:
// a lo sumo un stream activo en toda la flota. Es ortogonal a la tabla
// de asignaciones, un bot puede vigilar sin tener la radio y viceversa.
type RadioLock struct {
	mu        sync.Mutex
	holder    int
	channelID string
	locked    bool
}

func NewRadioLock() *RadioLock {
	return &RadioLock{}
}

// Acquire toma la radio para botID. Re-adquirir siendo el holder es un
// no-op exitoso.
func (r *RadioLock) Acquire(botID int, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked && r.holder != botID {
		return domain.ErrRadioBusy
	}
	r.locked = true
	r.holder = botID
	r.channelID = channelID
	return nil
}

// Release suelta la radio sólo si botID la tiene.
func (r *RadioLock) Release(botID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.locked || r.holder != botID {
		return false
	}
	r.locked = false
	r.holder = 0
	r.channelID = ""
	return true
}

// Holder devuelve quién tiene la radio, si alguien la tiene.
func (r *RadioLock) Holder() (botID int, channelID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holder, r.channelID, r.locked
}

package service

import (
	"context"
	"log"
	"sync"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// QueueService es la lista de espera FIFO. Todo acceso pasa por el mutex:
// dos bots drenando a la vez no pueden duplicar posiciones ni perder
// entradas. La expiración (5 min) se chequea de forma perezosa en cada
// lectura, no hay timer de fondo.
type QueueService struct {
	mu    sync.Mutex
	queue []domain.QueueEntry
	repo  QueueRepo
	clock Clock
}

func NewQueueService(repo QueueRepo, clock Clock) *QueueService {
	return &QueueService{repo: repo, clock: clock}
}

// Load recupera la cola persistida al arrancar.
func (s *QueueService) Load(ctx context.Context) error {
	entries, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.queue = entries
	s.renumberLocked()
	s.mu.Unlock()
	return nil
}

// Enqueue agrega al final. Re-encolar al mismo usuario es idempotente:
// se elimina la entrada previa y queda una sola, en la última posición.
// Devuelve la posición 1-based.
func (s *QueueService) Enqueue(ctx context.Context, userID, channelID string, tier domain.Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	s.removeLocked(userID)
	s.queue = append(s.queue, domain.QueueEntry{
		UserID:    userID,
		ChannelID: channelID,
		Tier:      tier,
		JoinedAt:  s.clock.Now(),
	})
	s.renumberLocked()
	s.persistLocked(ctx)
	return len(s.queue)
}

// Front purga expirados y devuelve la cabeza sin removerla.
func (s *QueueService) Front(ctx context.Context) (domain.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.purgeExpiredLocked() {
		s.persistLocked(ctx)
	}
	if len(s.queue) == 0 {
		return domain.QueueEntry{}, false
	}
	return s.queue[0], true
}

// DequeueFront purga expirados y remueve la cabeza.
func (s *QueueService) DequeueFront(ctx context.Context) (domain.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	if len(s.queue) == 0 {
		return domain.QueueEntry{}, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	s.renumberLocked()
	s.persistLocked(ctx)
	return head, true
}

// Remove saca al usuario si está; devuelve si hubo remoción.
func (s *QueueService) Remove(ctx context.Context, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(userID) {
		return false
	}
	s.renumberLocked()
	s.persistLocked(ctx)
	return true
}

// PositionOf devuelve la posición 1-based del usuario, si está en cola.
func (s *QueueService) PositionOf(userID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	for _, e := range s.queue {
		if e.UserID == userID {
			return e.Position, true
		}
	}
	return 0, false
}

// Info arma el resumen que se le muestra al usuario encolado.
func (s *QueueService) Info(userID string) (domain.QueueInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	for _, e := range s.queue {
		if e.UserID == userID {
			return domain.QueueInfo{
				Position:         e.Position,
				TotalInQueue:     len(s.queue),
				EstimatedMinutes: (e.Position - 1) * int(EstimatedWaitPerSlot.Minutes()),
				JoinedAt:         e.JoinedAt,
			}, true
		}
	}
	return domain.QueueInfo{}, false
}

// List devuelve una copia de la cola vigente.
func (s *QueueService) List() []domain.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	out := make([]domain.QueueEntry, len(s.queue))
	copy(out, s.queue)
	return out
}

// Replace pisa la cola entera con la de un backup. Lo que ya expiró se
// purga en la primera lectura, no hace falta filtrar acá.
func (s *QueueService) Replace(entries []domain.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = make([]domain.QueueEntry, len(entries))
	copy(s.queue, entries)
	s.renumberLocked()
	s.persistLocked(context.Background())
	return nil
}

func (s *QueueService) removeLocked(userID string) bool {
	for i, e := range s.queue {
		if e.UserID == userID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *QueueService) purgeExpiredLocked() bool {
	cutoff := s.clock.Now().Add(-QueueTimeout)
	kept := s.queue[:0]
	purged := false
	for _, e := range s.queue {
		if e.JoinedAt.Before(cutoff) {
			purged = true
			continue
		}
		kept = append(kept, e)
	}
	s.queue = kept
	if purged {
		s.renumberLocked()
	}
	return purged
}

func (s *QueueService) renumberLocked() {
	for i := range s.queue {
		s.queue[i].Position = i + 1
	}
}

// persistLocked escribe la cola completa; un fallo de serialización se
// loguea y la operación en memoria queda igual.
func (s *QueueService) persistLocked(ctx context.Context) {
	snapshot := make([]domain.QueueEntry, len(s.queue))
	copy(snapshot, s.queue)
	if err := s.repo.ReplaceAll(ctx, snapshot); err != nil {
		log.Printf("queue: error persistiendo: %v", err)
	}
}

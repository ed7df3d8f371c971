package service

import (
	"context"
	"fmt"
	"log"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// BackupService toma snapshots periódicos del estado de la flota y permite
// restaurarlos tras un reinicio.
type BackupService struct {
	coord  *Coordinator
	queue  *QueueService
	stats  *StatsService
	snaps  SnapshotRepo
	clock  Clock
	retain int
}

func NewBackupService(coord *Coordinator, queue *QueueService, stats *StatsService, snaps SnapshotRepo, clock Clock) *BackupService {
	return &BackupService{
		coord:  coord,
		queue:  queue,
		stats:  stats,
		snaps:  snaps,
		clock:  clock,
		retain: BackupRetention,
	}
}

// Run toma un snapshot cada BackupInterval. Un fallo se loguea y se
// reintenta en el próximo tick, nunca tumba el proceso.
func (s *BackupService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(BackupInterval):
		}
		if _, err := s.TakeSnapshot(ctx); err != nil {
			log.Printf("backup: error tomando snapshot: %v", err)
		}
	}
}

// TakeSnapshot captura asignaciones, timers, cola y stats globales.
func (s *BackupService) TakeSnapshot(ctx context.Context) (domain.Snapshot, error) {
	now := s.clock.Now()
	assignments, timers := s.coord.SnapshotState()
	stats, err := s.stats.Global(ctx)
	if err != nil {
		log.Printf("backup: stats globales no disponibles: %v", err)
		stats = domain.GlobalStats{}
	}
	snap := domain.Snapshot{
		ID:          "backup_" + now.UTC().Format("2006-01-02T15-04-05"),
		TakenAt:     now,
		Assignments: assignments,
		Timers:      timers,
		Queue:       s.queue.List(),
		Stats:       stats,
	}
	if err := s.snaps.Save(ctx, snap, s.retain); err != nil {
		return domain.Snapshot{}, fmt.Errorf("guardando snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

// RestoreLatest repone el estado desde el snapshot más reciente.
func (s *BackupService) RestoreLatest(ctx context.Context) (domain.Snapshot, error) {
	snap, err := s.snaps.Latest(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.apply(ctx, snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// Restore repone el estado desde un snapshot puntual.
func (s *BackupService) Restore(ctx context.Context, id string) (domain.Snapshot, error) {
	snap, err := s.snaps.Get(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.apply(ctx, snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// apply reconstruye la tabla de asignaciones y la cola. Los guardias
// cuyo canal o dueño ya no existen se descartan con log.
func (s *BackupService) apply(ctx context.Context, snap domain.Snapshot) error {
	if err := s.coord.RestoreState(ctx, snap.Assignments, snap.Timers); err != nil {
		return err
	}
	if err := s.queue.Replace(snap.Queue); err != nil {
		return err
	}
	log.Printf("backup: estado restaurado desde %s (%d asignaciones, %d en cola)",
		snap.ID, len(snap.Assignments), len(snap.Queue))
	return nil
}

// Status devuelve cuántos snapshots hay y cuál es el último.
func (s *BackupService) Status(ctx context.Context) (count int, latest domain.Snapshot, err error) {
	count, err = s.snaps.Count(ctx)
	if err != nil {
		return 0, domain.Snapshot{}, err
	}
	if count > 0 {
		latest, err = s.snaps.Latest(ctx)
		if err != nil {
			return count, domain.Snapshot{}, err
		}
	}
	return count, latest, nil
}

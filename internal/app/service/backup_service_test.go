package service

import (
	"context"
	"testing"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

func newTestBackup(t *testing.T, n int) (*BackupService, *testFleet, *memSnapshotRepo) {
	t.Helper()
	f := newTestFleet(t, n)
	snaps := &memSnapshotRepo{}
	stats := NewStatsService(f.stats)
	return NewBackupService(f.coord, f.queue, stats, snaps, f.clock), f, snaps
}

func TestTakeSnapshotCapturesFleetState(t *testing.T) {
	svc, f, snaps := newTestBackup(t, 2)
	ch := f.dir.addChannel("X")
	f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana"))
	f.queue.Enqueue(context.Background(), "beto", "Y", domain.TierFree)

	snap, err := svc.TakeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}
	if snap.ID != "backup_2025-06-01T12-00-00" {
		t.Errorf("id %q", snap.ID)
	}
	if owner, ok := snap.Assignments["X"]; !ok || owner != 1 {
		t.Errorf("asignaciones %v", snap.Assignments)
	}
	timer, ok := snap.Timers["X"]
	if !ok || timer.UserID != "ana" || timer.StayHours != 12 {
		t.Errorf("timer %+v", timer)
	}
	if len(snap.Queue) != 1 || snap.Queue[0].UserID != "beto" {
		t.Errorf("cola %v", snap.Queue)
	}
	if n, _ := snaps.Count(context.Background()); n != 1 {
		t.Errorf("%d snapshots persistidos", n)
	}
}

func TestRestoreLatestReconnectsGuards(t *testing.T) {
	svc, f, _ := newTestBackup(t, 2)
	ch := f.dir.addChannel("X")
	f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana"))
	f.queue.Enqueue(context.Background(), "beto", "Y", domain.TierFree)

	before, err := svc.TakeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}

	// simula el reinicio: la flota arranca limpia
	svc2, f2, _ := newTestBackup(t, 2)
	f2.dir.addChannel("X")
	f2.dir.addMember("ana")
	svc2.snaps = svc.snaps

	snap, err := svc2.RestoreLatest(context.Background())
	if err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if snap.ID != before.ID {
		t.Errorf("restauró %s, esperaba %s", snap.ID, before.ID)
	}
	if owner, ok := f2.coord.BotFor("X"); !ok || owner != 1 {
		t.Fatalf("X debería volver al bot 1, owner=%d ok=%v", owner, ok)
	}
	if got := f2.sessions[1].ChannelID(); got != "X" {
		t.Errorf("bot 1 conectado a %q", got)
	}
	bot, _ := f2.coord.Bot(1)
	st := bot.Status()
	if st.CallerID != "ana" || !st.StayUntil.Equal(before.Timers["X"].StayUntil) {
		t.Errorf("estado restaurado %+v", st)
	}
	if pos, ok := f2.queue.PositionOf("beto"); !ok || pos != 1 {
		t.Errorf("cola restaurada: pos=%d ok=%v", pos, ok)
	}
}

func TestRestoreDiscardsExpiredGuards(t *testing.T) {
	svc, f, _ := newTestBackup(t, 1)
	ch := f.dir.addChannel("X")
	f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana"))
	if _, err := svc.TakeSnapshot(context.Background()); err != nil {
		t.Fatalf("TakeSnapshot: %v", err)
	}

	svc2, f2, _ := newTestBackup(t, 1)
	f2.dir.addChannel("X")
	f2.dir.addMember("ana")
	svc2.snaps = svc.snaps
	f2.clock.Advance(13 * time.Hour) // el stay de 12 h ya venció

	if _, err := svc2.RestoreLatest(context.Background()); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if _, ok := f2.coord.BotFor("X"); ok {
		t.Error("una guardia vencida no debería restaurarse")
	}
}

func TestRestoreDiscardsStaleChannel(t *testing.T) {
	svc, f, _ := newTestBackup(t, 1)
	ch := f.dir.addChannel("X")
	f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana"))
	svc.TakeSnapshot(context.Background())

	svc2, f2, _ := newTestBackup(t, 1)
	// el canal X ya no existe en el guild nuevo
	svc2.snaps = svc.snaps

	if _, err := svc2.RestoreLatest(context.Background()); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if _, ok := f2.coord.BotFor("X"); ok {
		t.Error("una guardia de canal inexistente no debería restaurarse")
	}
	bot, _ := f2.coord.Bot(1)
	if st := bot.Status(); st.State != domain.StateIdle {
		t.Errorf("estado %v, esperaba idle", st.State)
	}
}

func TestSnapshotRetention(t *testing.T) {
	svc, f, snaps := newTestBackup(t, 1)
	for i := 0; i < BackupRetention+3; i++ {
		if _, err := svc.TakeSnapshot(context.Background()); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		f.clock.Advance(BackupInterval)
	}
	if n, _ := snaps.Count(context.Background()); n != BackupRetention {
		t.Errorf("%d snapshots, la retención es %d", n, BackupRetention)
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

func TestAssignPrefersActorBot(t *testing.T) {
	f := newTestFleet(t, 2)
	ch := f.dir.addChannel("X")
	m := f.dir.addMember("ana")

	res, err := f.coord.Assign(context.Background(), 2, ch, m)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if res.Outcome != OutcomeAssigned || res.BotID != 2 {
		t.Fatalf("esperaba bot 2 asignado, tengo %+v", res)
	}
	if got := f.sessions[2].ChannelID(); got != "X" {
		t.Errorf("bot 2 conectado a %q, esperaba X", got)
	}
}

func TestAssignIsIdempotentForSameChannel(t *testing.T) {
	f := newTestFleet(t, 2)
	ch := f.dir.addChannel("X")
	m := f.dir.addMember("ana")

	first, err := f.coord.Assign(context.Background(), 1, ch, m)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	again, err := f.coord.Assign(context.Background(), first.BotID, ch, m)
	if err != nil {
		t.Fatalf("re-Assign: %v", err)
	}
	if again.Outcome != OutcomeAlreadyAssigned || again.BotID != first.BotID {
		t.Fatalf("esperaba already-assigned del bot %d, tengo %+v", first.BotID, again)
	}
}

func TestAssignRejectsChannelGuardedByOther(t *testing.T) {
	f := newTestFleet(t, 2)
	ch := f.dir.addChannel("X")
	m := f.dir.addMember("ana")

	if _, err := f.coord.Assign(context.Background(), 1, ch, m); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	_, err := f.coord.Assign(context.Background(), 2, ch, f.dir.addMember("beto"))
	if !errors.Is(err, domain.ErrChannelGuarded) {
		t.Fatalf("esperaba ErrChannelGuarded, tengo %v", err)
	}
}

func TestAssignBusyActorFallsToFreeBot(t *testing.T) {
	f := newTestFleet(t, 2)
	chX := f.dir.addChannel("X")
	chY := f.dir.addChannel("Y")
	m := f.dir.addMember("ana")

	if _, err := f.coord.Assign(context.Background(), 1, chX, m); err != nil {
		t.Fatalf("Assign X: %v", err)
	}
	res, err := f.coord.Assign(context.Background(), 1, chY, f.dir.addMember("beto"))
	if err != nil {
		t.Fatalf("Assign Y: %v", err)
	}
	if res.BotID != 2 {
		t.Fatalf("esperaba que el bot 2 cubra Y, fue el %d", res.BotID)
	}
	// el bot 1 sigue en X
	if owner, ok := f.coord.BotFor("X"); !ok || owner != 1 {
		t.Errorf("X debería seguir del bot 1, owner=%d ok=%v", owner, ok)
	}
}

func TestAssignQueuesWhenFleetFull(t *testing.T) {
	f := newTestFleet(t, 2)
	chX := f.dir.addChannel("X")
	chY := f.dir.addChannel("Y")
	chZ := f.dir.addChannel("Z")

	if _, err := f.coord.Assign(context.Background(), 1, chX, f.dir.addMember("ana")); err != nil {
		t.Fatalf("Assign X: %v", err)
	}
	if _, err := f.coord.Assign(context.Background(), 2, chY, f.dir.addMember("beto")); err != nil {
		t.Fatalf("Assign Y: %v", err)
	}

	res, err := f.coord.Assign(context.Background(), 1, chZ, f.dir.addMember("carla"))
	if err != nil {
		t.Fatalf("Assign Z: %v", err)
	}
	if res.Outcome != OutcomeQueued || res.Position != 1 {
		t.Fatalf("esperaba cola posición 1, tengo %+v", res)
	}
	if _, ok := f.coord.BotFor("Z"); ok {
		t.Error("Z no debería tener bot asignado")
	}
}

func TestDismissFreesBotAndDrainsQueue(t *testing.T) {
	f := newTestFleet(t, 2)
	chX := f.dir.addChannel("X")
	chY := f.dir.addChannel("Y")
	chZ := f.dir.addChannel("Z")

	f.coord.Assign(context.Background(), 1, chX, f.dir.addMember("ana"))
	f.coord.Assign(context.Background(), 2, chY, f.dir.addMember("beto"))
	f.coord.Assign(context.Background(), 1, chZ, f.dir.addMember("carla")) // a la cola

	botID, err := f.coord.Dismiss(context.Background(), "X", "ana", false)
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if botID != 1 {
		t.Fatalf("esperaba liberar al bot 1, fue el %d", botID)
	}

	// el drain post-liberación asigna la espera de carla
	waitFor(t, "Z asignado tras liberar X", func() bool {
		owner, ok := f.coord.BotFor("Z")
		return ok && owner == 1
	})
	if _, ok := f.queue.PositionOf("carla"); ok {
		t.Error("carla no debería seguir en cola")
	}
}

func TestDismissAuthorization(t *testing.T) {
	f := newTestFleet(t, 1)
	ch := f.dir.addChannel("X")
	f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana"))

	if _, err := f.coord.Dismiss(context.Background(), "X", "beto", false); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("esperaba ErrNotAuthorized para beto, tengo %v", err)
	}
	// admin sí puede
	if _, err := f.coord.Dismiss(context.Background(), "X", "beto", true); err != nil {
		t.Fatalf("Dismiss admin: %v", err)
	}
	if _, err := f.coord.Dismiss(context.Background(), "X", "ana", false); !errors.Is(err, domain.ErrNotGuarded) {
		t.Fatalf("esperaba ErrNotGuarded tras liberar, tengo %v", err)
	}
}

func TestAssignRevertsClaimOnConnectFailure(t *testing.T) {
	f := newTestFleet(t, 1)
	ch := f.dir.addChannel("X")
	f.sessions[1].setFailNext(1)

	if _, err := f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana")); err == nil {
		t.Fatal("esperaba error de conexión")
	}
	if _, ok := f.coord.BotFor("X"); ok {
		t.Error("el claim de X debería haberse revertido")
	}
	// el bot queda utilizable para el próximo intento
	if _, err := f.coord.Assign(context.Background(), 1, ch, f.dir.addMember("ana")); err != nil {
		t.Fatalf("reintento: %v", err)
	}
}

func TestDrainDiscardsStaleChannel(t *testing.T) {
	f := newTestFleet(t, 1)
	chX := f.dir.addChannel("X")
	chZ := f.dir.addChannel("Z")
	f.coord.Assign(context.Background(), 1, chX, f.dir.addMember("ana"))
	f.coord.Assign(context.Background(), 1, chZ, f.dir.addMember("carla")) // cola

	f.dir.removeChannel("Z")
	f.coord.Dismiss(context.Background(), "X", "ana", false)

	waitFor(t, "entrada rancia descartada", func() bool {
		_, ok := f.queue.PositionOf("carla")
		return !ok
	})
	if _, ok := f.coord.BotFor("Z"); ok {
		t.Error("Z no debería haberse asignado")
	}
}

func TestLeaderIsLowestRegisteredBot(t *testing.T) {
	f := newTestFleet(t, 3)
	leader, ok := f.coord.LeaderID()
	if !ok || leader != 1 {
		t.Fatalf("esperaba líder 1, tengo %d ok=%v", leader, ok)
	}
}

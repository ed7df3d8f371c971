package service

import (
	"context"
	"testing"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// arma una flota de 1 con el canal X vigilado por ana (tier free, 12 h).
func guardedFleet(t *testing.T) (*testFleet, *Instance) {
	t.Helper()
	f := newTestFleet(t, 1)
	ch := f.dir.addChannel("X")
	m := f.dir.addMember("ana")
	if _, err := f.coord.Assign(context.Background(), 1, ch, m); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	bot, _ := f.coord.Bot(1)
	return f, bot
}

func TestStayTimerWarnsBeforeDeadline(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)
	if n := f.notif.promptCount(); n != 0 {
		t.Fatalf("aviso antes de tiempo: %d", n)
	}

	// stay de 12 h, aviso a las 11:55
	f.clock.Advance(12*time.Hour - WarningLead)
	waitFor(t, "aviso de vencimiento", func() bool { return f.notif.promptCount() == 1 })

	if st := bot.Status(); st.State != domain.StateAwaitingConfirmation {
		t.Errorf("estado %v, esperaba awaiting-confirmation", st.State)
	}
}

func TestStayTimerExplicitContinueRestartsCycle(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(12*time.Hour - WarningLead)
	waitFor(t, "primer aviso", func() bool { return f.notif.promptCount() == 1 })

	if err := bot.Confirm("ana", true); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	waitFor(t, "vuelta a guarding", func() bool {
		return bot.Status().State == domain.StateGuarding
	})

	// la prórroga explícita re-avisa al acercarse el nuevo deadline
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(StayExtension - WarningLead)
	waitFor(t, "segundo aviso", func() bool { return f.notif.promptCount() == 2 })
}

func TestStayTimerDeclineReleasesNow(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(12*time.Hour - WarningLead)
	waitFor(t, "aviso", func() bool { return f.notif.promptCount() == 1 })

	if err := bot.Confirm("ana", false); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	waitFor(t, "bot liberado", func() bool {
		return bot.Status().State == domain.StateIdle
	})
	if _, ok := f.coord.BotFor("X"); ok {
		t.Error("X debería estar libre")
	}
	if f.stats.callCount() != 1 {
		t.Errorf("esperaba 1 llamada registrada, hay %d", f.stats.callCount())
	}
}

func TestStayTimerSilentExtensionThenDisconnect(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(12*time.Hour - WarningLead)
	waitFor(t, "aviso", func() bool { return f.notif.promptCount() == 1 })

	// sin respuesta: al cerrar la ventana se extiende una hora en silencio
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(ConfirmWindow)
	waitFor(t, "prórroga silenciosa", func() bool {
		return bot.Status().State == domain.StateGuarding
	})
	if n := f.notif.promptCount(); n != 1 {
		t.Fatalf("la prórroga por defecto no re-avisa, prompts=%d", n)
	}

	// chequeo final al vencer la prórroga: sigue vacío → se va
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(StayExtension)
	waitFor(t, "bot liberado", func() bool {
		return bot.Status().State == domain.StateIdle
	})
	if _, ok := f.coord.BotFor("X"); ok {
		t.Error("X debería estar libre")
	}
}

func TestStayTimerFinalCheckSkipsReleaseIfOccupied(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(12*time.Hour - WarningLead)
	waitFor(t, "aviso", func() bool { return f.notif.promptCount() == 1 })

	f.clock.waitWaiters(t, 1)
	f.clock.Advance(ConfirmWindow)
	waitFor(t, "prórroga silenciosa", func() bool {
		return bot.Status().State == domain.StateGuarding
	})

	// alguien volvió durante la prórroga: el chequeo final no desconecta
	f.dir.setHumans("X", 2)
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(StayExtension)

	time.Sleep(20 * time.Millisecond)
	if st := bot.Status(); st.State != domain.StateGuarding {
		t.Errorf("estado %v, esperaba guarding", st.State)
	}
	if owner, ok := f.coord.BotFor("X"); !ok || owner != 1 {
		t.Error("X debería seguir asignado al bot 1")
	}
}

func TestRejoinCancelsPendingTimer(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)

	f.dir.setHumans("X", 1)
	bot.OccupancyRejoined(context.Background(), "X")

	// un timer viejo no puede disparar después del rejoin
	f.clock.Advance(24 * time.Hour)
	time.Sleep(20 * time.Millisecond)

	if n := f.notif.promptCount(); n != 0 {
		t.Errorf("no debería haber avisos, hay %d", n)
	}
	if st := bot.Status(); st.State != domain.StateGuarding {
		t.Errorf("estado %v, esperaba guarding", st.State)
	}
}

func TestOccupancyEmptyAfterExpiredStayReleases(t *testing.T) {
	f, bot := guardedFleet(t)

	// el canal estuvo ocupado hasta pasado el stay completo
	f.clock.Advance(12*time.Hour + time.Minute)
	f.dir.setHumans("X", 0)
	bot.OccupancyEmpty(context.Background(), "X")

	waitFor(t, "bot liberado", func() bool {
		return bot.Status().State == domain.StateIdle
	})
	if _, ok := f.coord.BotFor("X"); ok {
		t.Error("X debería estar libre")
	}
}

func TestWatchdogReconnects(t *testing.T) {
	f, bot := guardedFleet(t)

	f.sessions[1].drop()
	bot.checkConnection(context.Background())

	if st := bot.Status(); st.State != domain.StateGuarding {
		t.Fatalf("estado %v, esperaba guarding tras reconectar", st.State)
	}
	if got := f.sessions[1].ChannelID(); got != "X" {
		t.Errorf("reconectado a %q, esperaba X", got)
	}
}

func TestWatchdogGivesUpAfterBoundedRetries(t *testing.T) {
	f, bot := guardedFleet(t)

	f.sessions[1].drop()
	f.sessions[1].setFailNext(MaxReconnectTries + 1)
	for i := 0; i < MaxReconnectTries; i++ {
		bot.checkConnection(context.Background())
	}

	if st := bot.Status(); st.State != domain.StateIdle {
		t.Fatalf("estado %v, esperaba idle tras agotar reintentos", st.State)
	}
	if _, ok := f.coord.BotFor("X"); ok {
		t.Error("X debería estar libre tras degradar")
	}
}

func TestWatchdogDropsStaleChannel(t *testing.T) {
	f, bot := guardedFleet(t)

	f.dir.removeChannel("X")
	f.sessions[1].drop()
	bot.checkConnection(context.Background())

	if st := bot.Status(); st.State != domain.StateIdle {
		t.Fatalf("estado %v, esperaba idle con canal inexistente", st.State)
	}
	if _, ok := f.coord.BotFor("X"); ok {
		t.Error("X debería estar libre")
	}
}

func TestConfirmRejectsStranger(t *testing.T) {
	f, bot := guardedFleet(t)
	f.dir.setHumans("X", 0)

	bot.OccupancyEmpty(context.Background(), "X")
	f.clock.waitWaiters(t, 1)
	f.clock.Advance(12*time.Hour - WarningLead)
	waitFor(t, "aviso", func() bool { return f.notif.promptCount() == 1 })

	if err := bot.Confirm("beto", true); err != domain.ErrNotAuthorized {
		t.Fatalf("esperaba ErrNotAuthorized, tengo %v", err)
	}
	// la respuesta del dueño sigue valiendo
	if err := bot.Confirm("ana", true); err != nil {
		t.Fatalf("Confirm de ana: %v", err)
	}
}

func TestConfirmWithoutPendingWarning(t *testing.T) {
	_, bot := guardedFleet(t)
	if err := bot.Confirm("ana", true); err != domain.ErrNoConfirmation {
		t.Fatalf("esperaba ErrNoConfirmation, tengo %v", err)
	}
}

package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// Instance es la máquina de estados de un bot guardián. Todos los eventos
// externos (ocupación, comandos, timers) mutan estado bajo b.mu y las
// operaciones largas (connect, esperas de timer) suspenden fuera del lock.
// Regla de orden: una instancia nunca llama al coordinator con b.mu tomado.
type Instance struct {
	id            int
	musicCapable  bool
	idleChannelID string

	session VoiceSession
	dir     Directory
	notif   Notifier
	msgs    *MessageService
	stats   *StatsService
	clock   Clock
	coord   *Coordinator // lo setea RegisterBot

	mu         sync.Mutex
	state      domain.BotState
	channelID  string
	guildID    string
	callerID   string
	tier       domain.Tier
	stayUntil  time.Time
	guardStart time.Time

	// a lo sumo un timer de stay vivo por bot; armar cancela el anterior
	timerCancel context.CancelFunc
	timerGen    int
	confirm     chan bool

	retries int
}

type InstanceDeps struct {
	Session  VoiceSession
	Dir      Directory
	Notifier Notifier
	Messages *MessageService
	Stats    *StatsService
	Clock    Clock
}

func NewInstance(id int, musicCapable bool, idleChannelID string, d InstanceDeps) *Instance {
	return &Instance{
		id:            id,
		musicCapable:  musicCapable,
		idleChannelID: idleChannelID,
		session:       d.Session,
		dir:           d.Dir,
		notif:         d.Notifier,
		msgs:          d.Messages,
		stats:         d.Stats,
		clock:         d.Clock,
		state:         domain.StateOffline,
	}
}

func (b *Instance) ID() int            { return b.id }
func (b *Instance) MusicCapable() bool { return b.musicCapable }

// SetOnline pasa el bot de Offline a Idle cuando su sesión abrió bien.
func (b *Instance) SetOnline(ctx context.Context) {
	b.mu.Lock()
	if b.state == domain.StateOffline {
		b.state = domain.StateIdle
	}
	b.mu.Unlock()
	b.joinIdle(ctx)
}

// Available: Idle siempre; Guarding/AwaitingConfirmation sólo si la
// conexión realmente murió (estado rancio que hay que reconciliar).
func (b *Instance) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case domain.StateIdle:
		return true
	case domain.StateGuarding, domain.StateAwaitingConfirmation:
		return !b.session.Connected()
	}
	return false
}

type InstanceStatus struct {
	ID           int
	State        domain.BotState
	ChannelID    string
	CallerID     string
	Tier         domain.Tier
	StayUntil    time.Time
	MusicCapable bool
}

func (b *Instance) Status() InstanceStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return InstanceStatus{
		ID:           b.id,
		State:        b.state,
		ChannelID:    b.channelID,
		CallerID:     b.callerID,
		Tier:         b.tier,
		StayUntil:    b.stayUntil,
		MusicCapable: b.musicCapable,
	}
}

// Guard conecta el bot al canal objetivo y lo deja en Guarding con su
// deadline de stay. Si estaba en otro canal, primero suelta esa entrada
// de la tabla y se desconecta. Un fallo de conexión no muta la tabla:
// el coordinator revierte el claim.
func (b *Instance) Guard(ctx context.Context, ch domain.Channel, m domain.Member, tier domain.Tier) (time.Time, error) {
	b.mu.Lock()
	b.cancelTimerLocked()
	prev := b.channelID
	b.mu.Unlock()

	if prev != "" && prev != ch.ID {
		b.coord.Unassign(prev, b.id)
	}
	if b.session.Connected() {
		_ = b.session.Disconnect()
	}
	if err := b.session.Connect(ctx, ch.ID); err != nil {
		b.mu.Lock()
		b.state = domain.StateIdle
		b.channelID, b.guildID, b.callerID = "", "", ""
		b.stayUntil, b.guardStart = time.Time{}, time.Time{}
		b.mu.Unlock()
		return time.Time{}, fmt.Errorf("conectando a %s: %w", ch.ID, err)
	}

	now := b.clock.Now()
	until := now.Add(tier.StayDuration())
	b.mu.Lock()
	b.state = domain.StateGuarding
	b.channelID, b.guildID, b.callerID = ch.ID, ch.GuildID, m.ID
	b.tier = tier
	b.stayUntil = until
	b.guardStart = now
	b.retries = 0
	b.mu.Unlock()
	return until, nil
}

// Restore repone un guard desde un backup: misma mecánica que Guard pero
// conserva el deadline y el solicitante originales en vez de recalcular.
func (b *Instance) Restore(ctx context.Context, ch domain.Channel, t domain.ChannelTimer) error {
	if b.session.Connected() {
		_ = b.session.Disconnect()
	}
	if err := b.session.Connect(ctx, ch.ID); err != nil {
		return fmt.Errorf("reconectando a %s: %w", ch.ID, err)
	}
	b.mu.Lock()
	b.cancelTimerLocked()
	b.state = domain.StateGuarding
	b.channelID, b.guildID, b.callerID = ch.ID, ch.GuildID, t.UserID
	b.tier = t.Tier
	b.stayUntil = t.StayUntil
	b.guardStart = b.clock.Now()
	b.retries = 0
	b.mu.Unlock()
	return nil
}

// Dismiss es el pedido explícito de liberar el canal; sólo el solicitante
// de la asignación vigente (o un admin) puede hacerlo.
func (b *Instance) Dismiss(ctx context.Context, requesterID string, admin bool) error {
	b.mu.Lock()
	if b.channelID == "" {
		b.mu.Unlock()
		return domain.ErrNotGuarded
	}
	if !admin && requesterID != b.callerID {
		b.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	b.mu.Unlock()
	b.releaseAndDrain(ctx, true, true)
	return nil
}

// OccupancyEmpty llega (ya debounced) cuando el canal vigilado quedó sin
// humanos. Arranca la cuenta regresiva de stay.
func (b *Instance) OccupancyEmpty(ctx context.Context, channelID string) {
	b.mu.Lock()
	if b.state != domain.StateGuarding || b.channelID != channelID || b.callerID == "" {
		b.mu.Unlock()
		return
	}
	if !b.stayUntil.After(b.clock.Now()) {
		// el stay venció mientras el canal seguía ocupado
		b.mu.Unlock()
		b.releaseAndDrain(ctx, true, true)
		return
	}
	b.armTimerLocked()
	remaining := b.stayUntil.Sub(b.clock.Now())
	b.mu.Unlock()

	content := b.msgs.Render("timer_start", map[string]string{
		"bot":   fmt.Sprintf("#%d", b.id),
		"hours": fmt.Sprintf("%.1f", remaining.Hours()),
	})
	if err := b.notif.Send(ctx, channelID, content); err != nil {
		log.Printf("bot #%d: aviso de timer falló: %v", b.id, err)
	}
}

// OccupancyRejoined cancela cualquier cuenta regresiva pendiente: un humano
// volvió al canal antes del vencimiento. No puede quedar un timer viejo
// que dispare después.
func (b *Instance) OccupancyRejoined(ctx context.Context, channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channelID != channelID {
		return
	}
	b.cancelTimerLocked()
}

// Confirm registra la respuesta del solicitante al aviso de vencimiento.
func (b *Instance) Confirm(userID string, cont bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != domain.StateAwaitingConfirmation || b.confirm == nil {
		return domain.ErrNoConfirmation
	}
	if userID != b.callerID {
		return domain.ErrNotAuthorized
	}
	select {
	case b.confirm <- cont:
	default:
	}
	b.confirm = nil
	return nil
}

// armTimerLocked cancela el timer previo (si hay) y arma uno nuevo.
func (b *Instance) armTimerLocked() {
	b.cancelTimerLocked()
	ctx, cancel := context.WithCancel(context.Background())
	b.timerCancel = cancel
	go b.stayTimer(ctx, b.timerGen, b.channelID)
}

// cancelTimerLocked invalida el timer vigente. La generación evita que un
// goroutine cancelado a mitad de espera toque estado después.
func (b *Instance) cancelTimerLocked() {
	if b.timerCancel != nil {
		b.timerCancel()
		b.timerCancel = nil
	}
	b.timerGen++
	b.confirm = nil
	if b.state == domain.StateAwaitingConfirmation {
		b.state = domain.StateGuarding
	}
}

func (b *Instance) timerLiveLocked(gen int, channelID string) bool {
	return gen == b.timerGen && b.channelID == channelID
}

// stayTimer es la tarea de dos fases: espera hasta stayUntil-5m, manda el
// aviso y abre la ventana de confirmación. "Continuar" explícito extiende
// una hora y rearranca la fase 1; sin respuesta extiende una hora y hace
// el chequeo final al vencer; "basta" libera ya. Cancelación cooperativa:
// cualquier salida por ctx no toca la tabla de asignaciones.
func (b *Instance) stayTimer(ctx context.Context, gen int, channelID string) {
	for {
		b.mu.Lock()
		if !b.timerLiveLocked(gen, channelID) {
			b.mu.Unlock()
			return
		}
		deadline := b.stayUntil
		b.mu.Unlock()

		if wait := deadline.Sub(b.clock.Now()) - WarningLead; wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-b.clock.After(wait):
			}
		}
		if n, err := b.dir.HumanCount(channelID); err == nil && n > 0 {
			// alguien volvió sin que nos llegara el evento; no hay nada que vigilar
			return
		}

		b.mu.Lock()
		if !b.timerLiveLocked(gen, channelID) {
			b.mu.Unlock()
			return
		}
		b.state = domain.StateAwaitingConfirmation
		confirm := make(chan bool, 1)
		b.confirm = confirm
		caller := b.callerID
		b.mu.Unlock()

		b.sendWarning(channelID, caller)

		var cont, answered bool
		select {
		case <-ctx.Done():
			return
		case cont = <-confirm:
			answered = true
		case <-b.clock.After(ConfirmWindow):
			cont = true // sin respuesta: continuar por defecto
		}

		if !cont {
			b.releaseAndDrain(context.Background(), true, true)
			return
		}

		b.mu.Lock()
		if gen != b.timerGen {
			b.mu.Unlock()
			return
		}
		b.state = domain.StateGuarding
		b.confirm = nil
		b.stayUntil = b.clock.Now().Add(StayExtension)
		deadline = b.stayUntil
		b.mu.Unlock()

		if answered {
			// prórroga pedida: fase 1 de nuevo, con nuevo aviso al acercarse
			continue
		}

		// prórroga por defecto: chequeo final al vencer, sin nuevo aviso
		if wait := deadline.Sub(b.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-b.clock.After(wait):
			}
		}
		b.mu.Lock()
		live := b.timerLiveLocked(gen, channelID)
		b.mu.Unlock()
		if !live {
			return
		}
		if n, err := b.dir.HumanCount(channelID); err == nil && n > 0 {
			return
		}
		b.releaseAndDrain(context.Background(), true, true)
		return
	}
}

func (b *Instance) sendWarning(channelID, callerID string) {
	content := b.msgs.Render("timer_warning", map[string]string{
		"bot":  fmt.Sprintf("#%d", b.id),
		"time": strconv.Itoa(int(WarningLead.Minutes())),
	})
	if callerID != "" {
		content = "<@" + callerID + "> " + content
	}
	if err := b.notif.Prompt(context.Background(), channelID, content, b.id); err != nil {
		log.Printf("bot #%d: aviso de vencimiento falló: %v", b.id, err)
	}
}

// releaseAndDrain es la limpieza común de vencimiento natural, dismissal
// y "basta": desconectar, soltar la tabla, registrar stats, volver al
// canal de espera y drenar la cola.
func (b *Instance) releaseAndDrain(ctx context.Context, notifyLeave, recordStats bool) {
	b.mu.Lock()
	b.cancelTimerLocked()
	ch := b.channelID
	caller := b.callerID
	tier := b.tier
	start := b.guardStart
	b.state = domain.StateIdle
	b.channelID, b.guildID, b.callerID = "", "", ""
	b.stayUntil, b.guardStart = time.Time{}, time.Time{}
	b.retries = 0
	b.mu.Unlock()

	if b.session.Connected() {
		_ = b.session.Disconnect()
	}
	if ch == "" {
		return
	}
	b.coord.Unassign(ch, b.id)
	if recordStats && caller != "" {
		hours := b.clock.Now().Sub(start).Hours()
		b.stats.RecordCall(ctx, caller, b.id, ch, tier, hours)
	}
	if notifyLeave {
		content := b.msgs.Render("leave", map[string]string{
			"bot":     fmt.Sprintf("#%d", b.id),
			"channel": "<#" + ch + ">",
		})
		if err := b.notif.Send(ctx, ch, content); err != nil {
			log.Printf("bot #%d: aviso de salida falló: %v", b.id, err)
		}
	}
	b.joinIdle(ctx)
	b.coord.DrainOne(ctx)
}

// joinIdle entra al canal de espera configurado. Es un sub-estado pasivo:
// el bot sigue Idle (y disponible) aunque esté conectado ahí.
func (b *Instance) joinIdle(ctx context.Context) {
	if b.idleChannelID == "" {
		return
	}
	b.mu.Lock()
	busy := b.channelID != ""
	b.mu.Unlock()
	if busy {
		return
	}
	if b.session.Connected() && b.session.ChannelID() == b.idleChannelID {
		return
	}
	if err := b.session.Connect(ctx, b.idleChannelID); err != nil {
		log.Printf("bot #%d: no pude entrar al canal de espera: %v", b.id, err)
	}
}

// RunWatchdog es el poll de reconexión (10s). Corre hasta que ctx muera.
func (b *Instance) RunWatchdog(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.clock.After(ReconnectPoll):
		}
		b.checkConnection(ctx)
	}
}

// checkConnection reconcilia el estado con la conexión real. Caída
// inesperada → Reconnecting con reintentos acotados; al agotarlos el bot
// queda Idle y se drena la cola, nunca reintenta para siempre.
func (b *Instance) checkConnection(ctx context.Context) {
	if b.session.Connected() {
		b.mu.Lock()
		b.retries = 0
		if b.state == domain.StateReconnecting {
			if b.channelID != "" {
				b.state = domain.StateGuarding
			} else {
				b.state = domain.StateIdle
			}
		}
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	if b.state == domain.StateOffline {
		b.mu.Unlock()
		return
	}
	ch := b.channelID
	if ch == "" {
		st := b.state
		b.mu.Unlock()
		if st == domain.StateIdle {
			b.joinIdle(ctx)
		}
		return
	}
	b.state = domain.StateReconnecting
	b.retries++
	tries := b.retries
	b.mu.Unlock()

	if !b.coord.IsAssigned(ch, b.id) {
		// el canal fue reasignado mientras estábamos caídos
		b.forceIdle(ctx)
		return
	}
	if _, err := b.dir.ResolveChannel(ctx, ch); err != nil {
		log.Printf("bot #%d: canal %s ya no existe, suelto la asignación", b.id, ch)
		b.releaseAndDrain(ctx, false, true)
		return
	}
	if err := b.session.Connect(ctx, ch); err != nil {
		log.Printf("bot #%d: reconexión %d/%d a %s falló: %v", b.id, tries, MaxReconnectTries, ch, err)
		if tries >= MaxReconnectTries {
			log.Printf("bot #%d: reintentos agotados, degrado a idle", b.id)
			b.releaseAndDrain(ctx, false, true)
		}
		return
	}

	b.mu.Lock()
	b.state = domain.StateGuarding
	b.retries = 0
	b.mu.Unlock()
	log.Printf("bot #%d: reconectado a %s", b.id, ch)
}

// forceIdle limpia estado local sin tocar la tabla (la entrada ya no es
// nuestra) y libera capacidad.
func (b *Instance) forceIdle(ctx context.Context) {
	b.mu.Lock()
	b.cancelTimerLocked()
	b.state = domain.StateIdle
	b.channelID, b.guildID, b.callerID = "", "", ""
	b.stayUntil, b.guardStart = time.Time{}, time.Time{}
	b.retries = 0
	b.mu.Unlock()
	b.joinIdle(ctx)
	b.coord.DrainOne(ctx)
}

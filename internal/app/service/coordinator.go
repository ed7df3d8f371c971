package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

type AssignOutcome int

const (
	OutcomeAssigned AssignOutcome = iota
	OutcomeAlreadyAssigned
	OutcomeQueued
)

// AssignResult es el resultado tipado que consume la capa de comandos.
type AssignResult struct {
	Outcome   AssignOutcome
	BotID     int
	ChannelID string
	Position  int // sólo con OutcomeQueued
	Tier      domain.Tier
	StayHours int
	StayUntil time.Time
}

// Coordinator es el dueño de la tabla de asignaciones (canal → bot), la
// única fuente de verdad de ocupación. Las mutaciones son cortas y bajo
// c.mu; dos bots corriendo por el mismo canal no pueden ganar los dos.
// Orden de locks: coordinator → instancia, nunca al revés.
type Coordinator struct {
	mu          sync.Mutex
	assignments map[string]int
	timers      map[string]domain.ChannelTimer
	bots        map[int]*Instance
	order       []int

	queue *QueueService
	tiers *TierService
	dir   Directory
	notif Notifier
	msgs  *MessageService
	clock Clock
}

func NewCoordinator(queue *QueueService, tiers *TierService, dir Directory, notif Notifier, msgs *MessageService, clock Clock) *Coordinator {
	return &Coordinator{
		assignments: make(map[string]int),
		timers:      make(map[string]domain.ChannelTimer),
		bots:        make(map[int]*Instance),
		queue:       queue,
		tiers:       tiers,
		dir:         dir,
		notif:       notif,
		msgs:        msgs,
		clock:       clock,
	}
}

func (c *Coordinator) RegisterBot(b *Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bots[b.id] = b
	c.order = append(c.order, b.id)
	sort.Ints(c.order)
	b.coord = c
}

// Bot devuelve la instancia registrada con ese id.
func (c *Coordinator) Bot(id int) (*Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bots[id]
	return b, ok
}

// Bots devuelve las instancias en orden de id.
func (c *Coordinator) Bots() []*Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Instance, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.bots[id])
	}
	return out
}

// LeaderID es el bot designado para correr las agendas: el de menor
// número entre los que están vivos. Se decide al arrancar.
func (c *Coordinator) LeaderID() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return 0, false
	}
	return c.order[0], true
}

// Assign es el algoritmo central "asignar un bot a un canal":
//  1. canal ya asignado al actor → éxito idempotente; a otro bot → rechazo
//  2. actor ocupado en otro canal → preferir otro bot disponible
//  3. nadie disponible → encolar al solicitante
//  4. si no: reclamar la entrada, conectar, armar deadline de stay
//
// El claim se escribe antes de soltar c.mu: de dos Assign corriendo por
// el mismo canal, el que pierde ve la entrada y recibe ErrChannelGuarded.
func (c *Coordinator) Assign(ctx context.Context, actorID int, ch domain.Channel, m domain.Member) (AssignResult, error) {
	tier := c.tiers.Resolve(m)

	c.mu.Lock()
	if owner, ok := c.assignments[ch.ID]; ok {
		c.mu.Unlock()
		if owner == actorID {
			return AssignResult{Outcome: OutcomeAlreadyAssigned, BotID: owner, ChannelID: ch.ID}, nil
		}
		return AssignResult{BotID: owner, ChannelID: ch.ID}, domain.ErrChannelGuarded
	}
	target, ok := c.pickBotLocked(actorID)
	if !ok {
		c.mu.Unlock()
		pos := c.queue.Enqueue(ctx, m.ID, ch.ID, tier)
		return AssignResult{Outcome: OutcomeQueued, Position: pos, ChannelID: ch.ID, Tier: tier}, nil
	}
	c.assignments[ch.ID] = target
	c.mu.Unlock()

	bot := c.bots[target]
	until, err := bot.Guard(ctx, ch, m, tier)
	if err != nil {
		// el connect falló: revertir el claim, la tabla queda como estaba
		c.mu.Lock()
		if c.assignments[ch.ID] == target {
			delete(c.assignments, ch.ID)
		}
		c.mu.Unlock()
		return AssignResult{}, err
	}

	info := tier.Info()
	c.mu.Lock()
	c.timers[ch.ID] = domain.ChannelTimer{
		BotID:     target,
		UserID:    m.ID,
		Tier:      tier,
		StayUntil: until,
		StayHours: info.StayHours,
	}
	c.mu.Unlock()

	content := c.msgs.Render("join", map[string]string{
		"bot":      fmt.Sprintf("#%d", target),
		"channel":  "<#" + ch.ID + ">",
		"tier":     info.Name,
		"duration": strconv.Itoa(info.StayHours),
	})
	if err := c.notif.Send(ctx, ch.ID, content); err != nil {
		log.Printf("coordinator: aviso de entrada falló en %s: %v", ch.ID, err)
	}

	return AssignResult{
		Outcome:   OutcomeAssigned,
		BotID:     target,
		ChannelID: ch.ID,
		Tier:      tier,
		StayHours: info.StayHours,
		StayUntil: until,
	}, nil
}

// pickBotLocked: el actor si está disponible; si está ocupado, otro bot
// disponible (evita migraciones innecesarias); si nadie, cola.
func (c *Coordinator) pickBotLocked(actorID int) (int, bool) {
	if b, ok := c.bots[actorID]; ok && b.Available() {
		return actorID, true
	}
	for _, id := range c.order {
		if id == actorID {
			continue
		}
		if c.bots[id].Available() {
			return id, true
		}
	}
	return 0, false
}

// FirstAvailable devuelve el bot de menor id que pasa el predicado de
// disponibilidad.
func (c *Coordinator) FirstAvailable() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.order {
		if c.bots[id].Available() {
			return id, true
		}
	}
	return 0, false
}

// Dismiss libera la asignación vigente del canal, si el solicitante está
// autorizado. Devuelve el bot que se fue.
func (c *Coordinator) Dismiss(ctx context.Context, channelID, requesterID string, admin bool) (int, error) {
	c.mu.Lock()
	owner, ok := c.assignments[channelID]
	bot := c.bots[owner]
	c.mu.Unlock()
	if !ok || bot == nil {
		return 0, domain.ErrNotGuarded
	}
	if err := bot.Dismiss(ctx, requesterID, admin); err != nil {
		return owner, err
	}
	return owner, nil
}

// Unassign borra la entrada sólo si sigue siendo del bot indicado: un bot
// caído no puede pisar la asignación que otro ya tomó.
func (c *Coordinator) Unassign(channelID string, botID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.assignments[channelID]; !ok || owner != botID {
		return false
	}
	delete(c.assignments, channelID)
	delete(c.timers, channelID)
	return true
}

func (c *Coordinator) IsAssigned(channelID string, botID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.assignments[channelID]
	return ok && owner == botID
}

// BotFor devuelve qué bot vigila el canal, si alguno.
func (c *Coordinator) BotFor(channelID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.assignments[channelID]
	return owner, ok
}

// SnapshotState copia la tabla y la metadata de timers para el backup.
func (c *Coordinator) SnapshotState() (map[string]int, map[string]domain.ChannelTimer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	assignments := make(map[string]int, len(c.assignments))
	for k, v := range c.assignments {
		assignments[k] = v
	}
	timers := make(map[string]domain.ChannelTimer, len(c.timers))
	for k, v := range c.timers {
		timers[k] = v
	}
	return assignments, timers
}

// RestoreState repone la tabla desde un snapshot: reconecta cada bot a su
// canal con el deadline original. Guardias con el stay ya vencido, canal
// inexistente o bot no disponible se descartan con log; el resto de la
// restauración sigue.
func (c *Coordinator) RestoreState(ctx context.Context, assignments map[string]int, timers map[string]domain.ChannelTimer) error {
	now := c.clock.Now()
	for chID, botID := range assignments {
		t, ok := timers[chID]
		if !ok || !t.StayUntil.After(now) {
			log.Printf("restore: guardia de %s ya vencida, la descarto", chID)
			continue
		}
		ch, err := c.dir.ResolveChannel(ctx, chID)
		if err != nil {
			log.Printf("restore: canal %s ya no existe, descarto su guardia", chID)
			continue
		}

		c.mu.Lock()
		bot := c.bots[botID]
		if bot == nil || !bot.Available() {
			c.mu.Unlock()
			log.Printf("restore: bot #%d no disponible para %s", botID, chID)
			continue
		}
		if _, taken := c.assignments[chID]; taken {
			c.mu.Unlock()
			continue
		}
		c.assignments[chID] = botID
		c.mu.Unlock()

		if err := bot.Restore(ctx, ch, t); err != nil {
			log.Printf("restore: bot #%d no pudo volver a %s: %v", botID, chID, err)
			c.mu.Lock()
			if c.assignments[chID] == botID {
				delete(c.assignments, chID)
			}
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		c.timers[chID] = t
		c.mu.Unlock()
		log.Printf("restore: bot #%d de vuelta en %s hasta %s", botID, chID, t.StayUntil.Format(time.RFC3339))
	}
	return nil
}

// DrainOne asigna un bot libre a la siguiente entrada válida de la cola.
// Se invoca después de cada liberación y en el tick periódico. Referencias
// rancias (canal o miembro ya no resolubles) descartan la entrada y no se
// intenta nada más en este ciclo.
func (c *Coordinator) DrainOne(ctx context.Context) {
	botID, ok := c.FirstAvailable()
	if !ok {
		return
	}
	e, ok := c.queue.Front(ctx)
	if !ok {
		return
	}
	ch, err := c.dir.ResolveChannel(ctx, e.ChannelID)
	if err != nil {
		log.Printf("drain: canal %s no resoluble, descarto entrada de %s", e.ChannelID, e.UserID)
		c.queue.Remove(ctx, e.UserID)
		return
	}
	m, err := c.dir.ResolveMember(ctx, ch.GuildID, e.UserID)
	if err != nil {
		log.Printf("drain: miembro %s no resoluble, descarto su entrada", e.UserID)
		c.queue.Remove(ctx, e.UserID)
		return
	}
	// la remoción es la "reserva": de dos drains concurrentes sólo uno sigue
	if !c.queue.Remove(ctx, e.UserID) {
		return
	}

	res, err := c.Assign(ctx, botID, ch, m)
	if err != nil {
		log.Printf("drain: asignación para %s falló: %v", e.UserID, err)
		c.queue.Enqueue(ctx, e.UserID, e.ChannelID, e.Tier)
		return
	}
	if res.Outcome == OutcomeAssigned {
		content := c.msgs.Render("queue_ready", map[string]string{
			"bot":     fmt.Sprintf("#%d", res.BotID),
			"channel": "<#" + ch.ID + ">",
		})
		if err := c.notif.Send(ctx, ch.ID, content); err != nil {
			log.Printf("drain: aviso de turno falló en %s: %v", ch.ID, err)
		}
	}
}

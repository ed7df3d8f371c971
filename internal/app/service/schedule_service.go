package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// ScheduleService maneja las asignaciones pre-reservadas. El chequeo
// periódico lo corre únicamente el bot líder (el de menor número vivo al
// arrancar), no un id cableado.
type ScheduleService struct {
	repo  ScheduleRepo
	coord *Coordinator
	dir   Directory
	clock Clock
}

func NewScheduleService(repo ScheduleRepo, coord *Coordinator, dir Directory, clock Clock) *ScheduleService {
	return &ScheduleService{repo: repo, coord: coord, dir: dir, clock: clock}
}

// Create registra una agenda. when acepta "+30 min" / "+2 hour" (relativo)
// o "HH:MM" (la próxima ocurrencia de esa hora).
func (s *ScheduleService) Create(ctx context.Context, userID, channelID, when string, rec domain.Recurrence) (domain.ScheduleEntry, error) {
	trigger, err := parseScheduleTime(s.clock.Now(), when)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	e := domain.ScheduleEntry{
		UserID:     userID,
		ChannelID:  channelID,
		TriggerAt:  trigger,
		Recurrence: rec,
		Active:     true,
		CreatedAt:  s.clock.Now(),
	}
	id, err := s.repo.Insert(ctx, e)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	e.ID = id
	return e, nil
}

func (s *ScheduleService) ListForUser(ctx context.Context, userID string) ([]domain.ScheduleEntry, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Reschedule mueve el trigger de una agenda del usuario a un horario
// nuevo (mismo formato que Create).
func (s *ScheduleService) Reschedule(ctx context.Context, id int64, userID, when string) (domain.ScheduleEntry, error) {
	trigger, err := parseScheduleTime(s.clock.Now(), when)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id && e.Active {
			if err := s.repo.SetTrigger(ctx, id, trigger); err != nil {
				return domain.ScheduleEntry{}, err
			}
			e.TriggerAt = trigger
			return e, nil
		}
	}
	return domain.ScheduleEntry{}, domain.ErrScheduleNotFound
}

// Cancel desactiva (no borra) la agenda, sólo si es del usuario.
func (s *ScheduleService) Cancel(ctx context.Context, id int64, userID string) error {
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == id && e.Active {
			return s.repo.Deactivate(ctx, id)
		}
	}
	return domain.ErrScheduleNotFound
}

// Run es el loop del líder: cada minuto ejecuta las agendas vencidas y de
// paso drena la cola (el tick periódico que pide el coordinador).
func (s *ScheduleService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(SchedulePoll):
		}
		s.CheckDue(ctx)
		s.coord.DrainOne(ctx)
	}
}

// CheckDue ejecuta toda agenda activa cuyo trigger ya llegó y luego la
// avanza (recurrente) o desactiva (one-shot). Referencias rancias
// desactivan la entrada y no cortan el ciclo.
func (s *ScheduleService) CheckDue(ctx context.Context) {
	entries, err := s.repo.ListActive(ctx)
	if err != nil {
		log.Printf("scheduler: error listando agendas: %v", err)
		return
	}
	now := s.clock.Now()
	for _, e := range entries {
		if e.TriggerAt.After(now) {
			continue
		}
		switch s.execute(ctx, e) {
		case schedStale:
			if err := s.repo.Deactivate(ctx, e.ID); err != nil {
				log.Printf("scheduler: error desactivando agenda %d: %v", e.ID, err)
			}
		case schedDeferred:
			// canal ocupado o sin bots libres: se reintenta en el próximo tick
		case schedFired:
			s.advance(ctx, e, now)
		}
	}
}

type schedResult int

const (
	schedFired schedResult = iota
	schedDeferred
	schedStale
)

// execute corre el algoritmo de asignación para la agenda.
func (s *ScheduleService) execute(ctx context.Context, e domain.ScheduleEntry) schedResult {
	if _, taken := s.coord.BotFor(e.ChannelID); taken {
		return schedDeferred
	}
	ch, err := s.dir.ResolveChannel(ctx, e.ChannelID)
	if err != nil {
		log.Printf("scheduler: canal %s de la agenda %d no resoluble", e.ChannelID, e.ID)
		return schedStale
	}
	m, err := s.dir.ResolveMember(ctx, ch.GuildID, e.UserID)
	if err != nil {
		log.Printf("scheduler: usuario %s de la agenda %d no resoluble", e.UserID, e.ID)
		return schedStale
	}
	botID, ok := s.coord.FirstAvailable()
	if !ok {
		log.Printf("scheduler: sin bots libres para la agenda %d", e.ID)
		return schedDeferred
	}
	res, err := s.coord.Assign(ctx, botID, ch, m)
	if err != nil {
		log.Printf("scheduler: asignación de la agenda %d falló: %v", e.ID, err)
		return schedDeferred
	}
	if res.Outcome == OutcomeAssigned {
		log.Printf("scheduler: agenda %d ejecutada, bot #%d en %s", e.ID, res.BotID, ch.ID)
	}
	return schedFired
}

func (s *ScheduleService) advance(ctx context.Context, e domain.ScheduleEntry, now time.Time) {
	var period time.Duration
	switch e.Recurrence {
	case domain.RecurDaily:
		period = 24 * time.Hour
	case domain.RecurWeekly:
		period = 7 * 24 * time.Hour
	default:
		if err := s.repo.Deactivate(ctx, e.ID); err != nil {
			log.Printf("scheduler: error desactivando agenda %d: %v", e.ID, err)
		}
		return
	}
	next := e.TriggerAt
	for !next.After(now) {
		next = next.Add(period)
	}
	if err := s.repo.SetTrigger(ctx, e.ID, next); err != nil {
		log.Printf("scheduler: error avanzando agenda %d: %v", e.ID, err)
	}
}

// parseScheduleTime: "+N min", "+N hour" o "HH:MM" (si esa hora ya pasó
// hoy, mañana).
func parseScheduleTime(now time.Time, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "+") {
		parts := strings.Fields(raw[1:])
		if len(parts) != 2 {
			return time.Time{}, fmt.Errorf("formato relativo inválido %q (esperaba \"+N min\" o \"+N hour\")", raw)
		}
		n, err := strconv.Atoi(parts[0])
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("cantidad inválida en %q", raw)
		}
		unit := strings.ToLower(parts[1])
		switch {
		case strings.HasPrefix(unit, "min"):
			return now.Add(time.Duration(n) * time.Minute), nil
		case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"), strings.HasPrefix(unit, "hora"):
			return now.Add(time.Duration(n) * time.Hour), nil
		}
		return time.Time{}, fmt.Errorf("unidad inválida en %q", raw)
	}

	hm := strings.Split(raw, ":")
	if len(hm) != 2 {
		return time.Time{}, fmt.Errorf("hora inválida %q (esperaba HH:MM)", raw)
	}
	hour, err1 := strconv.Atoi(hm[0])
	minute, err2 := strconv.Atoi(hm[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("hora inválida %q", raw)
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}

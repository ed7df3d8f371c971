package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jose-valero/guardbot-fleet/internal/app/service"
	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// occupancyDebounce: espera antes de dar por vacío un canal, para no
// disparar el timer por un reinicio de cliente o un cambio de canal rápido.
const occupancyDebounce = 2 * time.Second

// Router atiende los eventos de la sesión de UN bot de la flota. Cada bot
// registra el set completo de comandos; el que recibe el comando es el
// "actor" preferido al asignar.
type Router struct {
	s       *discordgo.Session
	guildID string
	botID   int

	bot    *service.Instance
	coord  *service.Coordinator
	queue  *service.QueueService
	tiers  *service.TierService
	sched  *service.ScheduleService
	backup *service.BackupService
	stats  *service.StatsService
	msgs   *service.MessageService
	radio  *service.RadioLock
	dir    *Adapter

	adminRoleIDs []string
}

type RouterDeps struct {
	Bot      *service.Instance
	Coord    *service.Coordinator
	Queue    *service.QueueService
	Tiers    *service.TierService
	Sched    *service.ScheduleService
	Backup   *service.BackupService
	Stats    *service.StatsService
	Messages *service.MessageService
	Radio    *service.RadioLock
	Dir      *Adapter
}

func NewRouter(s *discordgo.Session, guildID string, botID int, adminRoleIDs []string, d RouterDeps) *Router {
	return &Router{
		s:            s,
		guildID:      guildID,
		botID:        botID,
		bot:          d.Bot,
		coord:        d.Coord,
		queue:        d.Queue,
		tiers:        d.Tiers,
		sched:        d.Sched,
		backup:       d.Backup,
		stats:        d.Stats,
		msgs:         d.Messages,
		radio:        d.Radio,
		dir:          d.Dir,
		adminRoleIDs: adminRoleIDs,
	}
}

func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, cmd := range Commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Handlers() {
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		switch ic.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleSlash(s, ic)
		case discordgo.InteractionMessageComponent:
			r.handleComponent(s, ic)
		}
	})
	r.s.AddHandler(r.onVoiceStateUpdate)
}

func (r *Router) handleSlash(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.ApplicationCommandData()
	log.Printf("bot #%d slash: /%s by=%s guild=%s", r.botID, data.Name, ic.Member.User.ID, ic.GuildID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("bot #%d panic in slash /%s: %v", r.botID, data.Name, rec)
			ReplyEphemeral(s, ic, "⚠️ Ocurrió un error inesperado.")
		}
	}()

	_ = DeferEphemeral(s, ic)
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	switch data.Name {
	case "vigilar":
		r.cmdVigilar(ctx, s, ic)
	case "liberar":
		r.cmdLiberar(ctx, s, ic)
	case "estado":
		ReplyEphemeral(s, ic, r.fleetStatus())
	case "tier":
		r.cmdTier(ctx, s, ic)
	case "tiers":
		ReplyEphemeral(s, ic, tierTableText())
	case "cola":
		r.cmdCola(ctx, s, ic)
	case "agenda":
		r.cmdAgenda(ctx, s, ic)
	case "stats":
		r.cmdStats(ctx, s, ic)
	case "leaderboard":
		r.cmdLeaderboard(ctx, s, ic)
	case "radio":
		r.cmdRadio(ctx, s, ic)
	case "backup":
		r.cmdBackup(ctx, s, ic)
	case "mensajes":
		r.cmdMensajes(ctx, s, ic)
	}
}

// targetChannel: el canal pasado por opción o, si no, el canal de voz
// donde está el usuario.
func (r *Router) targetChannel(s *discordgo.Session, ic *discordgo.InteractionCreate) (string, bool) {
	if id, ok := optChannel(ic, s, "canal"); ok {
		return id, true
	}
	return userVoiceChannel(s, ic.GuildID, ic.Member.User.ID)
}

func (r *Router) cmdVigilar(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	chID, ok := r.targetChannel(s, ic)
	if !ok {
		ReplyEphemeral(s, ic, "🎧 Entra a un canal de voz (o pásame uno con `canal:`) para pedir un guardián.")
		return
	}
	ch, err := r.dir.ResolveChannel(ctx, chID)
	if err != nil {
		ReplyEphemeral(s, ic, "⚠️ No pude leer ese canal: "+err.Error())
		return
	}
	m, err := r.dir.ResolveMember(ctx, ic.GuildID, ic.Member.User.ID)
	if err != nil {
		ReplyEphemeral(s, ic, "⚠️ No pude leer tu perfil: "+err.Error())
		return
	}

	res, err := r.coord.Assign(ctx, r.botID, ch, m)
	if err != nil {
		if errors.Is(err, domain.ErrChannelGuarded) {
			ReplyEphemeral(s, ic, fmt.Sprintf("🛡️ <#%s> ya está vigilado por el **Guardián #%d**.", chID, res.BotID))
			return
		}
		ReplyEphemeral(s, ic, "⚠️ No pude asignar un guardián: "+err.Error())
		return
	}

	switch res.Outcome {
	case service.OutcomeAlreadyAssigned:
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ El **Guardián #%d** ya estaba vigilando <#%s>.", res.BotID, chID))
	case service.OutcomeQueued:
		info, _ := r.queue.Info(ic.Member.User.ID)
		ReplyEphemeral(s, ic, r.msgs.Render("queue_join", map[string]string{
			"position": strconv.Itoa(res.Position),
		})+fmt.Sprintf("\n⏳ Espera estimada: **~%d min**", info.EstimatedMinutes))
	default:
		ReplyEphemeral(s, ic, fmt.Sprintf(
			"✅ **Guardián #%d** asignado a <#%s>.\n📊 Tier: %s · stay de **%d h** (hasta %s una vez vacío)",
			res.BotID, chID, res.Tier.Info().Name, res.StayHours, fmtUntil(res.StayUntil)))
	}
}

func (r *Router) cmdLiberar(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	chID, ok := r.targetChannel(s, ic)
	if !ok {
		ReplyEphemeral(s, ic, "🎧 Entra al canal vigilado (o pásame uno con `canal:`).")
		return
	}
	botID, err := r.coord.Dismiss(ctx, chID, ic.Member.User.ID, r.isAdmin(s, ic))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotGuarded):
			ReplyEphemeral(s, ic, fmt.Sprintf("ℹ️ <#%s> no tiene guardián.", chID))
		case errors.Is(err, domain.ErrNotAuthorized):
			ReplyEphemeral(s, ic, "🔒 Sólo quien pidió el guardián (o un admin) puede liberarlo.")
		default:
			ReplyEphemeral(s, ic, "⚠️ No pude liberar: "+err.Error())
		}
		return
	}
	ReplyEphemeral(s, ic, fmt.Sprintf("👋 **Guardián #%d** liberado de <#%s>.", botID, chID))
}

func (r *Router) fleetStatus() string {
	var b strings.Builder
	b.WriteString("🛡️ **Estado de la flota**\n")
	for _, bot := range r.coord.Bots() {
		st := bot.Status()
		line := fmt.Sprintf("**#%d** · %s", st.ID, st.State)
		if st.MusicCapable {
			line += " 🎵"
		}
		switch st.State {
		case domain.StateGuarding, domain.StateAwaitingConfirmation:
			line += fmt.Sprintf(" · <#%s> · %s · hasta %s", st.ChannelID, st.Tier.Info().Name, fmtUntil(st.StayUntil))
		case domain.StateReconnecting:
			line += fmt.Sprintf(" · <#%s>", st.ChannelID)
		}
		b.WriteString(line + "\n")
	}
	if entries := r.queue.List(); len(entries) > 0 {
		b.WriteString(fmt.Sprintf("\n⏳ **Cola:** %d esperando", len(entries)))
	}
	return b.String()
}

func (r *Router) cmdTier(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	m, err := r.dir.ResolveMember(ctx, ic.GuildID, ic.Member.User.ID)
	if err != nil {
		ReplyEphemeral(s, ic, "⚠️ No pude leer tu perfil: "+err.Error())
		return
	}
	info := r.tiers.Resolve(m).Info()
	ReplyEphemeral(s, ic, fmt.Sprintf("%s\n⏰ Stay: **%d horas**\n%s", info.Name, info.StayHours, info.Description))
}

var tierOrder = []domain.Tier{domain.TierFree, domain.TierLoyalist, domain.TierBooster, domain.TierDonatur}

func tierTableText() string {
	var b strings.Builder
	b.WriteString("📊 **Tiers de guardián**\n")
	for _, t := range tierOrder {
		info := t.Info()
		b.WriteString(fmt.Sprintf("%s — **%d h** de stay\n└ %s\n", info.Name, info.StayHours, info.Requirement))
	}
	return b.String()
}

func (r *Router) cmdCola(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	sub, _ := subcmdName(ic)
	uid := ic.Member.User.ID
	switch sub {
	case "salir":
		if r.queue.Remove(ctx, uid) {
			ReplyEphemeral(s, ic, "✅ Saliste de la cola.")
		} else {
			ReplyEphemeral(s, ic, "ℹ️ No estabas en la cola.")
		}
	default:
		info, ok := r.queue.Info(uid)
		if !ok {
			ReplyEphemeral(s, ic, "ℹ️ No estás en la cola. Pide un guardián con `/vigilar`.")
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf(
			"⏳ Posición **#%d** de %d · espera estimada **~%d min**\n(las entradas expiran a los %d min)",
			info.Position, info.TotalInQueue, info.EstimatedMinutes, int(service.QueueTimeout.Minutes())))
	}
}

func (r *Router) cmdAgenda(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	sub, _ := subcmdName(ic)
	uid := ic.Member.User.ID
	switch sub {
	case "crear":
		chID, _ := optChannel(ic, s, "canal")
		when, _ := optStr(ic, "cuando")
		rec := domain.RecurNone
		if raw, ok := optStr(ic, "repetir"); ok {
			rec = domain.Recurrence(raw)
		}
		e, err := r.sched.Create(ctx, uid, chID, when, rec)
		if err != nil {
			ReplyEphemeral(s, ic, "⚠️ No pude agendar: "+err.Error())
			return
		}
		msg := fmt.Sprintf("📅 Agenda **#%d** creada: guardián en <#%s> %s", e.ID, chID, fmtUntil(e.TriggerAt))
		if rec != domain.RecurNone {
			msg += " · se repite " + recurText(rec)
		}
		ReplyEphemeral(s, ic, msg)
	case "listar":
		entries, err := r.sched.ListForUser(ctx, uid)
		if err != nil {
			ReplyEphemeral(s, ic, "⚠️ No pude listar tus agendas: "+err.Error())
			return
		}
		if len(entries) == 0 {
			ReplyEphemeral(s, ic, "ℹ️ No tienes agendas activas.")
			return
		}
		var b strings.Builder
		b.WriteString("📅 **Tus agendas**\n")
		for _, e := range entries {
			line := fmt.Sprintf("**#%d** · <#%s> · %s", e.ID, e.ChannelID, fmtUntil(e.TriggerAt))
			if e.Recurrence != domain.RecurNone {
				line += " · " + recurText(e.Recurrence)
			}
			b.WriteString(line + "\n")
		}
		ReplyEphemeral(s, ic, b.String())
	case "cancelar":
		id, _ := optInt(ic, "id")
		if err := r.sched.Cancel(ctx, id, uid); err != nil {
			if errors.Is(err, domain.ErrScheduleNotFound) {
				ReplyEphemeral(s, ic, "ℹ️ No encontré esa agenda entre las tuyas.")
			} else {
				ReplyEphemeral(s, ic, "⚠️ No pude cancelar: "+err.Error())
			}
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ Agenda **#%d** cancelada.", id))
	case "editar":
		id, _ := optInt(ic, "id")
		when, _ := optStr(ic, "cuando")
		e, err := r.sched.Reschedule(ctx, id, uid, when)
		if err != nil {
			if errors.Is(err, domain.ErrScheduleNotFound) {
				ReplyEphemeral(s, ic, "ℹ️ No encontré esa agenda entre las tuyas.")
			} else {
				ReplyEphemeral(s, ic, "⚠️ No pude reprogramar: "+err.Error())
			}
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ Agenda **#%d** movida: ahora dispara %s.", e.ID, fmtUntil(e.TriggerAt)))
	}
}

func recurText(rec domain.Recurrence) string {
	switch rec {
	case domain.RecurDaily:
		return "a diario"
	case domain.RecurWeekly:
		return "cada semana"
	}
	return ""
}

func (r *Router) cmdStats(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	st, err := r.stats.User(ctx, ic.Member.User.ID)
	if err != nil {
		ReplyEphemeral(s, ic, "⚠️ No pude leer tus estadísticas: "+err.Error())
		return
	}
	if st.TotalCalls == 0 {
		ReplyEphemeral(s, ic, "ℹ️ Todavía no usaste ningún guardián.")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📈 **Tus estadísticas**\nLlamadas: **%d** · Horas vigiladas: **%.1f**\n", st.TotalCalls, st.TotalHours)
	if len(st.TierUsage) > 0 {
		tiers := make([]domain.Tier, 0, len(st.TierUsage))
		for t := range st.TierUsage {
			tiers = append(tiers, t)
		}
		sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
		for _, t := range tiers {
			fmt.Fprintf(&b, "└ %s: %d\n", t.Info().Name, st.TierUsage[t])
		}
	}
	ReplyEphemeral(s, ic, b.String())
}

func (r *Router) cmdLeaderboard(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	top, err := r.stats.Leaderboard(ctx, 10)
	if err != nil {
		ReplyEphemeral(s, ic, "⚠️ No pude leer el leaderboard: "+err.Error())
		return
	}
	if len(top) == 0 {
		ReplyEphemeral(s, ic, "ℹ️ Todavía no hay datos.")
		return
	}
	var b strings.Builder
	b.WriteString("🏆 **Top horas vigiladas**\n")
	for i, e := range top {
		fmt.Fprintf(&b, "%d) <@%s> — %.1f h (%d llamadas)\n", i+1, e.UserID, e.TotalHours, e.TotalCalls)
	}
	ReplyEphemeral(s, ic, b.String())
}

func (r *Router) cmdRadio(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	sub, _ := subcmdName(ic)
	musicBot := r.musicBot()
	if musicBot == nil {
		ReplyEphemeral(s, ic, "ℹ️ Ningún guardián de la flota tiene música.")
		return
	}
	switch sub {
	case "encender":
		chID, ok := userVoiceChannel(s, ic.GuildID, ic.Member.User.ID)
		if !ok {
			ReplyEphemeral(s, ic, "🎧 Entra a un canal de voz para pedir la radio.")
			return
		}
		if err := r.radio.Acquire(musicBot.ID(), chID); err != nil {
			holder, holderCh, _ := r.radio.Holder()
			ReplyEphemeral(s, ic, fmt.Sprintf("🎵 La radio ya está ocupada por el **Guardián #%d** en <#%s>.", holder, holderCh))
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("🎵 Radio encendida: **Guardián #%d** en <#%s>.", musicBot.ID(), chID))
	case "apagar":
		if r.radio.Release(musicBot.ID()) {
			ReplyEphemeral(s, ic, "🔇 Radio apagada.")
		} else {
			ReplyEphemeral(s, ic, "ℹ️ La radio no estaba encendida.")
		}
	default:
		if holder, chID, ok := r.radio.Holder(); ok {
			ReplyEphemeral(s, ic, fmt.Sprintf("🎵 **Guardián #%d** tiene la radio en <#%s>.", holder, chID))
		} else {
			ReplyEphemeral(s, ic, "🔇 La radio está libre.")
		}
	}
}

func (r *Router) musicBot() *service.Instance {
	for _, b := range r.coord.Bots() {
		if b.MusicCapable() {
			return b
		}
	}
	return nil
}

func (r *Router) cmdBackup(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if !r.requireAdmin(s, ic) {
		return
	}
	sub, _ := subcmdName(ic)
	switch sub {
	case "crear":
		snap, err := r.backup.TakeSnapshot(ctx)
		if err != nil {
			ReplyEphemeral(s, ic, "⚠️ No pude tomar el snapshot: "+err.Error())
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("💾 Snapshot `%s` guardado (%d asignaciones, %d en cola).",
			snap.ID, len(snap.Assignments), len(snap.Queue)))
	case "restaurar":
		var snap domain.Snapshot
		var err error
		if id, ok := optStr(ic, "id"); ok {
			snap, err = r.backup.Restore(ctx, id)
		} else {
			snap, err = r.backup.RestoreLatest(ctx)
		}
		if err != nil {
			ReplyEphemeral(s, ic, "⚠️ No pude restaurar: "+err.Error())
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("♻️ Estado restaurado desde `%s` (tomado %s).", snap.ID, fmtUntil(snap.TakenAt)))
	default:
		count, latest, err := r.backup.Status(ctx)
		if err != nil {
			ReplyEphemeral(s, ic, "⚠️ No pude leer los snapshots: "+err.Error())
			return
		}
		if count == 0 {
			ReplyEphemeral(s, ic, "ℹ️ Todavía no hay snapshots.")
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("💾 **%d** snapshots · último `%s` (%s)", count, latest.ID, fmtUntil(latest.TakenAt)))
	}
}

func (r *Router) cmdMensajes(ctx context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if !r.requireAdmin(s, ic) {
		return
	}
	sub, _ := subcmdName(ic)
	event, _ := optStr(ic, "evento")
	switch sub {
	case "set":
		tmpl, _ := optStr(ic, "plantilla")
		if err := r.msgs.Set(ctx, event, tmpl); err != nil {
			ReplyEphemeral(s, ic, "⚠️ "+err.Error())
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ Plantilla de `%s` actualizada.", event))
	case "reset":
		if err := r.msgs.Reset(ctx, event); err != nil {
			ReplyEphemeral(s, ic, "⚠️ "+err.Error())
			return
		}
		ReplyEphemeral(s, ic, fmt.Sprintf("✅ Plantilla de `%s` vuelta al default.", event))
	}
}

// handleComponent enruta los botones del aviso de vencimiento. El
// custom_id trae el bot dueño del aviso; sólo su instancia acepta la
// respuesta.
func (r *Router) handleComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.MessageComponentData()

	action, botIDRaw, ok := strings.Cut(data.CustomID, ":")
	if !ok {
		return
	}
	botID, err := strconv.Atoi(botIDRaw)
	if err != nil || botID != r.botID {
		// el click es para otro bot de la flota
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("bot #%d panic in component %s: %v", r.botID, data.CustomID, rec)
		}
	}()
	_ = DeferEphemeral(s, ic)

	var cont bool
	switch action {
	case "guard_continue":
		cont = true
	case "guard_stop":
		cont = false
	default:
		return
	}

	if err := r.bot.Confirm(ic.Member.User.ID, cont); err != nil {
		switch {
		case errors.Is(err, domain.ErrNoConfirmation):
			ReplyEphemeral(s, ic, "ℹ️ Ese aviso ya no está activo.")
		case errors.Is(err, domain.ErrNotAuthorized):
			ReplyEphemeral(s, ic, "🔒 Sólo quien pidió el guardián puede responder.")
		default:
			ReplyEphemeral(s, ic, "⚠️ "+err.Error())
		}
		return
	}
	if cont {
		ReplyEphemeral(s, ic, "✅ El guardián se queda **1 hora** más.")
	} else {
		ReplyEphemeral(s, ic, "👋 Listo, el guardián se va.")
	}
}

// onVoiceStateUpdate vigila la ocupación del canal asignado a ESTE bot.
// El vacío se confirma tras un debounce corto: un cliente reiniciando o
// un salto de canal no deben arrancar la cuenta regresiva.
func (r *Router) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.GuildID != r.guildID {
		return
	}
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}

	st := r.bot.Status()
	if st.ChannelID == "" {
		return
	}
	affected := vs.ChannelID == st.ChannelID
	if vs.BeforeUpdate != nil && vs.BeforeUpdate.ChannelID == st.ChannelID {
		affected = true
	}
	if !affected {
		return
	}

	go func(channelID string) {
		n, err := r.dir.HumanCount(channelID)
		if err != nil {
			return
		}
		if n > 0 {
			r.bot.OccupancyRejoined(context.Background(), channelID)
			return
		}
		time.Sleep(occupancyDebounce)
		n, err = r.dir.HumanCount(channelID)
		if err != nil || n > 0 {
			return
		}
		r.bot.OccupancyEmpty(context.Background(), channelID)
	}(st.ChannelID)
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	discordrouter "github.com/jose-valero/guardbot-fleet/internal/adapters/discord"
	"github.com/jose-valero/guardbot-fleet/internal/app/service"
	"github.com/jose-valero/guardbot-fleet/internal/infra/config"
	"github.com/jose-valero/guardbot-fleet/internal/infra/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()
	fleet, err := config.LoadFleet(cfg.FleetFile, service.MaxFleetSize)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stopAll := context.WithCancel(context.Background())
	defer stopAll()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal("migrate:", err)
	}
	log.Println("✅ DB lista y migrada")

	// Repos
	queueRepo := storage.NewQueueRepo(db)
	schedRepo := storage.NewScheduleRepo(db)
	statsRepo := storage.NewStatsRepo(db)
	snapRepo := storage.NewSnapshotRepo(db)
	msgsRepo := storage.NewMessagesRepo(db)

	// Services compartidos de la flota
	clock := service.SystemClock()
	queueSvc := service.NewQueueService(queueRepo, clock)
	statsSvc := service.NewStatsService(statsRepo)
	msgsSvc := service.NewMessageService(msgsRepo)
	tierSvc := service.NewTierService(service.TierRoles{
		DonaturIDs:    fleet.TierRoles.DonaturIDs,
		DonaturNames:  fleet.TierRoles.DonaturNames,
		LoyalistIDs:   fleet.TierRoles.LoyalistIDs,
		LoyalistNames: fleet.TierRoles.LoyalistNames,
	})
	radio := service.NewRadioLock()

	if err := queueSvc.Load(ctx); err != nil {
		log.Printf("⚠️ no pude cargar la cola persistida: %v", err)
	}
	if err := msgsSvc.Load(ctx); err != nil {
		log.Printf("⚠️ no pude cargar las plantillas custom: %v", err)
	}

	// Sesiones: un token inválido se salta, la flota arranca con los que
	// sí abren. El número de bot sigue al índice del token.
	type liveBot struct {
		num     int
		session *discordgo.Session
	}
	var live []liveBot
	for i, tok := range fleet.Tokens {
		num := i + 1
		auth := tok
		if !strings.HasPrefix(strings.ToLower(auth), "bot ") {
			auth = "Bot " + auth
		}
		s, err := discordgo.New(auth)
		if err != nil {
			log.Printf("⚠️ bot #%d: sesión inválida: %v", num, err)
			continue
		}
		s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers
		if err := s.Open(); err != nil {
			log.Printf("⚠️ bot #%d: no pude conectar: %v", num, err)
			continue
		}
		defer s.Close()
		log.Printf("✅ bot #%d conectado como %s (%s)", num, s.State.User.Username, s.State.User.ID)
		live = append(live, liveBot{num: num, session: s})
	}
	if len(live) == 0 {
		log.Fatal("ningún bot pudo conectar")
	}

	// El adapter del primer bot vivo es el directorio/notificador de la
	// flota (resolución de canales y avisos compartidos).
	fleetDir := discordrouter.NewAdapter(live[0].session, cfg.DiscordGuild)
	coord := service.NewCoordinator(queueSvc, tierSvc, fleetDir, fleetDir, msgsSvc, clock)

	for _, lb := range live {
		adapter := discordrouter.NewAdapter(lb.session, cfg.DiscordGuild)
		inst := service.NewInstance(lb.num, lb.num == fleet.MusicBot, fleet.IdleChannelID, service.InstanceDeps{
			Session:  discordrouter.NewVoice(lb.session, cfg.DiscordGuild),
			Dir:      adapter,
			Notifier: adapter,
			Messages: msgsSvc,
			Stats:    statsSvc,
			Clock:    clock,
		})
		coord.RegisterBot(inst)
	}

	schedSvc := service.NewScheduleService(schedRepo, coord, fleetDir, clock)
	backupSvc := service.NewBackupService(coord, queueSvc, statsSvc, snapRepo, clock)

	// Routers: cada bot registra el set completo de comandos en su app.
	for _, lb := range live {
		bot, _ := coord.Bot(lb.num)
		r := discordrouter.NewRouter(lb.session, cfg.DiscordGuild, lb.num, fleet.AdminRoleIDs, discordrouter.RouterDeps{
			Bot:      bot,
			Coord:    coord,
			Queue:    queueSvc,
			Tiers:    tierSvc,
			Sched:    schedSvc,
			Backup:   backupSvc,
			Stats:    statsSvc,
			Messages: msgsSvc,
			Radio:    radio,
			Dir:      discordrouter.NewAdapter(lb.session, cfg.DiscordGuild),
		})
		if err := r.Register(); err != nil {
			log.Fatalf("bot #%d: registrando comandos: %v", lb.num, err)
		}
		r.Handlers()

		bot.SetOnline(ctx)
		go bot.RunWatchdog(ctx)
	}
	log.Printf("✅ flota de %d bots lista en guild %s", len(live), cfg.DiscordGuild)

	// Estado previo: si hay snapshot, reponemos guardias y cola.
	if snap, err := backupSvc.RestoreLatest(ctx); err != nil {
		log.Printf("sin estado previo que restaurar: %v", err)
	} else {
		log.Printf("♻️ estado restaurado desde %s", snap.ID)
	}

	// El líder (menor número vivo) corre agendas y drenaje periódico.
	if leader, ok := coord.LeaderID(); ok {
		log.Printf("📅 bot #%d corre el scheduler", leader)
		go schedSvc.Run(ctx)
	}
	go backupSvc.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-stop
	log.Println("👋 apagando la flota")

	// snapshot final antes de soltar las sesiones
	if _, err := backupSvc.TakeSnapshot(context.Background()); err != nil {
		log.Printf("⚠️ snapshot de apagado falló: %v", err)
	}
	stopAll()
}

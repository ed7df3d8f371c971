package service

import (
	"context"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// Directory resuelve canales/miembros y lee ocupación en vivo.
// Lo implementa internal/adapters/discord.Adapter
type Directory interface {
	ResolveChannel(ctx context.Context, channelID string) (domain.Channel, error)
	ResolveMember(ctx context.Context, guildID, userID string) (domain.Member, error)
	// HumanCount cuenta miembros humanos (no bots) presentes en el canal.
	HumanCount(channelID string) (int, error)
}

// VoiceSession es la conexión de voz de UNA instancia de bot.
// Lo implementa internal/adapters/discord.Voice
type VoiceSession interface {
	Connect(ctx context.Context, channelID string) error
	Disconnect() error
	Connected() bool
	ChannelID() string
}

// Notifier publica texto legible en un canal; fallar no es fatal.
// Prompt adjunta los botones de confirmación (seguir / liberar) del bot.
// Lo implementa internal/adapters/discord.Adapter
type Notifier interface {
	Send(ctx context.Context, channelID, content string) error
	Prompt(ctx context.Context, channelID, content string, botID int) error
}

// Lo implementa internal/infra/storage.QueueRepo
type QueueRepo interface {
	Load(ctx context.Context) ([]domain.QueueEntry, error)
	ReplaceAll(ctx context.Context, entries []domain.QueueEntry) error
}

// Lo implementa internal/infra/storage.ScheduleRepo
type ScheduleRepo interface {
	Insert(ctx context.Context, e domain.ScheduleEntry) (int64, error)
	ListActive(ctx context.Context) ([]domain.ScheduleEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ScheduleEntry, error)
	SetTrigger(ctx context.Context, id int64, t time.Time) error
	Deactivate(ctx context.Context, id int64) error
}

// Lo implementa internal/infra/storage.StatsRepo
type StatsRepo interface {
	RecordCall(ctx context.Context, userID string, botID int, channelID string, tier domain.Tier, hours float64) error
	User(ctx context.Context, userID string) (domain.UserStats, error)
	Bot(ctx context.Context, botID int) (domain.BotStats, error)
	Channel(ctx context.Context, channelID string) (domain.ChannelStats, error)
	Global(ctx context.Context) (domain.GlobalStats, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// Lo implementa internal/infra/storage.SnapshotRepo
type SnapshotRepo interface {
	// Save persiste el snapshot y poda los más viejos que excedan retain.
	Save(ctx context.Context, snap domain.Snapshot, retain int) error
	Latest(ctx context.Context) (domain.Snapshot, error)
	Get(ctx context.Context, id string) (domain.Snapshot, error)
	Count(ctx context.Context) (int, error)
}

// Lo implementa internal/infra/storage.MessagesRepo
type MessagesRepo interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, event, template string) error
	Delete(ctx context.Context, event string) error
}

// Clock existe para que los timers de stay sean deterministas en tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock es el reloj real del proceso.
func SystemClock() Clock { return systemClock{} }

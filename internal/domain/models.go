package domain

import "time"

// BotState es el estado explícito del ciclo de vida de una instancia.
// Reemplaza los flags sueltos (is_idle, warning_sent, campos nullable)
// para que las combinaciones ilegales no sean representables.
type BotState int

const (
	StateOffline BotState = iota
	StateIdle
	StateGuarding
	StateAwaitingConfirmation
	StateReconnecting
)

func (s BotState) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateIdle:
		return "idle"
	case StateGuarding:
		return "guarding"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Channel es la referencia mínima a un canal de voz resuelta por el directorio.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Member es el solicitante con los atributos que usa el resolver de tiers.
type Member struct {
	ID          string
	GuildID     string
	DisplayName string
	Boosting    bool
	RoleIDs     []string
	RoleNames   []string
}

// QueueEntry es una posición en la lista de espera. Position es 1-based y
// se renumera en cada mutación de la cola.
type QueueEntry struct {
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Tier      Tier      `json:"tier"`
	Position  int       `json:"position"`
	JoinedAt  time.Time `json:"joined_at"`
}

type QueueInfo struct {
	Position         int
	TotalInQueue     int
	EstimatedMinutes int
	JoinedAt         time.Time
}

type Recurrence string

const (
	RecurNone   Recurrence = ""
	RecurDaily  Recurrence = "daily"
	RecurWeekly Recurrence = "weekly"
)

// ScheduleEntry es una asignación pre-reservada. Las entradas one-shot se
// desactivan al ejecutarse; las recurrentes avanzan TriggerAt un período.
type ScheduleEntry struct {
	ID         int64
	UserID     string
	ChannelID  string
	TriggerAt  time.Time
	Recurrence Recurrence
	Active     bool
	CreatedAt  time.Time
}

// ChannelTimer es la metadata del timer de un canal asignado, tal como se
// serializa en los snapshots.
type ChannelTimer struct {
	BotID     int       `json:"bot_id"`
	UserID    string    `json:"user_id"`
	Tier      Tier      `json:"tier"`
	StayUntil time.Time `json:"stay_until"`
	StayHours int       `json:"stay_hours"`
}

// Snapshot es el payload de un backup periódico de estado completo.
type Snapshot struct {
	ID          string                  `json:"snapshot_id"`
	TakenAt     time.Time               `json:"taken_at"`
	Assignments map[string]int          `json:"assignments"`
	Timers      map[string]ChannelTimer `json:"timers"`
	Queue       []QueueEntry            `json:"queue"`
	Stats       GlobalStats             `json:"stats"`
}

type UserStats struct {
	TotalCalls int
	TotalHours float64
	TierUsage  map[Tier]int
	LastUsed   *time.Time
}

type BotStats struct {
	TotalCalls      int
	TotalHours      float64
	ChannelsGuarded int
}

type ChannelStats struct {
	TotalGuards int
	TotalHours  float64
}

type GlobalStats struct {
	TotalUsers       int          `json:"total_users"`
	TotalCalls       int          `json:"total_calls"`
	TotalHours       float64      `json:"total_hours"`
	TierDistribution map[Tier]int `json:"tier_distribution"`
	ActiveBots       int          `json:"active_bots"`
}

type LeaderboardEntry struct {
	UserID     string
	TotalCalls int
	TotalHours float64
}

package domain

import "time"

// Tier es el nivel de servicio del usuario que llama al bot.
// Determina cuánto tiempo se queda el bot después de que el canal se vacía.
type Tier string

const (
	TierFree     Tier = "free"
	TierBooster  Tier = "booster"
	TierDonatur  Tier = "donatur"
	TierLoyalist Tier = "loyalist"
)

type TierInfo struct {
	Name        string
	StayHours   int
	Description string
	Requirement string
}

// Tabla fija de tiers. Prioridad de resolución: booster > donatur > loyalist > free.
var TierTable = map[Tier]TierInfo{
	TierFree: {
		Name:        "🆓 Free",
		StayHours:   12,
		Description: "Tier por defecto para todos los usuarios",
		Requirement: "Todos los usuarios lo tienen automáticamente",
	},
	TierBooster: {
		Name:        "🚀 Server Booster",
		StayHours:   36,
		Description: "Para usuarios que boostean el servidor",
		Requirement: "Boostea el servidor de Discord",
	},
	TierDonatur: {
		Name:        "💝 Donador",
		StayHours:   48,
		Description: "Para usuarios con rol de donador",
		Requirement: "Tener el rol de Donador",
	},
	TierLoyalist: {
		Name:        "👑 Server Loyalist",
		StayHours:   24,
		Description: "Para usuarios con rol de loyalist",
		Requirement: "Tener el rol de Server Loyalist",
	},
}

func (t Tier) Info() TierInfo {
	if info, ok := TierTable[t]; ok {
		return info
	}
	return TierTable[TierFree]
}

func (t Tier) StayDuration() time.Duration {
	return time.Duration(t.Info().StayHours) * time.Hour
}

package discord

import "github.com/bwmarrin/discordgo"

var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "vigilar",
		Description: "Pide un guardián para tu canal de voz",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "canal",
			Description:  "Canal a vigilar (por defecto, en el que estás)",
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
		}},
	},
	{
		Name:        "liberar",
		Description: "Despide al guardián de un canal",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "canal",
			Description:  "Canal a liberar (por defecto, en el que estás)",
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
		}},
	},
	{
		Name:        "estado",
		Description: "Estado de toda la flota de guardianes",
	},
	{
		Name:        "tier",
		Description: "Tu tier y cuántas horas de stay te tocan",
	},
	{
		Name:        "tiers",
		Description: "Tabla de tiers y sus beneficios",
	},
	{
		Name:        "cola",
		Description: "Lista de espera de guardianes",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "estado", Description: "Tu posición y espera estimada"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "salir", Description: "Salir de la cola"},
		},
	},
	{
		Name:        "agenda",
		Description: "Pre-reserva un guardián para más tarde",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "crear",
				Description: "Agendar una vigilancia",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         "canal",
						Description:  "Canal de voz a vigilar",
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
						Required:     true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "cuando",
						Description: "\"HH:MM\" o \"+30 min\" / \"+2 hour\"",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "repetir",
						Description: "Repetición",
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "diaria", Value: "daily"},
							{Name: "semanal", Value: "weekly"},
						},
					},
				},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "listar", Description: "Tus agendas activas"},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "editar",
				Description: "Mover una agenda a otro horario",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "id",
						Description: "ID de la agenda (ver /agenda listar)",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "cuando",
						Description: "\"HH:MM\" o \"+30 min\" / \"+2 hour\"",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "cancelar",
				Description: "Cancelar una agenda",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "id",
					Description: "ID de la agenda (ver /agenda listar)",
					Required:    true,
				}},
			},
		},
	},
	{
		Name:        "stats",
		Description: "Tus estadísticas de uso de guardianes",
	},
	{
		Name:        "leaderboard",
		Description: "Top de usuarios por horas vigiladas",
	},
	{
		Name:        "radio",
		Description: "Modo radio (sólo el guardián con música)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "encender", Description: "Tomar el modo radio en tu canal"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "apagar", Description: "Soltar el modo radio"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "estado", Description: "Quién tiene la radio"},
		},
	},
	{
		Name:        "backup",
		Description: "Snapshots de estado de la flota (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "estado", Description: "Cuántos snapshots hay y el último"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "crear", Description: "Tomar un snapshot ahora"},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "restaurar",
				Description: "Restaurar estado desde un snapshot",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "ID del snapshot (por defecto, el último)",
				}},
			},
		},
	},
	{
		Name:        "mensajes",
		Description: "Plantillas de notificación (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Cambiar la plantilla de un evento",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "evento", Description: "join, leave, timer_warning, timer_start, queue_join, queue_ready", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "plantilla", Description: "Texto con variables {bot}, {channel}, etc.", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reset",
				Description: "Volver un evento a su plantilla por defecto",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "evento",
					Description: "Evento a resetear",
					Required:    true,
				}},
			},
		},
	},
}

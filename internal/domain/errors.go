package domain

import "errors"

// Errores tipados que cruzan el borde del módulo hacia la capa de comandos.
// Cada uno tiene una categoría fija; el adapter los traduce a texto.
var (
	ErrChannelGuarded   = errors.New("channel already guarded by another bot")
	ErrAllBusy          = errors.New("all bots busy")
	ErrNotGuarded       = errors.New("channel not guarded")
	ErrNotAuthorized    = errors.New("requester not authorized for this assignment")
	ErrNotInVoice       = errors.New("requester not in a voice channel")
	ErrNoConfirmation   = errors.New("no confirmation pending")
	ErrScheduleNotFound = errors.New("schedule entry not found")
	ErrStaleReference   = errors.New("channel or member no longer resolvable")
	ErrRadioBusy        = errors.New("radio already locked by another bot")
	ErrNotQueued        = errors.New("requester not in queue")
)

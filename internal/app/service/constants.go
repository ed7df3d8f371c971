package service

import "time"

// Constantes de operación de la flota.
const (
	// MaxFleetSize es la cantidad máxima de bots guardianes.
	MaxFleetSize = 5

	// QueueTimeout: una entrada de la cola expira pasados 5 minutos.
	QueueTimeout = 5 * time.Minute

	// EstimatedWaitPerSlot: estimación mostrada al usuario por posición delante.
	EstimatedWaitPerSlot = 15 * time.Minute

	// WarningLead: el aviso se manda 5 minutos antes de que venza el stay.
	WarningLead = 5 * time.Minute

	// ConfirmWindow: ventana para responder el aviso.
	ConfirmWindow = 5 * time.Minute

	// StayExtension: prórroga al elegir (o asumir) "continuar".
	StayExtension = time.Hour

	// ReconnectPoll / MaxReconnectTries: watchdog de reconexión acotado.
	ReconnectPoll     = 10 * time.Second
	MaxReconnectTries = 3

	// SchedulePoll: intervalo del chequeo de agendas en el bot líder.
	SchedulePoll = time.Minute

	// BackupInterval / BackupRetention: snapshots periódicos de estado.
	BackupInterval  = 5 * time.Minute
	BackupRetention = 10
)

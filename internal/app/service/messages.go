package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Plantillas por defecto de las notificaciones. Las variables van entre
// llaves y se sustituyen en Render.
var defaultMessages = map[string]string{
	"join":          "🛡️ **Guardián {bot}** ahora vigila {channel}!\n📊 **Tier:** {tier}\n⏰ **Stay:** {duration} horas después de que salgas de voz",
	"leave":         "👋 **Guardián {bot}** se fue de {channel}!",
	"timer_warning": "⏰ **Guardián {bot}** se desconecta en {time} minutos! ¿Sigo? Responde con los botones o se extiende solo.",
	"timer_start":   "🔔 **Guardián {bot}** se queda **{hours} horas** más porque el canal quedó vacío.",
	"queue_join":    "🎯 Entraste a la cola en posición **#{position}**!\nUn guardián se asigna solo cuando haya uno libre.",
	"queue_ready":   "🎉 ¡Te toca! **Guardián {bot}** quedó libre y entra a {channel}.",
}

// MessageService renderiza los textos de notificación, con overrides
// persistidos por evento.
type MessageService struct {
	mu   sync.Mutex
	repo MessagesRepo
	msgs map[string]string
}

func NewMessageService(repo MessagesRepo) *MessageService {
	m := make(map[string]string, len(defaultMessages))
	for k, v := range defaultMessages {
		m[k] = v
	}
	return &MessageService{repo: repo, msgs: m}
}

// Load mezcla los overrides guardados sobre los defaults.
func (s *MessageService) Load(ctx context.Context) error {
	custom, err := s.repo.All(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for k, v := range custom {
		if _, ok := defaultMessages[k]; ok {
			s.msgs[k] = v
		}
	}
	s.mu.Unlock()
	return nil
}

// Render sustituye {var} por su valor. Variables que no vienen quedan
// como están en la plantilla.
func (s *MessageService) Render(event string, vars map[string]string) string {
	s.mu.Lock()
	tmpl, ok := s.msgs[event]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Set guarda un override para un evento conocido.
func (s *MessageService) Set(ctx context.Context, event, template string) error {
	if _, ok := defaultMessages[event]; !ok {
		return fmt.Errorf("evento de mensaje desconocido: %q", event)
	}
	if err := s.repo.Set(ctx, event, template); err != nil {
		return err
	}
	s.mu.Lock()
	s.msgs[event] = template
	s.mu.Unlock()
	return nil
}

// Reset vuelve un evento a su plantilla por defecto.
func (s *MessageService) Reset(ctx context.Context, event string) error {
	def, ok := defaultMessages[event]
	if !ok {
		return fmt.Errorf("evento de mensaje desconocido: %q", event)
	}
	if err := s.repo.Delete(ctx, event); err != nil {
		return err
	}
	s.mu.Lock()
	s.msgs[event] = def
	s.mu.Unlock()
	return nil
}

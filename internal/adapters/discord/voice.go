package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Voice es la conexión de voz de una instancia. El bot entra siempre
// ensordecido: vigila presencia, no escucha audio.
type Voice struct {
	s       *discordgo.Session
	guildID string

	mu   sync.Mutex
	conn *discordgo.VoiceConnection
}

func NewVoice(s *discordgo.Session, guildID string) *Voice {
	return &Voice{s: s, guildID: guildID}
}

func (v *Voice) Connect(ctx context.Context, channelID string) error {
	conn, err := v.s.ChannelVoiceJoin(v.guildID, channelID, false, true)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()
	return nil
}

func (v *Voice) Disconnect() error {
	v.mu.Lock()
	conn := v.conn
	v.conn = nil
	v.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Disconnect()
}

func (v *Voice) Connected() bool {
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn == nil {
		return false
	}
	conn.RLock()
	defer conn.RUnlock()
	return conn.Ready
}

func (v *Voice) ChannelID() string {
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn == nil {
		return ""
	}
	conn.RLock()
	defer conn.RUnlock()
	return conn.ChannelID
}

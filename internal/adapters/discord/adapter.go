package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// Adapter expone el directorio del guild (canales, miembros, ocupación)
// y el envío de notificaciones sobre UNA sesión de discordgo. Todas las
// lecturas van primero al state cache y caen a la API si no está.
type Adapter struct {
	s       *discordgo.Session
	guildID string
}

func NewAdapter(s *discordgo.Session, guildID string) *Adapter {
	return &Adapter{s: s, guildID: guildID}
}

func (a *Adapter) ResolveChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	ch, err := a.safeGetChannel(channelID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("canal %s: %w", channelID, err)
	}
	if ch.Type != discordgo.ChannelTypeGuildVoice && ch.Type != discordgo.ChannelTypeGuildStageVoice {
		return domain.Channel{}, fmt.Errorf("canal %s no es de voz", channelID)
	}
	return domain.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

func (a *Adapter) ResolveMember(ctx context.Context, guildID, userID string) (domain.Member, error) {
	m, err := a.safeGetMember(guildID, userID)
	if err != nil {
		return domain.Member{}, fmt.Errorf("miembro %s: %w", userID, err)
	}
	out := domain.Member{
		ID:          userID,
		GuildID:     guildID,
		DisplayName: m.DisplayName(),
		Boosting:    m.PremiumSince != nil,
		RoleIDs:     m.Roles,
	}
	// nombres de rol para el matching por nombre del tier config
	if roles, err := a.s.GuildRoles(guildID); err == nil {
		byID := make(map[string]string, len(roles))
		for _, r := range roles {
			byID[r.ID] = r.Name
		}
		for _, rid := range m.Roles {
			if name, ok := byID[rid]; ok {
				out.RoleNames = append(out.RoleNames, name)
			}
		}
	}
	return out, nil
}

// HumanCount cuenta los miembros no-bot presentes en el canal de voz.
func (a *Adapter) HumanCount(channelID string) (int, error) {
	g, err := a.s.State.Guild(a.guildID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		m, err := a.safeGetMember(a.guildID, vs.UserID)
		if err != nil {
			continue
		}
		if m.User != nil && m.User.Bot {
			continue
		}
		n++
	}
	return n, nil
}

func (a *Adapter) Send(ctx context.Context, channelID, content string) error {
	_, err := a.s.ChannelMessageSend(channelID, content)
	return err
}

// Prompt manda el aviso de vencimiento con los botones de respuesta. El
// custom_id lleva el número de bot para enrutar el click a su instancia.
func (a *Adapter) Prompt(ctx context.Context, channelID, content string, botID int) error {
	_, err := a.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Seguir 1h más",
						Style:    discordgo.SuccessButton,
						CustomID: fmt.Sprintf("guard_continue:%d", botID),
					},
					discordgo.Button{
						Label:    "Liberar ya",
						Style:    discordgo.DangerButton,
						CustomID: fmt.Sprintf("guard_stop:%d", botID),
					},
				},
			},
		},
	})
	return err
}

func (a *Adapter) safeGetChannel(id string) (*discordgo.Channel, error) {
	if ch, err := a.s.State.Channel(id); err == nil && ch != nil {
		return ch, nil
	}
	ch, err := a.s.Channel(id)
	if err != nil {
		return nil, err
	}
	_ = a.s.State.ChannelAdd(ch)
	return ch, nil
}

func (a *Adapter) safeGetMember(guildID, userID string) (*discordgo.Member, error) {
	if m, err := a.s.State.Member(guildID, userID); err == nil && m != nil {
		return m, nil
	}
	m, err := a.s.GuildMember(guildID, userID)
	if err != nil {
		return nil, err
	}
	if err := a.s.State.MemberAdd(m); err != nil {
		log.Printf("discord: cache de miembro %s falló: %v", userID, err)
	}
	return m, nil
}

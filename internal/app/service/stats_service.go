package service

import (
	"context"
	"log"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// StatsService registra el uso por usuario/bot/canal/tier. El registro es
// best-effort: un fallo del repo se loguea y no corta el ciclo del bot.
type StatsService struct {
	repo StatsRepo
}

func NewStatsService(repo StatsRepo) *StatsService {
	return &StatsService{repo: repo}
}

func (s *StatsService) RecordCall(ctx context.Context, userID string, botID int, channelID string, tier domain.Tier, hours float64) {
	if hours < 0 {
		hours = 0
	}
	if err := s.repo.RecordCall(ctx, userID, botID, channelID, tier, hours); err != nil {
		log.Printf("stats: error registrando llamada user=%s bot=%d: %v", userID, botID, err)
	}
}

func (s *StatsService) User(ctx context.Context, userID string) (domain.UserStats, error) {
	return s.repo.User(ctx, userID)
}

func (s *StatsService) Bot(ctx context.Context, botID int) (domain.BotStats, error) {
	return s.repo.Bot(ctx, botID)
}

func (s *StatsService) Channel(ctx context.Context, channelID string) (domain.ChannelStats, error) {
	return s.repo.Channel(ctx, channelID)
}

func (s *StatsService) Global(ctx context.Context) (domain.GlobalStats, error) {
	return s.repo.Global(ctx)
}

func (s *StatsService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.repo.Leaderboard(ctx, limit)
}

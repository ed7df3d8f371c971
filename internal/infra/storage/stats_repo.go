package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

type StatsRepo struct{ db *sql.DB }

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// RecordCall acumula la llamada en las tres tablas en una transacción:
// o queda contada entera o no queda contada.
func (r *StatsRepo) RecordCall(ctx context.Context, userID string, botID int, channelID string, tier domain.Tier, hours float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bump, err := json.Marshal(map[domain.Tier]int{tier: 1})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO stats_users (user_id, total_calls, total_hours, tier_usage, last_used_at)
VALUES ($1, 1, $2, $3, now())
ON CONFLICT (user_id) DO UPDATE SET
  total_calls  = stats_users.total_calls + 1,
  total_hours  = stats_users.total_hours + EXCLUDED.total_hours,
  tier_usage   = stats_users.tier_usage ||
                 jsonb_build_object($4::text, COALESCE((stats_users.tier_usage->>$4)::int, 0) + 1),
  last_used_at = now()
`, userID, hours, bump, string(tier)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO stats_bots (bot_id, total_calls, total_hours, channels_guarded)
VALUES ($1, 1, $2, $3)
ON CONFLICT (bot_id) DO UPDATE SET
  total_calls      = stats_bots.total_calls + 1,
  total_hours      = stats_bots.total_hours + EXCLUDED.total_hours,
  channels_guarded = CASE
    WHEN $4 = ANY (stats_bots.channels_guarded) THEN stats_bots.channels_guarded
    ELSE array_append(stats_bots.channels_guarded, $4)
  END
`, botID, hours, pq.Array([]string{channelID}), channelID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO stats_channels (channel_id, total_guards, total_hours)
VALUES ($1, 1, $2)
ON CONFLICT (channel_id) DO UPDATE SET
  total_guards = stats_channels.total_guards + 1,
  total_hours  = stats_channels.total_hours + EXCLUDED.total_hours
`, channelID, hours); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *StatsRepo) User(ctx context.Context, userID string) (domain.UserStats, error) {
	var st domain.UserStats
	var usage []byte
	err := r.db.QueryRowContext(ctx, `
SELECT total_calls, total_hours, tier_usage, last_used_at
  FROM stats_users
 WHERE user_id = $1
`, userID).Scan(&st.TotalCalls, &st.TotalHours, &usage, &st.LastUsed)
	if err == sql.ErrNoRows {
		return domain.UserStats{TierUsage: map[domain.Tier]int{}}, nil
	}
	if err != nil {
		return domain.UserStats{}, err
	}
	st.TierUsage = map[domain.Tier]int{}
	if err := json.Unmarshal(usage, &st.TierUsage); err != nil {
		return domain.UserStats{}, err
	}
	return st, nil
}

func (r *StatsRepo) Bot(ctx context.Context, botID int) (domain.BotStats, error) {
	var st domain.BotStats
	var channels pq.StringArray
	err := r.db.QueryRowContext(ctx, `
SELECT total_calls, total_hours, channels_guarded
  FROM stats_bots
 WHERE bot_id = $1
`, botID).Scan(&st.TotalCalls, &st.TotalHours, &channels)
	if err == sql.ErrNoRows {
		return domain.BotStats{}, nil
	}
	if err != nil {
		return domain.BotStats{}, err
	}
	st.ChannelsGuarded = len(channels)
	return st, nil
}

func (r *StatsRepo) Channel(ctx context.Context, channelID string) (domain.ChannelStats, error) {
	var st domain.ChannelStats
	err := r.db.QueryRowContext(ctx, `
SELECT total_guards, total_hours
  FROM stats_channels
 WHERE channel_id = $1
`, channelID).Scan(&st.TotalGuards, &st.TotalHours)
	if err == sql.ErrNoRows {
		return domain.ChannelStats{}, nil
	}
	return st, err
}

func (r *StatsRepo) Global(ctx context.Context) (domain.GlobalStats, error) {
	var st domain.GlobalStats
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(total_calls), 0), COALESCE(SUM(total_hours), 0)
  FROM stats_users
`).Scan(&st.TotalUsers, &st.TotalCalls, &st.TotalHours)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stats_bots`).Scan(&st.ActiveBots); err != nil {
		return domain.GlobalStats{}, err
	}

	st.TierDistribution = map[domain.Tier]int{}
	rows, err := r.db.QueryContext(ctx, `
SELECT kv.key, SUM(kv.value::int)
  FROM stats_users, jsonb_each_text(tier_usage) AS kv
 GROUP BY kv.key
`)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return domain.GlobalStats{}, err
		}
		st.TierDistribution[domain.Tier(tier)] = n
	}
	return st, rows.Err()
}

func (r *StatsRepo) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT user_id, total_calls, total_hours
  FROM stats_users
 ORDER BY total_hours DESC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TotalCalls, &e.TotalHours); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

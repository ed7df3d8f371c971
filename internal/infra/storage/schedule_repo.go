package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

type ScheduleRepo struct{ db *sql.DB }

func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

func (r *ScheduleRepo) Insert(ctx context.Context, e domain.ScheduleEntry) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO schedule_entries (user_id, channel_id, trigger_at, recurrence, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id
`, e.UserID, e.ChannelID, e.TriggerAt, string(e.Recurrence), e.Active, e.CreatedAt).Scan(&id)
	return id, err
}

func (r *ScheduleRepo) ListActive(ctx context.Context) ([]domain.ScheduleEntry, error) {
	return r.list(ctx, `
SELECT id, user_id, channel_id, trigger_at, recurrence, active, created_at
  FROM schedule_entries
 WHERE active = TRUE
 ORDER BY trigger_at ASC
`)
}

func (r *ScheduleRepo) ListByUser(ctx context.Context, userID string) ([]domain.ScheduleEntry, error) {
	return r.list(ctx, `
SELECT id, user_id, channel_id, trigger_at, recurrence, active, created_at
  FROM schedule_entries
 WHERE active = TRUE AND user_id = $1
 ORDER BY trigger_at ASC
`, userID)
}

func (r *ScheduleRepo) list(ctx context.Context, query string, args ...any) ([]domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ScheduleEntry
	for rows.Next() {
		var e domain.ScheduleEntry
		var rec string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ChannelID, &e.TriggerAt, &rec, &e.Active, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Recurrence = domain.Recurrence(rec)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ScheduleRepo) SetTrigger(ctx context.Context, id int64, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE schedule_entries SET trigger_at = $2 WHERE id = $1
`, id, t)
	return err
}

func (r *ScheduleRepo) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE schedule_entries SET active = FALSE WHERE id = $1
`, id)
	return err
}

package storage

import (
	"context"
	"database/sql"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

type QueueRepo struct{ db *sql.DB }

func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

func (r *QueueRepo) Load(ctx context.Context) ([]domain.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT user_id, channel_id, tier, position, joined_at
  FROM queue_entries
 ORDER BY position ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.Scan(&e.UserID, &e.ChannelID, &e.Tier, &e.Position, &e.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceAll pisa la cola entera en una transacción: la tabla siempre
// refleja el último estado en memoria, sin deltas.
func (r *QueueRepo) ReplaceAll(ctx context.Context, entries []domain.QueueEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries`); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO queue_entries (user_id, channel_id, tier, position, joined_at)
VALUES ($1,$2,$3,$4,$5)
`, e.UserID, e.ChannelID, e.Tier, e.Position, e.JoinedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

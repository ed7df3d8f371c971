package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

type SnapshotRepo struct{ db *sql.DB }

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// Save persiste el snapshot y poda los más viejos que excedan retain.
func (r *SnapshotRepo) Save(ctx context.Context, snap domain.Snapshot, retain int) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO snapshots (snapshot_id, taken_at, payload)
VALUES ($1,$2,$3)
ON CONFLICT (snapshot_id) DO UPDATE SET taken_at = EXCLUDED.taken_at, payload = EXCLUDED.payload
`, snap.ID, snap.TakenAt, payload); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM snapshots
 WHERE snapshot_id NOT IN (
   SELECT snapshot_id FROM snapshots ORDER BY taken_at DESC LIMIT $1
 )
`, retain); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SnapshotRepo) Latest(ctx context.Context) (domain.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
SELECT payload FROM snapshots ORDER BY taken_at DESC LIMIT 1
`).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Snapshot{}, fmt.Errorf("no hay snapshots")
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	return unmarshalSnapshot(payload)
}

func (r *SnapshotRepo) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
SELECT payload FROM snapshots WHERE snapshot_id = $1
`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Snapshot{}, fmt.Errorf("snapshot %s no existe", id)
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	return unmarshalSnapshot(payload)
}

func (r *SnapshotRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

func unmarshalSnapshot(payload []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot corrupto: %w", err)
	}
	return snap, nil
}

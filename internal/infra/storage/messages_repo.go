package storage

import (
	"context"
	"database/sql"
)

type MessagesRepo struct{ db *sql.DB }

func NewMessagesRepo(db *sql.DB) *MessagesRepo { return &MessagesRepo{db: db} }

func (r *MessagesRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT event, template FROM custom_messages`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var event, tmpl string
		if err := rows.Scan(&event, &tmpl); err != nil {
			return nil, err
		}
		out[event] = tmpl
	}
	return out, rows.Err()
}

func (r *MessagesRepo) Set(ctx context.Context, event, template string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO custom_messages (event, template)
VALUES ($1,$2)
ON CONFLICT (event) DO UPDATE SET template = EXCLUDED.template, updated_at = now()
`, event, template)
	return err
}

func (r *MessagesRepo) Delete(ctx context.Context, event string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM custom_messages WHERE event = $1`, event)
	return err
}

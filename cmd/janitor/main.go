package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Limpieza fuera de banda: entradas de cola vencidas (el proceso las
// purga solo, esto cubre colas huérfanas tras un crash) y snapshots por
// encima de la retención.
func handler(ctx context.Context) (string, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "no DATABASE_URL", nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Sprintf("parse: %v", err), nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("pool: %v", err), nil
	}
	defer pool.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _ = pool.Exec(cctx, `DELETE FROM queue_entries WHERE joined_at < now() - INTERVAL '5 minutes';`)
	_, _ = pool.Exec(cctx, `
DELETE FROM snapshots
WHERE snapshot_id NOT IN (
  SELECT snapshot_id FROM snapshots ORDER BY taken_at DESC LIMIT 10
);`)
	_, _ = pool.Exec(cctx, `DELETE FROM schedule_entries WHERE active = FALSE AND created_at < now() - INTERVAL '30 days';`)

	return "ok", nil
}

func main() { lambda.Start(handler) }

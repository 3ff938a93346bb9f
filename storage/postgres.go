package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xHamad/polymarket-copy-bot/models"
)

// PostgresStore wraps PostgreSQL persistence for the copy-trade journal,
// for deployments where the journal outlives a single host.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL journal from a connection URL.
func NewPostgres(ctx context.Context, connURL string) (*PostgresStore, error) {
	if connURL == "" {
		return nil, fmt.Errorf("postgres: connection url is empty")
	}

	config, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	// Journal writes are low-frequency; a small pool is plenty.
	config.MaxConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// Close releases database connections.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// SaveCopyTrade appends one journal record, ignoring duplicates by target
// trade id.
func (s *PostgresStore) SaveCopyTrade(ctx context.Context, rec models.CopyRecord) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO copy_trades (
            id, target_trade_id, target_wallet, token_id, outcome, title,
            side, action, status, reason, price, size,
            realized_pnl, realized_pnl_pct, order_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (target_trade_id) DO NOTHING
    `,
		rec.ID,
		rec.TargetTradeID,
		rec.TargetWallet,
		rec.TokenID,
		rec.Outcome,
		rec.Title,
		rec.Side,
		rec.Action,
		rec.Status,
		rec.Reason,
		rec.Price,
		rec.Size,
		rec.RealizedPnL,
		rec.RealizedPnLPct,
		rec.OrderID,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: save copy trade: %w", err)
	}
	return nil
}

// ListCopyTrades returns the most recent journal records, newest first.
func (s *PostgresStore) ListCopyTrades(ctx context.Context, limit int) ([]models.CopyRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
        SELECT id, target_trade_id, target_wallet, token_id, outcome, title,
               side, action, status, reason, price, size,
               realized_pnl, realized_pnl_pct, order_id, created_at
        FROM copy_trades
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CopyRecord
	for rows.Next() {
		var rec models.CopyRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TargetTradeID,
			&rec.TargetWallet,
			&rec.TokenID,
			&rec.Outcome,
			&rec.Title,
			&rec.Side,
			&rec.Action,
			&rec.Status,
			&rec.Reason,
			&rec.Price,
			&rec.Size,
			&rec.RealizedPnL,
			&rec.RealizedPnLPct,
			&rec.OrderID,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// CopyTradeStats aggregates the journal for the status API.
func (s *PostgresStore) CopyTradeStats(ctx context.Context) (models.CopyStats, error) {
	var stats models.CopyStats
	row := s.pool.QueryRow(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = $1),
               COUNT(*) FILTER (WHERE status = $2),
               COUNT(*) FILTER (WHERE status = $3),
               COALESCE(SUM(realized_pnl) FILTER (WHERE status = $1), 0),
               COALESCE(SUM(size * price) FILTER (WHERE status = $1), 0)
        FROM copy_trades`,
		models.CopyStatusExecuted,
		models.CopyStatusSkipped,
		models.CopyStatusFailed,
	)
	if err := row.Scan(&stats.Total, &stats.Executed, &stats.Skipped, &stats.Failed, &stats.TotalPnL, &stats.TotalVolume); err != nil {
		return models.CopyStats{}, err
	}
	return stats, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	const schema = `
    CREATE TABLE IF NOT EXISTS copy_trades (
        id TEXT PRIMARY KEY,
        target_trade_id TEXT NOT NULL UNIQUE,
        target_wallet TEXT,
        token_id TEXT,
        outcome TEXT,
        title TEXT,
        side TEXT,
        action TEXT,
        status TEXT NOT NULL,
        reason TEXT,
        price DOUBLE PRECISION,
        size DOUBLE PRECISION,
        realized_pnl DOUBLE PRECISION,
        realized_pnl_pct DOUBLE PRECISION,
        order_id TEXT,
        created_at TIMESTAMPTZ
    );
    CREATE INDEX IF NOT EXISTS idx_copy_trades_created ON copy_trades(created_at DESC);
    CREATE INDEX IF NOT EXISTS idx_copy_trades_status ON copy_trades(status);
    `

	_, err := s.pool.Exec(ctx, schema)
	return err
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0xHamad/polymarket-copy-bot/models"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite persistence for the copy-trade journal.
type Store struct {
	db *sql.DB
}

// New opens (and creates if needed) the SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("storage: db path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", filepath.Dir(dbPath), err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	store := &Store{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveCopyTrade appends one journal record. The target trade id is unique:
// a trade copied once is never journaled twice.
func (s *Store) SaveCopyTrade(ctx context.Context, rec models.CopyRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO copy_trades (
            id, target_trade_id, target_wallet, token_id, outcome, title,
            side, action, status, reason, price, size,
            realized_pnl, realized_pnl_pct, order_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(target_trade_id) DO NOTHING
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
		timeString(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: save copy trade: %w", err)
	}
	return nil
}

// ListCopyTrades returns the most recent journal records, newest first.
func (s *Store) ListCopyTrades(ctx context.Context, limit int) ([]models.CopyRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, target_trade_id, target_wallet, token_id, outcome, title,
               side, action, status, reason, price, size,
               realized_pnl, realized_pnl_pct, order_id, created_at
        FROM copy_trades
        ORDER BY datetime(created_at) DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CopyRecord
	for rows.Next() {
		var rec models.CopyRecord
		var reason, orderID, createdAt sql.NullString
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
			&reason,
			&rec.Price,
			&rec.Size,
			&rec.RealizedPnL,
			&rec.RealizedPnLPct,
			&orderID,
			&createdAt,
		); err != nil {
			return nil, err
		}
		rec.Reason = reason.String
		rec.OrderID = orderID.String
		if createdAt.Valid {
			if parsed, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				rec.CreatedAt = parsed
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// CopyTradeStats aggregates the journal for the status API.
func (s *Store) CopyTradeStats(ctx context.Context) (models.CopyStats, error) {
	var stats models.CopyStats
	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = ? THEN realized_pnl ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status = ? THEN size * price ELSE 0 END), 0)
        FROM copy_trades`,
		models.CopyStatusExecuted,
		models.CopyStatusSkipped,
		models.CopyStatusFailed,
		models.CopyStatusExecuted,
		models.CopyStatusExecuted,
	)
	if err := row.Scan(&stats.Total, &stats.Executed, &stats.Skipped, &stats.Failed, &stats.TotalPnL, &stats.TotalVolume); err != nil {
		return models.CopyStats{}, err
	}
	return stats, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
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
        price REAL,
        size REAL,
        realized_pnl REAL,
        realized_pnl_pct REAL,
        order_id TEXT,
        created_at TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_copy_trades_created ON copy_trades(datetime(created_at) DESC);
    CREATE INDEX IF NOT EXISTS idx_copy_trades_status ON copy_trades(status);
    `

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func timeString(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

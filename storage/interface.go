package storage

import (
	"context"

	"github.com/0xHamad/polymarket-copy-bot/models"
)

// Journal is the persistence boundary for copy-trade records. Two backends
// exist: SQLite for single-node setups and Postgres for shared ones.
type Journal interface {
	Close() error

	SaveCopyTrade(ctx context.Context, rec models.CopyRecord) error
	ListCopyTrades(ctx context.Context, limit int) ([]models.CopyRecord, error)
	CopyTradeStats(ctx context.Context) (models.CopyStats, error)
}

// Ensure both implementations satisfy the interface
var _ Journal = (*Store)(nil)
var _ Journal = (*PostgresStore)(nil)

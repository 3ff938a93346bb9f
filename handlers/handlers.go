package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xHamad/polymarket-copy-bot/config"
	"github.com/0xHamad/polymarket-copy-bot/storage"
	"github.com/0xHamad/polymarket-copy-bot/syncer"
)

// Handler serves the status API.
type Handler struct {
	cfg     *config.Config
	trader  *syncer.CopyTrader
	journal storage.Journal
	metrics *syncer.MetricsStore
	started time.Time
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, trader *syncer.CopyTrader, journal storage.Journal, metrics *syncer.MetricsStore) *Handler {
	return &Handler{
		cfg:     cfg,
		trader:  trader,
		journal: journal,
		metrics: metrics,
		started: time.Now(),
	}
}

// GetStatus returns bot health, counters, and the cached balance.
func (h *Handler) GetStatus(c *gin.Context) {
	attempted, succeeded, skipped, failed := h.trader.Stats()
	balance, balanceAt := h.trader.LastBalance()

	c.JSON(http.StatusOK, gin.H{
		"target_wallet":  h.cfg.Copy.TargetWallet,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"balance":        balance,
		"balance_as_of":  balanceAt,
		"trades": gin.H{
			"attempted": attempted,
			"succeeded": succeeded,
			"skipped":   skipped,
			"failed":    failed,
		},
	})
}

// GetPositions returns the current position ledger.
func (h *Handler) GetPositions(c *gin.Context) {
	positions := h.trader.Ledger().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetTrades returns the most recent copy-trade journal entries.
func (h *Handler) GetTrades(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	records, err := h.journal.ListCopyTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}

	stats, err := h.journal.CopyTradeStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trade stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": records,
		"count":  len(records),
		"stats":  stats,
	})
}

// GetMetrics returns the last persisted engine counters.
func (h *Handler) GetMetrics(c *gin.Context) {
	metrics, err := h.metrics.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metrics"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

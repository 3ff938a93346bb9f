package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const metricsKey = "copybot:metrics"

// EngineMetrics is the snapshot of engine counters stored in Redis.
type EngineMetrics struct {
	TradesDetected int64     `json:"trades_detected"`
	TradesCopied   int64     `json:"trades_copied"`
	TradesSkipped  int64     `json:"trades_skipped"`
	TradesFailed   int64     `json:"trades_failed"`
	LastCopyTime   time.Time `json:"last_copy_time"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MetricsStore persists engine metrics in Redis. A nil store is valid and
// turns every method into a no-op, for setups without Redis.
type MetricsStore struct {
	redis *redis.Client
}

// NewMetricsStore creates a metrics store over an existing Redis client.
func NewMetricsStore(redisClient *redis.Client) *MetricsStore {
	return &MetricsStore{redis: redisClient}
}

// Save stores the metrics snapshot with a 24h TTL.
func (m *MetricsStore) Save(ctx context.Context, metrics EngineMetrics) error {
	if m == nil || m.redis == nil {
		return nil
	}

	metrics.UpdatedAt = time.Now()
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}

	return m.redis.Set(ctx, metricsKey, data, 24*time.Hour).Err()
}

// Load retrieves the last stored metrics snapshot.
func (m *MetricsStore) Load(ctx context.Context) (*EngineMetrics, error) {
	if m == nil || m.redis == nil {
		return &EngineMetrics{}, nil
	}

	data, err := m.redis.Get(ctx, metricsKey).Result()
	if err == redis.Nil {
		return &EngineMetrics{}, nil
	}
	if err != nil {
		return nil, err
	}

	var metrics EngineMetrics
	if err := json.Unmarshal([]byte(data), &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

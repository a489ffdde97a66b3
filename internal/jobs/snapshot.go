package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CypherFeed/internal/domain/models"
	icache "CypherFeed/internal/service/cache"
	"CypherFeed/pkg/logger"
	"CypherFeed/pkg/queue"
)

// SnapshotKey is the cache key holding the most recent portfolio snapshot.
const SnapshotKey = "portfolio:last"

// SnapshotMessageType routes portfolio snapshots through the queue.
const SnapshotMessageType = "portfolio_snapshot"

// SnapshotJob persists portfolio snapshots published on the queue so the
// last known state survives a restart of the dashboard process.
type SnapshotJob struct {
	cache icache.BytesCache
	l     *logger.Logger
}

func NewSnapshotJob(cache icache.BytesCache, l *logger.Logger) *SnapshotJob {
	return &SnapshotJob{cache: cache, l: l}
}

func (j *SnapshotJob) Name() string { return "portfolio-snapshot" }

func (j *SnapshotJob) Type() string { return SnapshotMessageType }

func (j *SnapshotJob) Handle(ctx context.Context, payload interface{}) error {
	snap, err := queue.ParsePayload[models.PortfolioSnapshot](payload)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := j.cache.SetBytes(SnapshotKey, b, 24*time.Hour); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	j.l.Debug("portfolio snapshot persisted", logger.Int("bytes", len(b)))
	return nil
}

package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

const defaultStatsCacheTTL = 30 * time.Second

// StatsCacheRepository persists raw statistics per organization.
type StatsCacheRepository interface {
	Load(ctx context.Context, orgID string) (*models.ApprovalStatistics, error)
	Store(ctx context.Context, orgID string, stats *models.ApprovalStatistics, ttl time.Duration) error
	Evict(ctx context.Context, orgIDs ...string) error
}

// StatsCache fronts the statistics query with a short-lived cache. Cache
// failures degrade to misses; they never fail the request.
type StatsCache struct {
	repo    StatsCacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewStatsCache constructs a StatsCache.
func NewStatsCache(repo StatsCacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *StatsCache {
	if ttl <= 0 {
		ttl = defaultStatsCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *StatsCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Lookup returns cached statistics for orgID and whether the cache was hit.
func (c *StatsCache) Lookup(ctx context.Context, orgID string) (*models.ApprovalStatistics, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	stats, err := c.repo.Load(ctx, orgID)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("stats cache lookup failed", zap.String("org_id", orgID), zap.Error(err))
		}
		return nil, false
	}
	return stats, true
}

// Store caches stats for orgID.
func (c *StatsCache) Store(ctx context.Context, orgID string, stats *models.ApprovalStatistics) {
	if !c.Enabled() || stats == nil {
		return
	}
	start := time.Now()
	err := c.repo.Store(ctx, orgID, stats, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("stats cache store failed", zap.String("org_id", orgID), zap.Error(err))
	}
}

// Evict drops the cached statistics of orgID after a review changed them.
func (c *StatsCache) Evict(ctx context.Context, orgID string) {
	if !c.Enabled() {
		return
	}
	if err := c.repo.Evict(ctx, orgID); err != nil {
		c.logger.Warn("stats cache evict failed", zap.String("org_id", orgID), zap.Error(err))
	}
}

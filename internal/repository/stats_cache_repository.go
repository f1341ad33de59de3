package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

const statsKeyPrefix = "approvals:stats:"

// StatsCacheRepository keeps raw approval statistics per organization in Redis.
type StatsCacheRepository struct {
	client *redis.Client
}

// NewStatsCacheRepository constructs the repository. A nil client behaves as an empty cache.
func NewStatsCacheRepository(client *redis.Client) *StatsCacheRepository {
	return &StatsCacheRepository{client: client}
}

// StatsKey is the Redis key holding the statistics of orgID.
func StatsKey(orgID string) string {
	return statsKeyPrefix + orgID
}

// Load reads the cached statistics of orgID, returning appErrors.ErrCacheMiss when absent.
func (r *StatsCacheRepository) Load(ctx context.Context, orgID string) (*models.ApprovalStatistics, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, StatsKey(orgID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get stats %s: %w", orgID, err)
	}
	var stats models.ApprovalStatistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode cached stats %s: %w", orgID, err)
	}
	return &stats, nil
}

// Store writes stats for orgID with ttl.
func (r *StatsCacheRepository) Store(ctx context.Context, orgID string, stats *models.ApprovalStatistics, ttl time.Duration) error {
	if r.client == nil || stats == nil {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats %s: %w", orgID, err)
	}
	if err := r.client.Set(ctx, StatsKey(orgID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set stats %s: %w", orgID, err)
	}
	return nil
}

// Evict drops the cached statistics of the given organizations.
func (r *StatsCacheRepository) Evict(ctx context.Context, orgIDs ...string) error {
	if r.client == nil || len(orgIDs) == 0 {
		return nil
	}
	keys := make([]string, len(orgIDs))
	for i, id := range orgIDs {
		keys[i] = StatsKey(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del stats: %w", err)
	}
	return nil
}

// Flush drops every cached organization. Used when the cache is switched off
// so stale entries cannot resurface later.
func (r *StatsCacheRepository) Flush(ctx context.Context) (int, error) {
	if r.client == nil {
		return 0, nil
	}
	removed := 0
	iter := r.client.Scan(ctx, 0, statsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan stats: %w", err)
	}
	return removed, nil
}

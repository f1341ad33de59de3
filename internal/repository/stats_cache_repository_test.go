package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

func TestStatsKey(t *testing.T) {
	assert.Equal(t, "approvals:stats:org-1", StatsKey("org-1"))
}

func TestStatsCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewStatsCacheRepository(nil)
	ctx := context.Background()

	_, err := repo.Load(ctx, "org-1")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	require.NoError(t, repo.Store(ctx, "org-1", &models.ApprovalStatistics{}, time.Minute))
	require.NoError(t, repo.Evict(ctx, "org-1", "org-2"))

	removed, err := repo.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

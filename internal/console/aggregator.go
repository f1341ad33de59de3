package console

import (
	"context"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

type statisticsSource interface {
	GetApprovalStatistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error)
}

// Aggregator turns raw store counts into the displayed statistics.
type Aggregator struct {
	source statisticsSource
}

// NewAggregator wraps a statistics source.
func NewAggregator(source statisticsSource) *Aggregator {
	return &Aggregator{source: source}
}

// Statistics returns counts with published folded into approved.
func (a *Aggregator) Statistics(ctx context.Context, orgID string) (models.ApprovalStatistics, error) {
	raw, err := a.source.GetApprovalStatistics(ctx, orgID)
	if err != nil {
		return models.ApprovalStatistics{}, err
	}
	if raw == nil {
		return models.ApprovalStatistics{}, nil
	}
	return raw.Displayed(), nil
}

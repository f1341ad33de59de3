package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	h := NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy, "redis": healthy})
	c, rec := testContext(http.MethodGet, "/ready", "", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy, "redis": down})
	c, rec = testContext(http.MethodGet, "/ready", "", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")
}

func TestMetricsHandlerPrometheusAndSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordReview("curriculum", "approved", nil)
	h := NewMetricsHandler(metrics, nil)

	c, rec := testContext(http.MethodGet, "/metrics", "", nil, nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `reviews_total{decision="approved",kind="curriculum",outcome="success"} 1`)

	c, rec = testContext(http.MethodGet, "/admin/metrics", "", nil, nil)
	h.Summary(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.SystemMetrics
	decodeData(t, rec, &snap)
	assert.EqualValues(t, 1, snap.ReviewsTotal)

	c, rec = testContext(http.MethodGet, "/metrics", "", nil, nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

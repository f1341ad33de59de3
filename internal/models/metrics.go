package models

import "time"

// SystemMetrics is a lightweight snapshot of service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ReviewsTotal             uint64    `json:"reviews_total"`
	ReviewFailures           uint64    `json:"review_failures"`
	ActiveSubscriptions      int64     `json:"active_subscriptions"`
	Reconnects               uint64    `json:"reconnects"`
	ConsoleSessions          int64     `json:"console_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

package domain

import "time"

// StatsReport summarizes delivery attempts of one subscription over a window.
type StatsReport struct {
	SubscriptionID    string         `json:"subscription_id"`
	WindowStart       time.Time      `json:"window_start"`
	WindowEnd         time.Time      `json:"window_end"`
	Total             int            `json:"total"`
	Delivered         int            `json:"delivered"`
	Failed            int            `json:"failed"`
	Skipped           int            `json:"skipped"`
	Pending           int            `json:"pending"`
	Exhausted         int            `json:"exhausted"`
	SuccessRate       float64        `json:"success_rate"`
	AvgResponseTimeMs float64        `json:"avg_response_time_ms"`
	P50ResponseTimeMs int64          `json:"p50_response_time_ms"`
	P95ResponseTimeMs int64          `json:"p95_response_time_ms"`
	P99ResponseTimeMs int64          `json:"p99_response_time_ms"`
	ResponseCodes     map[int]int    `json:"response_codes"`
	EventCounts       map[string]int `json:"event_counts"`
	LastAttemptAt     *time.Time     `json:"last_attempt_at"`
}

// DeliveryMetrics holds system-wide delivery totals for the dashboard.
type DeliveryMetrics struct {
	TotalDeliveries     int     `json:"total_deliveries"`
	DeliveredCount      int     `json:"delivered_count"`
	FailedCount         int     `json:"failed_count"`
	SkippedCount        int     `json:"skipped_count"`
	SuccessRate         float64 `json:"success_rate"`
	AvgResponseMs       float64 `json:"avg_response_ms"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	PausedSubscriptions int     `json:"paused_subscriptions"`
}

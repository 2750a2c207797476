// Package stats summarizes delivery attempts into per-subscription reports.
package stats

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Aggregate builds a report from the attempts of one subscription inside a
// window. maxRetries is the subscription's current retry budget, used to count
// exhausted chains. Attempts outside the window are ignored.
func Aggregate(subscriptionID string, attempts []domain.DeliveryAttempt, w Window, maxRetries int) *domain.StatsReport {
	report := &domain.StatsReport{
		SubscriptionID: subscriptionID,
		WindowStart:    w.Start,
		WindowEnd:      w.End,
		ResponseCodes:  map[int]int{},
		EventCounts:    map[string]int{},
	}

	var latencies []int64
	var latencySum int64

	for _, a := range attempts {
		if a.CreatedAt.Before(w.Start) || !a.CreatedAt.Before(w.End) {
			continue
		}

		report.Total++
		report.EventCounts[string(a.EventType)]++
		if a.ResponseCode != nil {
			report.ResponseCodes[*a.ResponseCode]++
		}
		if report.LastAttemptAt == nil || a.CreatedAt.After(*report.LastAttemptAt) {
			last := a.CreatedAt
			report.LastAttemptAt = &last
		}

		switch a.Status {
		case domain.DeliveryDelivered:
			report.Delivered++
			if a.ResponseTimeMs != nil {
				latencies = append(latencies, *a.ResponseTimeMs)
				latencySum += *a.ResponseTimeMs
			}
		case domain.DeliveryFailed:
			report.Failed++
			if a.RetryCount >= maxRetries {
				report.Exhausted++
			}
		case domain.DeliverySkipped:
			report.Skipped++
		case domain.DeliveryPending:
			report.Pending++
		}
	}

	if attempted := report.Delivered + report.Failed; attempted > 0 {
		report.SuccessRate = float64(report.Delivered) / float64(attempted)
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		report.AvgResponseTimeMs = float64(latencySum) / float64(len(latencies))
		report.P50ResponseTimeMs = Percentile(latencies, 50)
		report.P95ResponseTimeMs = Percentile(latencies, 95)
		report.P99ResponseTimeMs = Percentile(latencies, 99)
	}

	return report
}

// Percentile returns the nearest-rank percentile of sorted values, or 0 for
// an empty slice.
func Percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

// ParsePeriod turns a lookback such as "1h", "24h", "7d" or "30d" into a
// duration. Day suffixes are accepted on top of time.ParseDuration units.
func ParsePeriod(period string) (time.Duration, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return 0, fmt.Errorf("empty period")
	}

	if days, ok := strings.CutSuffix(period, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid period %q", period)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(period)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid period %q", period)
	}
	return d, nil
}

// WindowFor returns the window of length period ending at now.
func WindowFor(now time.Time, period time.Duration) Window {
	return Window{Start: now.Add(-period), End: now}
}

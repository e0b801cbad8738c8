package aggregate

import (
	"fmt"
	"time"

	"github.com/timmy/trackr/internal/domain"
)

// Metric selects one counter of a metrics snapshot.
type Metric string

const (
	MetricViews      Metric = "views"
	MetricLikes      Metric = "likes"
	MetricComments   Metric = "comments"
	MetricShares     Metric = "shares"
	MetricEngagement Metric = "engagement"
)

// ParseMetric validates a metric key. An empty key selects views.
func ParseMetric(key string) (Metric, error) {
	switch m := Metric(key); m {
	case "":
		return MetricViews, nil
	case MetricViews, MetricLikes, MetricComments, MetricShares, MetricEngagement:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q", key)
	}
}

// Value extracts the selected counter.
func (m Metric) Value(snap domain.Metrics) int64 {
	switch m {
	case MetricLikes:
		return snap.Likes
	case MetricComments:
		return snap.Comments
	case MetricShares:
		return snap.Shares
	case MetricEngagement:
		return snap.Engagement()
	default:
		return snap.Views
	}
}

// DayBucket is one UTC calendar day of a series.
type DayBucket struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

const dayLayout = "2006-01-02"

// DaySpan returns the series range for w: midnight UTC of the first of
// w.Days() calendar days ending today, up to now.
func DaySpan(w Window, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(w.Days() - 1)), now
}

// GroupByDay sums metric per UTC day over exactly w.Days() days ending today.
// Empty days are zero. Points before the first day or after now are dropped.
func GroupByDay[T Measured](points []T, metric Metric, w Window, now time.Time) []DayBucket {
	days := w.Days()
	start, end := DaySpan(w, now)

	buckets := make([]DayBucket, days)
	for i := range buckets {
		buckets[i].Date = start.AddDate(0, 0, i).Format(dayLayout)
	}

	for _, p := range points {
		at, ok := p.MeasuredAt()
		if !ok {
			continue
		}
		at = at.UTC()
		if at.Before(start) || at.After(end) {
			continue
		}
		idx := int(at.Sub(start) / (24 * time.Hour))
		if idx < 0 || idx >= days {
			continue
		}
		buckets[idx].Value += metric.Value(p.LatestMetrics())
	}
	return buckets
}

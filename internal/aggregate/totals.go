package aggregate

import (
	"time"

	"github.com/timmy/trackr/internal/domain"
)

// Measured is anything carrying a metrics snapshot and its measurement time.
// domain.Post and domain.EngagementHistoryPoint both qualify.
type Measured interface {
	MeasuredAt() (time.Time, bool)
	LatestMetrics() domain.Metrics
}

// Totals is the summed engagement of a set of posts or points.
type Totals struct {
	Views      int64 `json:"views"`
	Likes      int64 `json:"likes"`
	Comments   int64 `json:"comments"`
	Shares     int64 `json:"shares"`
	Engagement int64 `json:"engagement"`
}

// Add folds one metrics snapshot into t.
func (t *Totals) Add(m domain.Metrics) {
	t.Views += m.Views
	t.Likes += m.Likes
	t.Comments += m.Comments
	t.Shares += m.Shares
	t.Engagement = t.Likes + t.Comments + t.Shares
}

// Rate is engagement over views, zero without views.
func (t Totals) Rate() float64 {
	if t.Views <= 0 {
		return 0
	}
	return float64(t.Engagement) / float64(t.Views)
}

// ComputeTotals sums the latest metrics of items. Engagement is
// likes + comments + shares and never includes views.
func ComputeTotals[T Measured](items []T) Totals {
	var t Totals
	for _, item := range items {
		t.Add(item.LatestMetrics())
	}
	return t
}

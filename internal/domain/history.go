package domain

import "time"

// EngagementHistoryPoint is an immutable snapshot written once per successful scrape.
type EngagementHistoryPoint struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	PostID     string `gorm:"type:varchar(36);not null;index:idx_history_post_time,priority:1" json:"post_id"`
	CampaignID string `gorm:"type:varchar(36);not null;index:idx_history_campaign_time,priority:1" json:"campaign_id"`

	Metrics    `gorm:"embedded"`
	Engagement int64 `gorm:"default:0" json:"engagement"`

	RecordedAt time.Time `gorm:"not null;index:idx_history_post_time,priority:2;index:idx_history_campaign_time,priority:2" json:"recorded_at"`
}

// TableName returns the database table name for EngagementHistoryPoint.
func (EngagementHistoryPoint) TableName() string {
	return "engagement_history"
}

// MeasuredAt returns the snapshot time.
func (h EngagementHistoryPoint) MeasuredAt() (time.Time, bool) {
	if h.RecordedAt.IsZero() {
		return time.Time{}, false
	}
	return h.RecordedAt, true
}

// LatestMetrics returns the snapshot metrics.
func (h EngagementHistoryPoint) LatestMetrics() Metrics {
	return h.Metrics
}

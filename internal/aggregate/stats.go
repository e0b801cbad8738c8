package aggregate

import (
	"sort"
	"time"

	"github.com/timmy/trackr/internal/domain"
)

// WindowTotal is the labelled total of one lookback window.
type WindowTotal struct {
	Window    Window `json:"window"`
	Label     string `json:"label"`
	Hours     int    `json:"hours"`
	PostCount int    `json:"post_count"`
	Totals    Totals `json:"totals"`
}

// WindowTotals computes, for every window, the totals over the latest
// history point of each post measured inside that window.
func WindowTotals(points []domain.EngagementHistoryPoint, now time.Time) []WindowTotal {
	out := make([]WindowTotal, 0, len(Windows))
	for _, w := range Windows {
		latest := LatestPerPost(FilterByWindow(points, w, now))
		out = append(out, WindowTotal{
			Window:    w,
			Label:     w.Label(),
			Hours:     w.Hours(),
			PostCount: len(latest),
			Totals:    ComputeTotals(latest),
		})
	}
	return out
}

// LatestPerPost keeps the newest point of each post, ordered by post id.
func LatestPerPost(points []domain.EngagementHistoryPoint) []domain.EngagementHistoryPoint {
	byPost := make(map[string]domain.EngagementHistoryPoint, len(points))
	for _, p := range points {
		cur, ok := byPost[p.PostID]
		if !ok || p.RecordedAt.After(cur.RecordedAt) {
			byPost[p.PostID] = p
		}
	}
	out := make([]domain.EngagementHistoryPoint, 0, len(byPost))
	for _, p := range byPost {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out
}

// CampaignStats is the list-view summary of a campaign.
type CampaignStats struct {
	CampaignID       string      `json:"campaign_id"`
	Status           StatusLabel `json:"status"`
	PostCount        int         `json:"post_count"`
	ScrapedCount     int         `json:"scraped_count"`
	PlaceholderCount int         `json:"placeholder_count"`
	Totals           Totals      `json:"totals"`
	EngagementRate   float64     `json:"engagement_rate"`
}

// ComputeCampaignStats summarizes the current state of a campaign's posts.
func ComputeCampaignStats(c *domain.Campaign, posts []domain.Post) CampaignStats {
	stats := CampaignStats{
		CampaignID: c.ID,
		Status:     CanonicalStatus(c.Status),
		PostCount:  len(posts),
		Totals:     ComputeTotals(posts),
	}
	for i := range posts {
		if posts[i].IsScraped() {
			stats.ScrapedCount++
		}
		if posts[i].IsPlaceholder() {
			stats.PlaceholderCount++
		}
	}
	stats.EngagementRate = stats.Totals.Rate()
	return stats
}

// PostCounts tallies posts by canonical workflow status.
func PostCounts(posts []domain.Post) map[StatusLabel]int {
	counts := map[StatusLabel]int{
		StatusPending: 0,
		StatusBriefed: 0,
		StatusActive:  0,
		StatusDone:    0,
	}
	for _, p := range posts {
		counts[CanonicalStatus(string(p.Status))]++
	}
	return counts
}

package domain

import (
	"strings"
	"time"
)

// Platform identifies the social network a post lives on.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformUnknown   Platform = "unknown"
)

// KnownPlatforms lists the platforms with a normalization rule.
var KnownPlatforms = []Platform{
	PlatformTikTok,
	PlatformInstagram,
	PlatformYouTube,
	PlatformTwitter,
	PlatformFacebook,
}

// ParsePlatform maps a loose platform name to a Platform.
// Unrecognized names map to PlatformUnknown.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tiktok", "tik tok":
		return PlatformTikTok
	case "instagram", "ig":
		return PlatformInstagram
	case "youtube", "yt", "youtube shorts":
		return PlatformYouTube
	case "twitter", "x":
		return PlatformTwitter
	case "facebook", "fb":
		return PlatformFacebook
	default:
		return PlatformUnknown
	}
}

// IsKnown reports whether p has a normalization rule.
func (p Platform) IsKnown() bool {
	for _, k := range KnownPlatforms {
		if p == k {
			return true
		}
	}
	return false
}

// WorkflowStatus is the user-driven status of a post.
// Values move pending -> briefed -> active -> done by convention only.
type WorkflowStatus string

const (
	WorkflowPending WorkflowStatus = "pending"
	WorkflowBriefed WorkflowStatus = "briefed"
	WorkflowActive  WorkflowStatus = "active"
	WorkflowDone    WorkflowStatus = "done"
)

// ScrapeStatus reflects the most recent scrape attempt of a post.
type ScrapeStatus string

const (
	ScrapeStatusPending  ScrapeStatus = "pending"
	ScrapeStatusScraping ScrapeStatus = "scraping"
	ScrapeStatusScraped  ScrapeStatus = "scraped"
	ScrapeStatusError    ScrapeStatus = "error"
)

// PlaceholderScheme prefixes the synthetic URL of placeholder posts.
const PlaceholderScheme = "placeholder://"

// Metrics is the engagement shape shared by posts, task results and history points.
type Metrics struct {
	Views    int64 `gorm:"default:0" json:"views"`
	Likes    int64 `gorm:"default:0" json:"likes"`
	Comments int64 `gorm:"default:0" json:"comments"`
	Shares   int64 `gorm:"default:0" json:"shares"`
}

// Engagement is likes + comments + shares. Views are excluded.
func (m Metrics) Engagement() int64 {
	return m.Likes + m.Comments + m.Shares
}

// IsZero reports whether all four counters are zero.
func (m Metrics) IsZero() bool {
	return m.Views == 0 && m.Likes == 0 && m.Comments == 0 && m.Shares == 0
}

// Rate is engagement over views, or zero without views.
func (m Metrics) Rate() float64 {
	if m.Views <= 0 {
		return 0
	}
	return float64(m.Engagement()) / float64(m.Views)
}

// Post is a tracked social link belonging to one campaign.
type Post struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	CampaignID     string         `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_posts_campaign_key,priority:1" json:"campaign_id"`
	URL            string         `gorm:"type:varchar(1024);not null" json:"url"`
	CanonicalURL   string         `gorm:"type:varchar(1024)" json:"canonical_url"`
	PostKey        string         `gorm:"type:varchar(768);not null;uniqueIndex:idx_posts_campaign_key,priority:2" json:"post_key"`
	Platform       Platform       `gorm:"type:varchar(32);index" json:"platform"`
	ExternalPostID string         `gorm:"type:varchar(128)" json:"external_post_id,omitempty"`
	CreatorName    string         `gorm:"type:varchar(255)" json:"creator_name,omitempty"`
	Status         WorkflowStatus `gorm:"type:varchar(32);default:pending" json:"status"`

	Metrics        `gorm:"embedded"`
	EngagementRate float64 `gorm:"default:0" json:"engagement_rate"`

	ScrapeStatus  ScrapeStatus `gorm:"type:varchar(32);default:pending;index" json:"scrape_status"`
	LastScrapedAt *time.Time   `json:"last_scraped_at,omitempty"`
	LastError     string       `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string {
	return "posts"
}

// PostKey builds the per-campaign dedup identity of a post.
func PostKey(platform Platform, canonicalURL string) string {
	return string(platform) + ":" + canonicalURL
}

// HasSyntheticURL reports whether the post URL is a placeholder URL.
func (p *Post) HasSyntheticURL() bool {
	return strings.HasPrefix(p.URL, PlaceholderScheme)
}

// IsPlaceholder reports whether the post is a stand-in without a real link:
// a synthetic URL, no platform, or pending with all four metrics at zero.
func (p *Post) IsPlaceholder() bool {
	if p.HasSyntheticURL() {
		return true
	}
	if p.Platform == "" || p.Platform == PlatformUnknown {
		return true
	}
	return p.Status == WorkflowPending && p.Metrics.IsZero()
}

// Schedulable reports whether the post may get a scrape task: it has a real
// URL on a known platform. A pending post with zero metrics still counts as a
// placeholder in stats but keeps being scraped.
func (p *Post) Schedulable() bool {
	return !p.HasSyntheticURL() && p.Platform.IsKnown()
}

// IsScraped reports whether the post has at least one successful measurement.
func (p *Post) IsScraped() bool {
	if p.ScrapeStatus == ScrapeStatusScraped {
		return true
	}
	return p.LastScrapedAt != nil && !p.LastScrapedAt.IsZero()
}

// MeasuredAt returns the time of the last successful measurement.
func (p Post) MeasuredAt() (time.Time, bool) {
	if p.LastScrapedAt == nil || p.LastScrapedAt.IsZero() {
		return time.Time{}, false
	}
	return *p.LastScrapedAt, true
}

// LatestMetrics returns the most recent known metrics.
func (p Post) LatestMetrics() Metrics {
	return p.Metrics
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/aggregate"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/service"
)

// SharePasswordHeader carries the password of a protected share link.
const SharePasswordHeader = "X-Share-Password"

// PublicHandler serves read-only campaign views behind a share slug.
// The password is checked on every request.
type PublicHandler struct {
	campaigns *service.CampaignService
}

// NewPublicHandler creates a new public handler.
func NewPublicHandler(campaigns *service.CampaignService) *PublicHandler {
	return &PublicHandler{campaigns: campaigns}
}

// PublicCampaign is the shared view of a campaign.
type PublicCampaign struct {
	Name       string                  `json:"name"`
	SongTitle  string                  `json:"song_title"`
	SongArtist string                  `json:"song_artist"`
	Status     string                  `json:"status"`
	Stats      aggregate.CampaignStats `json:"stats"`
}

// PublicPost is the shared view of a post.
type PublicPost struct {
	URL            string              `json:"url"`
	Platform       domain.Platform     `json:"platform"`
	CreatorName    string              `json:"creator_name,omitempty"`
	Status         string              `json:"status"`
	Metrics        domain.Metrics      `json:"metrics"`
	EngagementRate float64             `json:"engagement_rate"`
	ScrapeStatus   domain.ScrapeStatus `json:"scrape_status"`
	LastScrapedAt  *time.Time          `json:"last_scraped_at,omitempty"`
}

// open resolves the slug and writes the error response when access is denied.
func (h *PublicHandler) open(c *gin.Context) (*domain.Campaign, bool) {
	campaign, err := h.campaigns.OpenShare(c.Request.Context(), c.Param("slug"), c.GetHeader(SharePasswordHeader))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return campaign, true
}

// GetCampaign handles GET /api/v1/public/:slug.
func (h *PublicHandler) GetCampaign(c *gin.Context) {
	campaign, ok := h.open(c)
	if !ok {
		return
	}
	stats, err := h.campaigns.Stats(c.Request.Context(), campaign.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	shared := *stats
	shared.CampaignID = ""
	c.JSON(http.StatusOK, PublicCampaign{
		Name:       campaign.Name,
		SongTitle:  campaign.SongTitle,
		SongArtist: campaign.SongArtist,
		Status:     string(aggregate.CanonicalStatus(campaign.Status)),
		Stats:      shared,
	})
}

// ListPosts handles GET /api/v1/public/:slug/posts. Placeholders are omitted.
func (h *PublicHandler) ListPosts(c *gin.Context) {
	campaign, ok := h.open(c)
	if !ok {
		return
	}
	posts, err := h.campaigns.Posts(c.Request.Context(), campaign.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]PublicPost, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		if p.HasSyntheticURL() {
			continue
		}
		out = append(out, PublicPost{
			URL:            p.URL,
			Platform:       p.Platform,
			CreatorName:    p.CreatorName,
			Status:         string(aggregate.CanonicalStatus(string(p.Status))),
			Metrics:        p.Metrics,
			EngagementRate: p.EngagementRate,
			ScrapeStatus:   p.ScrapeStatus,
			LastScrapedAt:  p.LastScrapedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"posts": out,
		"total": len(out),
	})
}

// History handles GET /api/v1/public/:slug/history?metric=&window=.
func (h *PublicHandler) History(c *gin.Context) {
	campaign, ok := h.open(c)
	if !ok {
		return
	}
	series, err := h.campaigns.History(c.Request.Context(), campaign.ID, c.DefaultQuery("metric", "views"), c.Query("window"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// Windows handles GET /api/v1/public/:slug/windows.
func (h *PublicHandler) Windows(c *gin.Context) {
	campaign, ok := h.open(c)
	if !ok {
		return
	}
	windows, err := h.campaigns.Windows(c.Request.Context(), campaign.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows})
}

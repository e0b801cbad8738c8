package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/service"
)

// CampaignHandler handles campaign endpoints.
type CampaignHandler struct {
	campaigns *service.CampaignService
	reports   *service.ReportService
}

// NewCampaignHandler creates a new campaign handler.
// Parameters:
//   - campaigns: campaign service instance.
//   - reports: report service instance.
// Returns:
//   - *CampaignHandler: initialized handler.
func NewCampaignHandler(campaigns *service.CampaignService, reports *service.ReportService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, reports: reports}
}

// ListCampaigns handles GET /api/v1/campaigns.
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.campaigns.ListWithStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req service.CampaignInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	campaign, err := h.campaigns.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// GetCampaign handles GET /api/v1/campaigns/:id and includes the summary stats.
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := h.campaigns.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.campaigns.Stats(ctx, campaign.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.CampaignWithStats{Campaign: *campaign, Stats: *stats})
}

// UpdateCampaign handles PATCH /api/v1/campaigns/:id.
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	var req service.CampaignUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	campaign, err := h.campaigns.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// DeleteCampaign handles DELETE /api/v1/campaigns/:id.
func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	if err := h.campaigns.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateSharing handles PUT /api/v1/campaigns/:id/sharing.
func (h *CampaignHandler) UpdateSharing(c *gin.Context) {
	var req service.SharingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	campaign, err := h.campaigns.UpdateSharing(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"share_enabled":      campaign.ShareEnabled,
		"share_slug":         campaign.ShareSlug,
		"password_protected": campaign.SharePasswordHash != "",
	})
}

// History handles GET /api/v1/campaigns/:id/history?metric=&window=.
func (h *CampaignHandler) History(c *gin.Context) {
	series, err := h.campaigns.History(c.Request.Context(), c.Param("id"), c.DefaultQuery("metric", "views"), c.Query("window"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// Windows handles GET /api/v1/campaigns/:id/windows.
func (h *CampaignHandler) Windows(c *gin.Context) {
	windows, err := h.campaigns.Windows(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows})
}

// Report handles GET /api/v1/campaigns/:id/report.
func (h *CampaignHandler) Report(c *gin.Context) {
	report, err := h.reports.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Export handles POST /api/v1/campaigns/:id/export.
// Returns 503 when object storage is not configured.
func (h *CampaignHandler) Export(c *gin.Context) {
	result, err := h.reports.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// DownloadExport handles GET /api/v1/campaigns/:id/exports/:name.
func (h *CampaignHandler) DownloadExport(c *gin.Context) {
	rc, err := h.reports.Open(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+c.Param("name")+`"`)
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		_ = c.Error(err)
	}
}

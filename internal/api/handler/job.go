package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/service"
)

// JobHandler handles scrape job endpoints.
type JobHandler struct {
	jobs *service.JobCoordinator
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs *service.JobCoordinator) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// RescrapeCampaignRequest optionally limits a rescrape to some posts.
type RescrapeCampaignRequest struct {
	PostIDs []string `json:"post_ids"`
}

// RescrapeCampaign handles POST /api/v1/campaigns/:id/rescrape.
// Returns 202 with the queued job, or 409 with the active one.
func (h *JobHandler) RescrapeCampaign(c *gin.Context) {
	ctx := logger.SetCampaignID(c.Request.Context(), c.Param("id"))

	var req RescrapeCampaignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	job, err := h.jobs.StartJob(ctx, c.Param("id"), req.PostIDs, domain.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// RescrapePost handles POST /api/v1/posts/:id/rescrape.
func (h *JobHandler) RescrapePost(c *gin.Context) {
	job, err := h.jobs.RescrapePost(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetActiveJob handles GET /api/v1/campaigns/:id/jobs/active.
// A campaign without an active job returns {"job": null}.
func (h *JobHandler) GetActiveJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := h.jobs.GetActiveJob(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"job": nil})
		return
	}
	withStats, err := h.jobs.GetJob(ctx, job.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": withStats})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetTasks handles GET /api/v1/jobs/:id/tasks.
func (h *JobHandler) GetTasks(c *gin.Context) {
	tasks, err := h.jobs.GetTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": len(tasks),
	})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/service"
)

// TrackerHandler exposes the live tracker schedule.
type TrackerHandler struct {
	tracker *service.LiveTracker
}

// NewTrackerHandler creates a new tracker handler.
// Parameters:
//   - tracker: live tracker owned by the server process.
// Returns:
//   - *TrackerHandler: initialized handler.
func NewTrackerHandler(tracker *service.LiveTracker) *TrackerHandler {
	return &TrackerHandler{tracker: tracker}
}

// Status handles GET /api/v1/tracker.
func (h *TrackerHandler) Status(c *gin.Context) {
	status := h.tracker.Status()
	logger.CtxDebug(c.Request.Context(), "Tracker status requested: client_ip=%s, is_running=%v", c.ClientIP(), status.IsRunning)
	c.JSON(http.StatusOK, status)
}

// Start handles POST /api/v1/tracker/start.
func (h *TrackerHandler) Start(c *gin.Context) {
	h.tracker.Start()
	logger.CtxInfo(c.Request.Context(), "Tracker schedule started: client_ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, h.tracker.Status())
}

// Stop handles POST /api/v1/tracker/stop. Jobs already started keep running.
func (h *TrackerHandler) Stop(c *gin.Context) {
	h.tracker.Stop()
	logger.CtxInfo(c.Request.Context(), "Tracker schedule stopped: client_ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, h.tracker.Status())
}

// RunNow handles POST /api/v1/tracker/run. The sweep runs in the background.
func (h *TrackerHandler) RunNow(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.tracker.RunNow(); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			logger.CtxWarn(ctx, "Tracker run rejected: already running, client_ip=%s", c.ClientIP())
			abort(c, http.StatusConflict, ErrorBody{Code: CodeAlreadyRunning, Message: "Tracker sweep is already running"})
			return
		}
		respondError(c, err)
		return
	}
	logger.CtxInfo(ctx, "Tracker sweep triggered: client_ip=%s", c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"message": "Tracker sweep started"})
}

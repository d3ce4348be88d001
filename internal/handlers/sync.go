package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

func parsePlatform(c *gin.Context) (platform.Type, bool) {
	p := platform.Type(c.Param("platform"))
	if !p.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown platform",
		})
		return "", false
	}
	return p, true
}

// TriggerSync runs one synchronous sync round over every platform.
func (h *Handlers) TriggerSync(c *gin.Context) {
	report := h.manager.SyncAllPlatforms(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success": len(report.Errors) == 0,
		"report":  report,
	})
}

// TriggerPlatformSync runs one synchronous sync round for one platform.
func (h *Handlers) TriggerPlatformSync(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	report := h.manager.SyncPlatform(c.Request.Context(), p)
	c.JSON(http.StatusOK, gin.H{
		"success": len(report.Errors) == 0,
		"report":  report,
	})
}

type backgroundRequest struct {
	IntervalSeconds int   `json:"interval_seconds"`
	Comments        *bool `json:"comments"`
	Mentions        *bool `json:"mentions"`
	DirectMessages  *bool `json:"direct_messages"`
	Notifications   *bool `json:"notifications"`
}

func toggle(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// StartBackground starts (or restarts) the periodic sync loop for one
// platform. Sync types default to enabled unless the request turns them
// off. The loop runs on the service context, not the request's.
func (h *Handlers) StartBackground(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}

	var req backgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request format"})
		return
	}

	cfg := platform.SyncConfig{
		Interval:       time.Duration(req.IntervalSeconds) * time.Second,
		Comments:       toggle(req.Comments),
		Mentions:       toggle(req.Mentions),
		DirectMessages: toggle(req.DirectMessages),
		Notifications:  toggle(req.Notifications),
	}
	h.manager.StartBackgroundSync(h.appCtx, p, cfg)

	h.logger.WithFields(logging.Fields{
		"platform": p,
		"interval": cfg.Interval.String(),
	}).Info("Background sync started via API")

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"platform": p,
		"running":  true,
	})
}

// StopBackground stops the platform's sync loop. Stopping a platform with
// no loop is a success: the desired state already holds.
func (h *Handlers) StopBackground(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	h.manager.StopBackgroundSync(p)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"platform": p,
		"running":  false,
	})
}

// BackgroundStatus reports whether the platform's loop is running.
func (h *Handlers) BackgroundStatus(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"platform": p,
		"running":  h.manager.BackgroundRunning(p),
	})
}

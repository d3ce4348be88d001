package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// RateLimitStatus returns the current counter snapshot for one platform
// endpoint. The endpoint name comes in as a query parameter because
// endpoint keys contain dots ("tweets.search").
func (h *Handlers) RateLimitStatus(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}

	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "endpoint parameter is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"usage":   h.limits.Usage(p, endpoint),
	})
}

type tierRequest struct {
	Tier string `json:"tier"`
}

// UpdateTier switches the platform's quota table at runtime. Counters
// carry over; only the ceilings move.
func (h *Handlers) UpdateTier(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}

	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Tier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "tier is required"})
		return
	}

	h.limits.UpdateTier(p, req.Tier)

	h.logger.WithFields(logging.Fields{
		"platform": p,
		"tier":     req.Tier,
	}).Info("API tier updated")

	c.JSON(http.StatusOK, gin.H{"success": true, "platform": p, "tier": req.Tier})
}

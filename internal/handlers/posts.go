package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/internal/events"
	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/store"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// accountProvider resolves the stored account and builds its provider.
func (h *Handlers) accountProvider(c *gin.Context, p platform.Type, accountID string) (platform.Provider, bool) {
	acct, err := h.accounts.Get(c.Request.Context(), p, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "lookup failed"})
		}
		return nil, false
	}

	provider, err := h.providers.Provider(p, accountID, acct.Auth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return nil, false
	}
	return provider, true
}

type publishRequest struct {
	Content     string     `json:"content"`
	Hashtags    []string   `json:"hashtags,omitempty"`
	MediaIDs    []string   `json:"media_ids,omitempty"`
	ReplyToID   string     `json:"reply_to_id,omitempty"`
	Visibility  string     `json:"visibility,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// PublishPost publishes immediately, or schedules when scheduled_at is in
// the future. A publish failure comes back as a failed response body, not
// a transport error; callers inspect the status field.
func (h *Handlers) PublishPost(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	accountID := c.Param("account_id")

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "post content is required"})
		return
	}

	provider, ok := h.accountProvider(c, p, accountID)
	if !ok {
		return
	}

	post := platform.Post{
		Content:    req.Content,
		Hashtags:   req.Hashtags,
		MediaIDs:   req.MediaIDs,
		ReplyToID:  req.ReplyToID,
		Visibility: req.Visibility,
	}

	var resp platform.PostResponse
	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		resp = provider.SchedulePost(c.Request.Context(), post, *req.ScheduledAt)
	} else {
		resp = provider.CreatePost(c.Request.Context(), post)
	}

	if resp.Status == platform.PostFailed {
		h.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": accountID,
			"error":      resp.ErrorMessage,
		}).Warn("Post publish failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "post": resp})
		return
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(c.Request.Context(), events.PostPublished(p, accountID, resp)); err != nil {
			h.logger.WithFields(logging.Fields{"error": err.Error()}).Warn("Failed to publish post event")
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "post": resp})
}

// DeletePost removes a published post from the platform.
func (h *Handlers) DeletePost(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	accountID := c.Param("account_id")

	provider, ok := h.accountProvider(c, p, accountID)
	if !ok {
		return
	}

	if err := provider.DeletePost(c.Request.Context(), c.Param("post_id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PostMetrics fetches the platform's current analytics snapshot for one
// post.
func (h *Handlers) PostMetrics(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	accountID := c.Param("account_id")

	provider, ok := h.accountProvider(c, p, accountID)
	if !ok {
		return
	}

	metrics, err := provider.GetMetrics(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "metrics": metrics})
}

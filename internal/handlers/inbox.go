package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// ListInbox returns stored inbox messages for one account, newest first.
func (h *Handlers) ListInbox(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	accountID := c.Param("account_id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := h.inbox.ListByAccount(c.Request.Context(), p, accountID, limit)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": accountID,
			"error":      err.Error(),
		}).Error("Failed to list inbox")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list inbox"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": msgs,
		"count":    len(msgs),
	})
}

// InboxStats reports per-platform message counts over a trailing window.
func (h *Handlers) InboxStats(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid hours"})
			return
		}
		hours = n
	}

	counts, err := h.inbox.CountSince(c.Request.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to count messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "counts": counts, "hours": hours})
}

type replyRequest struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// Reply sends a reply to an inbound message through the owning account.
func (h *Handlers) Reply(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	accountID := c.Param("account_id")

	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "message_id and content are required"})
		return
	}

	reply, err := h.manager.ReplyToMessage(c.Request.Context(), p, accountID, req.MessageID, req.Content)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": accountID,
			"message_id": req.MessageID,
			"error":      err.Error(),
		}).Warn("Reply failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reply": reply})
}

package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// ReceiveWebhook accepts a platform push event. The contract with the
// platforms is acknowledge-or-be-retried: any payload we can parse gets a
// 200 even when processing fails, otherwise the platform hammers the
// endpoint with redeliveries.
func (h *Handlers) ReceiveWebhook(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		p := platform.Type(c.Param("platform"))
		if !p.Valid() {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		accountID := c.Param("account_id")

		var event map[string]interface{}
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
			return
		}

		msg := h.manager.HandleWebhookEvent(c.Request.Context(), p, accountID, event)
		if msg != nil {
			h.logger.WithFields(logging.Fields{
				"platform":   p,
				"account_id": accountID,
				"native_id":  msg.NativeID,
			}).Info("Webhook message ingested")
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

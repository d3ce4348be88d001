package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/store"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

// ListPlatforms returns the platforms this deployment supports and their
// content capabilities.
func (h *Handlers) ListPlatforms(c *gin.Context) {
	type entry struct {
		Platform     platform.Type         `json:"platform"`
		Capabilities platform.Capabilities `json:"capabilities"`
	}

	supported := h.providers.Supported()
	out := make([]entry, 0, len(supported))
	for _, p := range supported {
		out = append(out, entry{Platform: p, Capabilities: platform.CapabilitiesFor(p)})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "platforms": out})
}

// AuthorizationURL builds the OAuth consent URL for a platform. No network
// calls, no state changes.
func (h *Handlers) AuthorizationURL(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}

	state := c.Query("state")
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "state parameter is required"})
		return
	}

	provider, err := h.providers.Provider(p, "oauth-"+uuid.NewString(), platform.AuthState{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	url, err := provider.AuthorizationURL(state, c.Query("code_challenge"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}

type connectRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	Tier         string `json:"tier"`
}

// ConnectAccount completes the OAuth flow: exchanges the authorization
// code, fetches the account profile, and persists the connection. Tokens
// land in the store encrypted.
func (h *Handlers) ConnectAccount(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}

	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "authorization code is required"})
		return
	}

	// each exchange gets a fresh provider so concurrent connects never
	// share adapter state
	provider, err := h.providers.Provider(p, "connect-"+uuid.NewString(), platform.AuthState{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	state, err := provider.ExchangeCode(c.Request.Context(), req.Code, req.CodeVerifier)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"platform": p,
			"error":    err.Error(),
		}).Warn("OAuth code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "code exchange failed"})
		return
	}

	details, err := provider.AccountDetails(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to fetch account profile"})
		return
	}

	tier := req.Tier
	if tier == "" {
		tier = "basic"
	}

	acct := &store.Account{
		UserID:      c.GetString("user_id"),
		OrgID:       c.GetString("org_id"),
		Platform:    p,
		AccountID:   details.AccountID,
		Username:    details.Username,
		DisplayName: details.DisplayName,
		AvatarURL:   details.AvatarURL,
		Tier:        tier,
		Active:      true,
		Auth:        *state,
	}
	id, err := h.accounts.Upsert(c.Request.Context(), acct)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"platform":   p,
			"account_id": details.AccountID,
			"error":      err.Error(),
		}).Error("Failed to persist connected account")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to save account"})
		return
	}

	// make the account syncable now rather than on the next restart
	if err := h.manager.InitializeAccounts(c.Request.Context()); err != nil {
		h.logger.WithFields(logging.Fields{"error": err.Error()}).Warn("Account re-initialization failed after connect")
	}

	h.logger.WithFields(logging.Fields{
		"platform":   p,
		"account_id": details.AccountID,
		"username":   details.Username,
	}).Info("Account connected")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"id":      id,
		"account": details,
	})
}

// DisconnectAccount revokes tokens remotely (best effort) and deactivates
// the stored connection. Local state is always cleared.
func (h *Handlers) DisconnectAccount(c *gin.Context) {
	p, ok := parsePlatform(c)
	if !ok {
		return
	}
	accountID := c.Param("account_id")

	acct, err := h.accounts.Get(c.Request.Context(), p, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "lookup failed"})
		return
	}

	revoked := false
	if provider, err := h.providers.Provider(p, accountID, acct.Auth); err == nil {
		revoked = provider.RevokeTokens(c.Request.Context())
	}

	if err := h.accounts.Deactivate(c.Request.Context(), p, accountID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to deactivate account"})
		return
	}

	h.logger.WithFields(logging.Fields{
		"platform":   p,
		"account_id": accountID,
		"revoked":    revoked,
	}).Info("Account disconnected")

	c.JSON(http.StatusOK, gin.H{"success": true, "revoked": revoked})
}

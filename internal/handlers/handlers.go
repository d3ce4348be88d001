// Package handlers exposes the sync engine over HTTP: webhook receiver,
// manual sync triggers, background sync control, account connection, post
// publishing, inbox access and rate-limit introspection.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/internal/events"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
	"github.com/AdaptLabsAI/irisync/pkg/middleware"
	"github.com/AdaptLabsAI/irisync/pkg/monitoring"
)

// Handlers carries every HTTP dependency. Construct once in main and
// register on the service router.
type Handlers struct {
	manager   SyncManager
	providers ProviderSource
	accounts  AccountDirectory
	inbox     InboxReader
	limits    LimitInspector
	publisher events.Publisher
	logger    logging.Logger
	metrics   *monitoring.SyncMetrics

	// appCtx outlives any single request; background sync loops started
	// over HTTP must not die with the request context.
	appCtx context.Context
}

func New(
	appCtx context.Context,
	manager SyncManager,
	providers ProviderSource,
	accounts AccountDirectory,
	inbox InboxReader,
	limits LimitInspector,
	publisher events.Publisher,
	logger logging.Logger,
	metrics *monitoring.SyncMetrics,
) *Handlers {
	return &Handlers{
		manager:   manager,
		providers: providers,
		accounts:  accounts,
		inbox:     inbox,
		limits:    limits,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		appCtx:    appCtx,
	}
}

// RegisterRoutes wires the API. Webhook delivery is authenticated by a
// shared token in the path because platforms cannot send bearer headers;
// everything else requires a user JWT.
func (h *Handlers) RegisterRoutes(router *gin.Engine, jwtSecret []byte, webhookToken string) {
	router.POST("/webhooks/:token/:platform/:account_id", h.ReceiveWebhook(webhookToken))

	api := router.Group("/api")
	api.Use(middleware.UserAuthMiddleware(jwtSecret))
	{
		api.GET("/platforms", h.ListPlatforms)

		api.GET("/accounts/:platform/auth-url", h.AuthorizationURL)
		api.POST("/accounts/:platform/connect", h.ConnectAccount)
		api.DELETE("/accounts/:platform/:account_id", h.DisconnectAccount)

		api.POST("/sync", h.TriggerSync)
		api.POST("/sync/:platform", h.TriggerPlatformSync)
		api.POST("/sync/:platform/background", h.StartBackground)
		api.DELETE("/sync/:platform/background", h.StopBackground)
		api.GET("/sync/:platform/background", h.BackgroundStatus)

		api.GET("/inbox-stats", h.InboxStats)
		api.GET("/inbox/:platform/:account_id", h.ListInbox)
		api.POST("/inbox/:platform/:account_id/reply", h.Reply)

		api.POST("/posts/:platform/:account_id", h.PublishPost)
		api.DELETE("/posts/:platform/:account_id/:post_id", h.DeletePost)
		api.GET("/posts/:platform/:account_id/:post_id/metrics", h.PostMetrics)

		api.GET("/limits/:platform", h.RateLimitStatus)
		api.PUT("/limits/:platform/tier", h.UpdateTier)
	}
}

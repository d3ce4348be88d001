package handlers

import (
	"context"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/internal/store"
	"github.com/AdaptLabsAI/irisync/internal/syncer"
)

// SyncManager is the slice of the sync engine the HTTP layer drives.
type SyncManager interface {
	InitializeAccounts(ctx context.Context) error
	SyncAllPlatforms(ctx context.Context) *syncer.SyncReport
	SyncPlatform(ctx context.Context, p platform.Type) *syncer.SyncReport
	StartBackgroundSync(ctx context.Context, p platform.Type, cfg platform.SyncConfig)
	StopBackgroundSync(p platform.Type)
	BackgroundRunning(p platform.Type) bool
	HandleWebhookEvent(ctx context.Context, p platform.Type, accountID string, event map[string]interface{}) *platform.Message
	ReplyToMessage(ctx context.Context, p platform.Type, accountID, nativeMessageID, content string) (*platform.Message, error)
}

// ProviderSource builds providers for direct (non-sync) operations:
// OAuth flows, publishing, metrics.
type ProviderSource interface {
	Provider(t platform.Type, accountID string, auth platform.AuthState) (platform.Provider, error)
	Supported() []platform.Type
}

// AccountDirectory is the account persistence the HTTP layer needs.
type AccountDirectory interface {
	Get(ctx context.Context, p platform.Type, accountID string) (*store.Account, error)
	Upsert(ctx context.Context, a *store.Account) (string, error)
	Deactivate(ctx context.Context, p platform.Type, accountID string) error
}

// InboxReader serves stored inbox messages.
type InboxReader interface {
	ListByAccount(ctx context.Context, p platform.Type, accountID string, limit int) ([]platform.Message, error)
	CountSince(ctx context.Context, since time.Time) (map[platform.Type]int, error)
}

// LimitInspector exposes rate limiter state and tier control.
type LimitInspector interface {
	Usage(p platform.Type, endpoint string) ratelimit.Usage
	UpdateTier(p platform.Type, tier string)
}

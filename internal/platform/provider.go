// Package platform defines the capability contract every platform adapter
// satisfies and the normalized data model shared across the sync engine.
package platform

import (
	"context"
	"time"
)

// Provider is the contract every platform adapter implements. Methods that
// talk to the network take a context; publish operations report failure in
// the returned PostResponse (status "failed" plus an error message) so a
// publish failure for one account never aborts a batch upstream.
type Provider interface {
	// Platform returns the adapter's platform type.
	Platform() Type

	// Capabilities describes the platform's content limits. Pure, no I/O.
	Capabilities() Capabilities

	// AuthorizationURL builds the OAuth consent URL. Never touches the
	// network. codeChallenge is empty for platforms without PKCE.
	AuthorizationURL(state, codeChallenge string) (string, error)

	// ExchangeCode swaps an authorization code for tokens and stores the
	// resulting state on the adapter.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*AuthState, error)

	// RefreshAccessToken renews the access token in place. Non-expiring
	// schemes return the current state without any network call.
	RefreshAccessToken(ctx context.Context) (*AuthState, error)

	// IsAuthenticated is a pure function of held state vs wall clock.
	IsAuthenticated() bool

	// AuthState returns a copy of the currently held credentials, for
	// persistence after a refresh.
	AuthState() AuthState

	CreatePost(ctx context.Context, post Post) PostResponse
	SchedulePost(ctx context.Context, post Post, at time.Time) PostResponse
	DeletePost(ctx context.Context, postID string) error
	GetPosts(ctx context.Context, limit int) ([]PostResponse, error)
	UploadMedia(ctx context.Context, media Media) (string, error)
	GetMetrics(ctx context.Context, postID string) (*PostMetrics, error)

	// TestConnection and RevokeTokens are best-effort. Revoke clears local
	// state even when the remote call fails; the security goal is that the
	// local credential cannot be reused.
	TestConnection(ctx context.Context) bool
	RevokeTokens(ctx context.Context) bool

	// AccountDetails fetches the connected account's current profile.
	AccountDetails(ctx context.Context) (*Account, error)
}

// The sync capabilities below are optional. An adapter implements only the
// subset its platform supports; the sync manager discovers them by type
// assertion and treats a missing one as "platform does not support this
// sync type", not as an error.

// CommentSyncer fetches new comments on the account's content.
type CommentSyncer interface {
	SyncComments(ctx context.Context, userID, accountID, orgID string) ([]Message, error)
}

// MentionSyncer fetches posts mentioning the account.
type MentionSyncer interface {
	SyncMentions(ctx context.Context, userID, accountID, orgID string) ([]Message, error)
}

// ConversationSyncer fetches threaded conversations.
type ConversationSyncer interface {
	SyncConversations(ctx context.Context, userID, accountID, orgID string) ([]Message, error)
}

// NotificationSyncer fetches platform notifications.
type NotificationSyncer interface {
	SyncNotifications(ctx context.Context, userID, accountID, orgID string) ([]Message, error)
}

// PrivateMessageSyncer fetches direct/private messages.
type PrivateMessageSyncer interface {
	SyncPrivateMessages(ctx context.Context, userID, accountID, orgID string) ([]Message, error)
}

// WebhookIngester converts a platform webhook payload into a normalized
// message.
type WebhookIngester interface {
	HandleWebhookEvent(ctx context.Context, event map[string]interface{}, accountID, userID, orgID string) (*Message, error)
}

// Replier posts a reply to an inbound message.
type Replier interface {
	ReplyToMessage(ctx context.Context, nativeMessageID, content string) (*Message, error)
}

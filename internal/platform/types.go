package platform

import (
	"fmt"
	"time"
)

// Type identifies a supported social platform.
type Type string

const (
	Facebook  Type = "facebook"
	Instagram Type = "instagram"
	Twitter   Type = "twitter"
	LinkedIn  Type = "linkedin"
	TikTok    Type = "tiktok"
	YouTube   Type = "youtube"
	Reddit    Type = "reddit"
	Mastodon  Type = "mastodon"
	Threads   Type = "threads"
)

// Types lists every platform the engine knows about.
var Types = []Type{Facebook, Instagram, Twitter, LinkedIn, TikTok, YouTube, Reddit, Mastodon, Threads}

// Valid reports whether t is a known platform type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Capabilities describes what a platform supports. Immutable per platform
// type; queried before building a post.
type Capabilities struct {
	SupportsImages     bool `json:"supports_images"`
	SupportsVideo      bool `json:"supports_video"`
	SupportsThreads    bool `json:"supports_threads"`
	SupportsPolls      bool `json:"supports_polls"`
	SupportsScheduling bool `json:"supports_scheduling"`
	MaxCharacters      int  `json:"max_characters"`
	MaxHashtags        int  `json:"max_hashtags"`
	MaxAttachments     int  `json:"max_attachments"`
}

// AuthState holds the OAuth credentials for one connected account. It is
// owned by exactly one provider instance and mutated in place on refresh.
type AuthState struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    int64             `json:"expires_at"` // unix seconds; 0 means no expiry recorded
	Scope        string            `json:"scope,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"` // platform-specific data (instance URL, oauth version, page IDs)
}

const (
	extraOAuthVersion = "oauth_version"

	// ExtraTokenExpiry marks a token that never expires (value "none").
	// OAuth2 platforms that issue non-expiring tokens (Mastodon) set it
	// alongside the 1.0a scheme detection.
	ExtraTokenExpiry = "token_expiry"
	TokenExpiryNone  = "none"
)

// NonExpiring reports whether the held credentials never expire: either an
// OAuth-1.0a-style scheme, or an OAuth2 platform whose tokens carry no
// expiry. Refresh is meaningless for both.
func (a *AuthState) NonExpiring() bool {
	return a.Extra[extraOAuthVersion] == "1.0a" || a.Extra[ExtraTokenExpiry] == TokenExpiryNone
}

// Authenticated is a pure function of the state and the supplied wall clock.
// A zero ExpiresAt with a present token is authenticated only for
// non-expiring schemes; an empty access token is never authenticated.
func (a *AuthState) Authenticated(now time.Time) bool {
	if a == nil || a.AccessToken == "" {
		return false
	}
	if a.NonExpiring() {
		return true
	}
	if a.ExpiresAt == 0 {
		return false
	}
	return now.Unix() < a.ExpiresAt
}

// Account is the identity of a connected external account.
type Account struct {
	UserID         string `json:"user_id"`
	AccountID      string `json:"account_id"`
	OrgID          string `json:"org_id,omitempty"`
	Platform       Type   `json:"platform"`
	Active         bool   `json:"active"`
	Username       string `json:"username,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	FollowerCount  int    `json:"follower_count,omitempty"`
	FollowingCount int    `json:"following_count,omitempty"`
}

// PostStatus is the lifecycle state of a published post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
	PostDeleted   PostStatus = "deleted"
)

// Media is an attachment to publish alongside a post.
type Media struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	AltText  string `json:"alt_text,omitempty"`
}

// Post is outbound content to publish on one platform.
type Post struct {
	Content     string     `json:"content"`
	MediaIDs    []string   `json:"media_ids,omitempty"`
	Hashtags    []string   `json:"hashtags,omitempty"`
	ReplyToID   string     `json:"reply_to_id,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Visibility  string     `json:"visibility,omitempty"`
}

// PostMetrics is a per-post analytics snapshot.
type PostMetrics struct {
	Impressions int       `json:"impressions"`
	Likes       int       `json:"likes"`
	Shares      int       `json:"shares"`
	Comments    int       `json:"comments"`
	Clicks      int       `json:"clicks"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// PostResponse records the outcome of a publish attempt. Immutable once
// created; status transitions produce new responses so callers keep an
// audit trail.
type PostResponse struct {
	Status       PostStatus   `json:"status"`
	PostID       string       `json:"post_id,omitempty"`
	URL          string       `json:"url,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Metrics      *PostMetrics `json:"metrics,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// MessageType classifies an inbound inbox item.
type MessageType string

const (
	MessageComment       MessageType = "comment"
	MessageMention       MessageType = "mention"
	MessageDirectMessage MessageType = "direct_message"
	MessageNotification  MessageType = "notification"
)

// AuthorProfile describes who produced an inbound message.
type AuthorProfile struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Message is the normalized representation of any inbound social
// interaction. Every message traces back to exactly one account: AccountID
// and Platform are always set.
type Message struct {
	ID        string        `json:"id"`
	NativeID  string        `json:"native_id"`
	Type      MessageType   `json:"type"`
	Status    string        `json:"status"`
	Priority  string        `json:"priority"`
	Platform  Type          `json:"platform"`
	AccountID string        `json:"account_id"`
	UserID    string        `json:"user_id,omitempty"`
	OrgID     string        `json:"org_id,omitempty"`
	Content   string        `json:"content"`
	Sentiment string        `json:"sentiment,omitempty"`
	Author    AuthorProfile `json:"author"`
	ParentID  string        `json:"parent_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// DedupKey is the identity used to keep re-syncs idempotent: a message is
// the same message when platform, account and the platform-native id match.
func (m *Message) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s", m.Platform, m.AccountID, m.NativeID)
}

// SyncConfig controls one background-sync session. Immutable for the
// session's lifetime.
type SyncConfig struct {
	Interval         time.Duration
	EnabledPlatforms map[Type]bool
	Comments         bool
	Mentions         bool
	DirectMessages   bool
	Notifications    bool
}

// Config carries per-platform client credentials from the environment.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Tier         string
	InstanceURL  string // mastodon only
}

// Package events publishes sync lifecycle events to Kafka so downstream
// consumers (analytics, automation rules, notification fan-out) react to
// inbox activity without polling the database.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/AdaptLabsAI/irisync/internal/platform"
)

// Event types published on the sync_events topic.
const (
	TypeMessageIngested = "inbox.message.ingested"
	TypePostPublished   = "post.published"
	TypeSyncCompleted   = "sync.completed"
	TypeAccountRefresh  = "account.token.refreshed"
)

// SyncEvent is the envelope for every event the engine publishes.
type SyncEvent struct {
	EventID   string        `json:"event_id"`
	EventType string        `json:"event_type"`
	Source    string        `json:"source"`
	Platform  platform.Type `json:"platform,omitempty"`
	AccountID string        `json:"account_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	OrgID     string        `json:"org_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`

	// Data carries the type-specific payload.
	Data map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an envelope with identity fields filled in.
func NewEvent(eventType string, p platform.Type, accountID string) *SyncEvent {
	return &SyncEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Source:    "irisync",
		Platform:  p,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
	}
}

// MessageIngested builds the event for one newly stored inbox message.
func MessageIngested(m *platform.Message) *SyncEvent {
	ev := NewEvent(TypeMessageIngested, m.Platform, m.AccountID)
	ev.UserID = m.UserID
	ev.OrgID = m.OrgID
	ev.Data = map[string]interface{}{
		"message_id":   m.ID,
		"native_id":    m.NativeID,
		"message_type": string(m.Type),
		"dedup_key":    m.DedupKey(),
	}
	return ev
}

// PostPublished builds the event for a successful publish.
func PostPublished(p platform.Type, accountID string, resp platform.PostResponse) *SyncEvent {
	ev := NewEvent(TypePostPublished, p, accountID)
	ev.Data = map[string]interface{}{
		"post_id": resp.PostID,
		"url":     resp.URL,
		"status":  string(resp.Status),
	}
	return ev
}

// SyncCompleted builds the event for one finished sync round.
func SyncCompleted(total int, byPlatform map[platform.Type]int, errs int) *SyncEvent {
	ev := NewEvent(TypeSyncCompleted, "", "")
	counts := make(map[string]interface{}, len(byPlatform))
	for p, n := range byPlatform {
		counts[string(p)] = n
	}
	ev.Data = map[string]interface{}{
		"total_messages": total,
		"by_platform":    counts,
		"errors":         errs,
	}
	return ev
}

package mastodon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/pkg/clients"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

func testProvider(t *testing.T, instanceURL string, auth platform.AuthState) *Provider {
	t.Helper()
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 0
	limiter := ratelimit.New(logging.NewLogger())
	return New(platform.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
		InstanceURL:  instanceURL,
	}, auth, limiter, logging.NewLogger(), WithHTTPExecutorConfig(cfg))
}

func authedState() platform.AuthState {
	return platform.AuthState{
		AccessToken: "masto-token",
		Extra:       map[string]string{platform.ExtraTokenExpiry: platform.TokenExpiryNone},
	}
}

func TestAuthorizationURLUsesInstance(t *testing.T) {
	p := testProvider(t, "https://fosstodon.org", platform.AuthState{})

	u, err := p.AuthorizationURL("state-xyz", "")
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	if !strings.HasPrefix(u, "https://fosstodon.org/oauth/authorize?") {
		t.Errorf("url should target the instance: %s", u)
	}
	if !strings.Contains(u, "state=state-xyz") {
		t.Errorf("missing state: %s", u)
	}

	p = testProvider(t, "", platform.AuthState{})
	if _, err := p.AuthorizationURL("state", ""); err == nil {
		t.Error("expected error without instance URL")
	}
}

func TestExchangeCodeMarksNonExpiring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"masto-token","scope":"read write push","created_at":1693000000}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, platform.AuthState{})

	state, err := p.ExchangeCode(context.Background(), "code", "")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if !state.NonExpiring() {
		t.Error("mastodon tokens should be marked non-expiring")
	}
	if !state.Authenticated(time.Now().Add(100 * 365 * 24 * time.Hour)) {
		t.Error("non-expiring state should stay authenticated far in the future")
	}
}

func TestRefreshIsLocalNoOp(t *testing.T) {
	// no server: refresh must not touch the network
	p := testProvider(t, "https://fosstodon.org", authedState())

	state, err := p.RefreshAccessToken(context.Background())
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if state.AccessToken != "masto-token" {
		t.Errorf("refresh should return the held state: %+v", state)
	}
}

func TestRefreshWithoutTokenFails(t *testing.T) {
	p := testProvider(t, "https://fosstodon.org", platform.AuthState{})

	if _, err := p.RefreshAccessToken(context.Background()); err == nil {
		t.Error("expected error without a held token")
	}
}

func TestSchedulePostSendsScheduledAt(t *testing.T) {
	at := time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/statuses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := jsonDecode(r, &body); err != nil {
			t.Fatal(err)
		}
		if got, _ := body["scheduled_at"].(string); got != at.Format(time.RFC3339) {
			t.Errorf("scheduled_at = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sched-1","scheduled_at":"2026-09-02T12:00:00.000Z"}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, authedState())

	resp := p.SchedulePost(context.Background(), platform.Post{Content: "later"}, at)
	if resp.Status != platform.PostScheduled {
		t.Fatalf("status = %s (%s)", resp.Status, resp.ErrorMessage)
	}
	if resp.PostID != "sched-1" {
		t.Errorf("post id = %q", resp.PostID)
	}
}

func TestCreatePostTooLong(t *testing.T) {
	p := testProvider(t, "https://fosstodon.org", authedState())

	resp := p.CreatePost(context.Background(), platform.Post{Content: strings.Repeat("x", 600)})
	if resp.Status != platform.PostFailed {
		t.Fatalf("status = %s", resp.Status)
	}
	if !strings.Contains(resp.ErrorMessage, "500") {
		t.Errorf("error should name the limit: %q", resp.ErrorMessage)
	}
}

func TestSyncNotifications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"n1","type":"mention","created_at":"2026-08-30T10:00:00Z",
			 "account":{"id":"9","acct":"friend","display_name":"Friend","avatar":"https://img/9.png"},
			 "status":{"id":"s1","content":"<p>hi @me</p>","in_reply_to_id":"s0"}},
			{"id":"n2","type":"favourite","created_at":"2026-08-30T11:00:00Z",
			 "account":{"id":"10","acct":"liker"},
			 "status":{"id":"s2","content":"<p>liked post</p>"}}
		]`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, authedState())

	msgs, err := p.SyncNotifications(context.Background(), "user-1", "acct-1", "org-1")
	if err != nil {
		t.Fatalf("SyncNotifications: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	if msgs[0].Type != platform.MessageMention {
		t.Errorf("mention notification should keep mention type, got %s", msgs[0].Type)
	}
	if msgs[0].Content != "hi @me" {
		t.Errorf("content should be stripped of HTML: %q", msgs[0].Content)
	}
	if msgs[0].ParentID != "s0" {
		t.Errorf("parent id = %q", msgs[0].ParentID)
	}
	if msgs[1].Type != platform.MessageNotification {
		t.Errorf("favourite should normalize as notification, got %s", msgs[1].Type)
	}
	if msgs[0].DedupKey() != "mastodon:acct-1:n1" {
		t.Errorf("dedup key = %q", msgs[0].DedupKey())
	}
}

func TestSyncConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"c1","last_status":{"id":"dm1","content":"<p>secret hello</p>","created_at":"2026-08-30T09:00:00Z",
			 "account":{"id":"11","acct":"dm-sender","display_name":"Sender"}}},
			{"id":"c2","last_status":null}
		]`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL, authedState())

	msgs, err := p.SyncConversations(context.Background(), "user-1", "acct-1", "org-1")
	if err != nil {
		t.Fatalf("SyncConversations: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("conversations without a last status are skipped; got %d messages", len(msgs))
	}
	if msgs[0].Type != platform.MessageDirectMessage {
		t.Errorf("type = %s", msgs[0].Type)
	}
	if msgs[0].Content != "secret hello" {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>plain</p>", "plain"},
		{`<p>hi <a href="https://x.test">@user</a></p>`, "hi @user"},
		{"a &amp; b &lt;c&gt;", "a & b <c>"},
		{"it&#39;s &#x263a; ok", "it's ☺ ok"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func jsonDecode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

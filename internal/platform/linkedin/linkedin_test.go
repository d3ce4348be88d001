package linkedin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/pkg/clients"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

func testProvider(t *testing.T, auth platform.AuthState, opts ...Option) *Provider {
	t.Helper()
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 0
	limiter := ratelimit.New(logging.NewLogger())
	all := append([]Option{WithHTTPExecutorConfig(cfg)}, opts...)
	return New(platform.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
	}, auth, limiter, logging.NewLogger(), all...)
}

func authedState() platform.AuthState {
	return platform.AuthState{
		AccessToken:  "li-token",
		RefreshToken: "li-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

func TestAuthorizationURL(t *testing.T) {
	p := testProvider(t, platform.AuthState{})

	u, err := p.AuthorizationURL("csrf-state", "ignored-challenge")
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	if !strings.HasPrefix(u, "https://www.linkedin.com/oauth/v2/authorization?") {
		t.Errorf("unexpected base: %s", u)
	}
	if strings.Contains(u, "code_challenge") {
		t.Error("linkedin flow must not carry PKCE parameters")
	}
	if !strings.Contains(u, "state=csrf-state") {
		t.Errorf("missing state: %s", u)
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond) // let concurrent callers pile up
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"rotated","expires_in":3600}`))
	}))
	defer srv.Close()

	p := testProvider(t, authedState(), WithAuthBaseURL(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.RefreshAccessToken(context.Background()); err != nil {
				t.Errorf("RefreshAccessToken: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("concurrent refreshes should collapse into one call, got %d", got)
	}
	if p.AuthState().AccessToken != "rotated" {
		t.Error("held state should be updated")
	}
	if p.AuthState().RefreshToken != "li-refresh" {
		t.Error("absent refresh token in response should keep the old one")
	}
}

func TestRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := testProvider(t, authedState(), WithAuthBaseURL(srv.URL))

	_, err := p.RefreshAccessToken(context.Background())
	var failed *platform.RefreshFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected RefreshFailedError, got %v", err)
	}
	// stale token survives for the caller to keep using
	if p.AuthState().AccessToken != "li-token" {
		t.Error("failed refresh must not clear held state")
	}
}

func TestCreatePostUsesRestliID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/userinfo":
			w.Write([]byte(`{"sub":"abc123","name":"Member"}`))
		case "/v2/ugcPosts":
			if got := r.Header.Get("X-Restli-Protocol-Version"); got != "2.0.0" {
				t.Errorf("protocol header = %q", got)
			}
			w.Header().Set("X-RestLi-Id", "urn:li:ugcPost:777")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := testProvider(t, authedState(), WithBaseURL(srv.URL))

	resp := p.CreatePost(context.Background(), platform.Post{Content: "hello network"})
	if resp.Status != platform.PostPublished {
		t.Fatalf("status = %s (%s)", resp.Status, resp.ErrorMessage)
	}
	if resp.PostID != "urn:li:ugcPost:777" {
		t.Errorf("post id = %q", resp.PostID)
	}
}

func TestSchedulePostUnsupported(t *testing.T) {
	p := testProvider(t, authedState())

	resp := p.SchedulePost(context.Background(), platform.Post{Content: "later"}, time.Now().Add(time.Hour))
	if resp.Status != platform.PostFailed {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestSyncComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v2/userinfo":
			w.Write([]byte(`{"sub":"abc123","name":"Member"}`))
		case r.URL.Path == "/v2/ugcPosts":
			w.Write([]byte(`{"elements":[{"id":"urn:li:ugcPost:1","created":{"time":1756500000000}}]}`))
		case strings.Contains(r.URL.Path, "/comments"):
			w.Write([]byte(`{"elements":[
				{"id":"c-1","message":{"text":"great point"},"actor":"urn:li:person:xyz","created":{"time":1756510000000}},
				{"id":"c-2","message":{"text":"agreed"},"actor":"urn:li:person:zzz","created":{"time":1756520000000}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := testProvider(t, authedState(), WithBaseURL(srv.URL))

	msgs, err := p.SyncComments(context.Background(), "user-1", "acct-1", "org-1")
	if err != nil {
		t.Fatalf("SyncComments: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(msgs))
	}
	if msgs[0].Type != platform.MessageComment || msgs[0].Platform != platform.LinkedIn {
		t.Errorf("message identity: %+v", msgs[0])
	}
	if msgs[0].ParentID != "urn:li:ugcPost:1" {
		t.Errorf("parent should be the post urn: %q", msgs[0].ParentID)
	}
	if msgs[0].DedupKey() != "linkedin:acct-1:c-1" {
		t.Errorf("dedup key = %q", msgs[0].DedupKey())
	}
}

func TestSyncPrivateMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/conversations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elements":[
			{"id":"conv-1","events":[{"id":"ev-1","from":"urn:li:person:aaa","createdAt":1756500000000,"body":{"text":"hi there"}}]},
			{"id":"conv-2","events":[]}
		]}`))
	}))
	defer srv.Close()

	p := testProvider(t, authedState(), WithBaseURL(srv.URL))

	msgs, err := p.SyncPrivateMessages(context.Background(), "user-1", "acct-1", "org-1")
	if err != nil {
		t.Fatalf("SyncPrivateMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("empty conversations are skipped; got %d messages", len(msgs))
	}
	if msgs[0].Type != platform.MessageDirectMessage {
		t.Errorf("type = %s", msgs[0].Type)
	}
	if msgs[0].Content != "hi there" {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestRevokeTokensLocalOnly(t *testing.T) {
	p := testProvider(t, authedState())

	if !p.RevokeTokens(context.Background()) {
		t.Error("local-only revoke always succeeds")
	}
	if p.IsAuthenticated() {
		t.Error("state should be cleared")
	}
}

package twitter

import (
	"context"
	"errors"
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

func testConfig() platform.Config {
	return platform.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback",
	}
}

func authedState() platform.AuthState {
	return platform.AuthState{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

func noRetry() Option {
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 0
	return WithHTTPExecutorConfig(cfg)
}

func openLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	l := ratelimit.New(logging.NewLogger())
	for _, ep := range []string{"*", "tweets.write", "tweets.search", "media.upload"} {
		l.SetQuota(platform.Twitter, ep, ratelimit.Quota{
			PerMinute: 1000, PerHour: 10000, PerDay: 100000,
			Cooldown: time.Minute, MaxWait: 0,
		})
	}
	return l
}

func TestAuthorizationURL(t *testing.T) {
	p := New(testConfig(), platform.AuthState{}, openLimiter(t), logging.NewLogger())

	u, err := p.AuthorizationURL("state-123", "challenge-abc")
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	for _, want := range []string{
		"response_type=code",
		"client_id=client-id",
		"state=state-123",
		"code_challenge=challenge-abc",
		"code_challenge_method=S256",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("authorization URL missing %q: %s", want, u)
		}
	}

	if _, err := p.AuthorizationURL("state", ""); err == nil {
		t.Error("expected error without PKCE challenge")
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			t.Error("missing basic auth on token request")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("code_verifier"); got != "verifier" {
			t.Errorf("code_verifier = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":7200,"scope":"tweet.read"}`))
	}))
	defer srv.Close()

	p := New(testConfig(), platform.AuthState{}, openLimiter(t), logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	state, err := p.ExchangeCode(context.Background(), "auth-code", "verifier")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if state.AccessToken != "new-access" || state.RefreshToken != "new-refresh" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if !p.IsAuthenticated() {
		t.Error("provider should be authenticated after exchange")
	}
}

func TestExchangeCodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := New(testConfig(), platform.AuthState{}, openLimiter(t), logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	_, err := p.ExchangeCode(context.Background(), "bad-code", "verifier")
	var exchange *platform.AuthExchangeError
	if !errors.As(err, &exchange) {
		t.Fatalf("expected AuthExchangeError, got %v", err)
	}
	if exchange.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", exchange.StatusCode)
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	p := New(testConfig(), platform.AuthState{AccessToken: "tok"}, openLimiter(t), logging.NewLogger(), noRetry())

	_, err := p.RefreshAccessToken(context.Background())
	var missing *platform.NoRefreshTokenError
	if !errors.As(err, &missing) {
		t.Fatalf("expected NoRefreshTokenError, got %v", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"rotated","refresh_token":"rotated-refresh","expires_in":7200}`))
	}))
	defer srv.Close()

	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	state, err := p.RefreshAccessToken(context.Background())
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	if state.AccessToken != "rotated" || state.RefreshToken != "rotated-refresh" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if p.AuthState().AccessToken != "rotated" {
		t.Error("held state should be updated in place")
	}
}

func TestCreatePost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" || r.Method != "POST" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-token" {
			t.Errorf("authorization = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1234567890","text":"hello"}}`))
	}))
	defer srv.Close()

	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	resp := p.CreatePost(context.Background(), platform.Post{Content: "hello", Hashtags: []string{"golang"}})
	if resp.Status != platform.PostPublished {
		t.Fatalf("status = %s (%s)", resp.Status, resp.ErrorMessage)
	}
	if resp.PostID != "1234567890" {
		t.Errorf("post id = %q", resp.PostID)
	}
	if !strings.Contains(resp.URL, "1234567890") {
		t.Errorf("url = %q", resp.URL)
	}
}

func TestCreatePostTooLong(t *testing.T) {
	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), noRetry())

	resp := p.CreatePost(context.Background(), platform.Post{Content: strings.Repeat("x", 300)})
	if resp.Status != platform.PostFailed {
		t.Fatalf("status = %s", resp.Status)
	}
	if !strings.Contains(resp.ErrorMessage, "280") {
		t.Errorf("error message should name the limit: %q", resp.ErrorMessage)
	}
}

func TestCreatePostRemoteThrottleForcesCooldown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	limiter := openLimiter(t)
	p := New(testConfig(), authedState(), limiter, logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	resp := p.CreatePost(context.Background(), platform.Post{Content: "hello"})
	if resp.Status != platform.PostFailed {
		t.Fatalf("status = %s", resp.Status)
	}

	if limiter.Allow(platform.Twitter, "tweets.write") {
		t.Error("endpoint should be in forced cooldown after remote 429")
	}
	usage := limiter.Usage(platform.Twitter, "tweets.write")
	if !usage.Limited {
		t.Errorf("usage should report limited: %+v", usage)
	}
}

func TestSchedulePostUnsupported(t *testing.T) {
	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), noRetry())

	resp := p.SchedulePost(context.Background(), platform.Post{Content: "later"}, time.Now().Add(time.Hour))
	if resp.Status != platform.PostFailed {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestSyncMentions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/2/users/me":
			w.Write([]byte(`{"data":{"id":"42","username":"acct","name":"Account"}}`))
		case strings.HasPrefix(r.URL.Path, "/2/users/42/mentions"):
			w.Write([]byte(`{
				"data":[
					{"id":"900","text":"hey @acct","author_id":"7","created_at":"2026-08-30T10:00:00Z"},
					{"id":"901","text":"also @acct","author_id":"8","created_at":"2026-08-30T11:00:00Z"}
				],
				"includes":{"users":[{"id":"7","username":"fan","name":"A Fan","profile_image_url":"https://img/7.png"}]}
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	msgs, err := p.SyncMentions(context.Background(), "user-1", "acct-1", "org-1")
	if err != nil {
		t.Fatalf("SyncMentions: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 mentions, got %d", len(msgs))
	}

	first := msgs[0]
	if first.Type != platform.MessageMention || first.Platform != platform.Twitter {
		t.Errorf("unexpected message identity: %+v", first)
	}
	if first.NativeID != "900" || first.AccountID != "acct-1" || first.OrgID != "org-1" {
		t.Errorf("unexpected message fields: %+v", first)
	}
	if first.Author.Username != "fan" {
		t.Errorf("author should come from includes: %+v", first.Author)
	}
	if first.DedupKey() != "twitter:acct-1:900" {
		t.Errorf("dedup key = %q", first.DedupKey())
	}
	// author 8 is absent from includes; the id still carries through
	if msgs[1].Author.ID != "8" {
		t.Errorf("fallback author id = %q", msgs[1].Author.ID)
	}
}

func TestHandleWebhookEvent(t *testing.T) {
	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), noRetry())

	event := map[string]interface{}{
		"tweet_create_events": []interface{}{
			map[string]interface{}{
				"id_str":                    "555",
				"text":                      "nice post!",
				"in_reply_to_status_id_str": "444",
				"user": map[string]interface{}{
					"id_str":      "9",
					"screen_name": "replier",
					"name":        "Replier",
				},
			},
		},
	}

	msg, err := p.HandleWebhookEvent(context.Background(), event, "acct-1", "user-1", "org-1")
	if err != nil {
		t.Fatalf("HandleWebhookEvent: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.Type != platform.MessageComment {
		t.Errorf("reply should normalize as comment, got %s", msg.Type)
	}
	if msg.NativeID != "555" || msg.ParentID != "444" {
		t.Errorf("unexpected ids: %+v", msg)
	}
	if msg.Author.Username != "replier" {
		t.Errorf("author = %+v", msg.Author)
	}
}

func TestHandleWebhookEventUnknownShape(t *testing.T) {
	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), noRetry())

	msg, err := p.HandleWebhookEvent(context.Background(), map[string]interface{}{"favorite_events": "nope"}, "acct-1", "user-1", "org-1")
	if err != nil {
		t.Fatalf("unknown payloads must not error: %v", err)
	}
	if msg != nil {
		t.Fatalf("unknown payloads must yield no message, got %+v", msg)
	}
}

func TestRevokeTokensClearsStateOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(testConfig(), authedState(), openLimiter(t), logging.NewLogger(), WithBaseURL(srv.URL), noRetry())

	if p.RevokeTokens(context.Background()) {
		t.Error("revoke should report remote failure")
	}
	if p.AuthState().AccessToken != "" {
		t.Error("local state must be cleared even when the remote call fails")
	}
	if p.IsAuthenticated() {
		t.Error("provider should no longer be authenticated")
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AdaptLabsAI/irisync/internal/events"
	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/internal/store"
	"github.com/AdaptLabsAI/irisync/internal/syncer"
	"github.com/AdaptLabsAI/irisync/pkg/auth"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

var testSecret = []byte("test-jwt-secret")

type managerStub struct {
	report        *syncer.SyncReport
	syncedAll     int
	syncedOne     []platform.Type
	started       map[platform.Type]platform.SyncConfig
	stopped       []platform.Type
	webhookEvents []map[string]interface{}
	webhookMsg    *platform.Message
	reply         *platform.Message
	replyErr      error
	initialized   int
}

func (m *managerStub) InitializeAccounts(context.Context) error {
	m.initialized++
	return nil
}

func (m *managerStub) SyncAllPlatforms(context.Context) *syncer.SyncReport {
	m.syncedAll++
	return m.report
}

func (m *managerStub) SyncPlatform(_ context.Context, p platform.Type) *syncer.SyncReport {
	m.syncedOne = append(m.syncedOne, p)
	return m.report
}

func (m *managerStub) StartBackgroundSync(_ context.Context, p platform.Type, cfg platform.SyncConfig) {
	if m.started == nil {
		m.started = make(map[platform.Type]platform.SyncConfig)
	}
	m.started[p] = cfg
}

func (m *managerStub) StopBackgroundSync(p platform.Type) { m.stopped = append(m.stopped, p) }
func (m *managerStub) BackgroundRunning(p platform.Type) bool {
	_, ok := m.started[p]
	return ok
}

func (m *managerStub) HandleWebhookEvent(_ context.Context, _ platform.Type, _ string, event map[string]interface{}) *platform.Message {
	m.webhookEvents = append(m.webhookEvents, event)
	return m.webhookMsg
}

func (m *managerStub) ReplyToMessage(context.Context, platform.Type, string, string, string) (*platform.Message, error) {
	return m.reply, m.replyErr
}

// providerStub satisfies platform.Provider for the HTTP layer.
type providerStub struct {
	authURL      string
	exchanged    *platform.AuthState
	exchangeErr  error
	details      *platform.Account
	postResponse platform.PostResponse
	revoked      bool
}

func (p *providerStub) Platform() platform.Type             { return platform.Twitter }
func (p *providerStub) Capabilities() platform.Capabilities { return platform.Capabilities{} }
func (p *providerStub) AuthorizationURL(state, _ string) (string, error) {
	return p.authURL + "?state=" + state, nil
}
func (p *providerStub) ExchangeCode(context.Context, string, string) (*platform.AuthState, error) {
	return p.exchanged, p.exchangeErr
}
func (p *providerStub) RefreshAccessToken(context.Context) (*platform.AuthState, error) {
	return p.exchanged, nil
}
func (p *providerStub) IsAuthenticated() bool         { return true }
func (p *providerStub) AuthState() platform.AuthState { return platform.AuthState{} }
func (p *providerStub) CreatePost(context.Context, platform.Post) platform.PostResponse {
	return p.postResponse
}
func (p *providerStub) SchedulePost(context.Context, platform.Post, time.Time) platform.PostResponse {
	return p.postResponse
}
func (p *providerStub) DeletePost(context.Context, string) error { return nil }
func (p *providerStub) GetPosts(context.Context, int) ([]platform.PostResponse, error) {
	return nil, nil
}
func (p *providerStub) UploadMedia(context.Context, platform.Media) (string, error) { return "", nil }
func (p *providerStub) GetMetrics(context.Context, string) (*platform.PostMetrics, error) {
	return &platform.PostMetrics{Likes: 7}, nil
}
func (p *providerStub) TestConnection(context.Context) bool { return true }
func (p *providerStub) RevokeTokens(context.Context) bool   { p.revoked = true; return true }
func (p *providerStub) AccountDetails(context.Context) (*platform.Account, error) {
	return p.details, nil
}

type providersStub struct {
	provider *providerStub
	err      error
}

func (s *providersStub) Provider(platform.Type, string, platform.AuthState) (platform.Provider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.provider, nil
}

func (s *providersStub) Supported() []platform.Type {
	return []platform.Type{platform.Twitter, platform.Mastodon}
}

type accountsStub struct {
	account   *store.Account
	getErr    error
	upserted  []*store.Account
	deactived []string
}

func (s *accountsStub) Get(context.Context, platform.Type, string) (*store.Account, error) {
	return s.account, s.getErr
}

func (s *accountsStub) Upsert(_ context.Context, a *store.Account) (string, error) {
	s.upserted = append(s.upserted, a)
	return "row-1", nil
}

func (s *accountsStub) Deactivate(_ context.Context, _ platform.Type, accountID string) error {
	s.deactived = append(s.deactived, accountID)
	return nil
}

type inboxStub struct {
	messages []platform.Message
	err      error
}

func (s *inboxStub) ListByAccount(context.Context, platform.Type, string, int) ([]platform.Message, error) {
	return s.messages, s.err
}

func (s *inboxStub) CountSince(context.Context, time.Time) (map[platform.Type]int, error) {
	return map[platform.Type]int{platform.Twitter: len(s.messages)}, s.err
}

type limitsStub struct {
	usage ratelimit.Usage
	tiers map[platform.Type]string
}

func (s *limitsStub) Usage(p platform.Type, endpoint string) ratelimit.Usage {
	u := s.usage
	u.Platform = p
	u.Endpoint = endpoint
	return u
}

func (s *limitsStub) UpdateTier(p platform.Type, tier string) {
	if s.tiers == nil {
		s.tiers = make(map[platform.Type]string)
	}
	s.tiers[p] = tier
}

type harness struct {
	router    *gin.Engine
	manager   *managerStub
	providers *providersStub
	accounts  *accountsStub
	inbox     *inboxStub
	limits    *limitsStub
}

func setup(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		manager: &managerStub{report: &syncer.SyncReport{
			TotalMessages:      3,
			AccountsSynced:     1,
			MessagesByPlatform: map[platform.Type]int{platform.Twitter: 3},
		}},
		providers: &providersStub{provider: &providerStub{
			authURL:      "https://example.com/oauth",
			exchanged:    &platform.AuthState{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour).Unix()},
			details:      &platform.Account{AccountID: "acct-1", Username: "tester", Platform: platform.Twitter},
			postResponse: platform.PostResponse{Status: platform.PostPublished, PostID: "post-1"},
		}},
		accounts: &accountsStub{account: &store.Account{
			Platform:  platform.Twitter,
			AccountID: "acct-1",
			Active:    true,
		}},
		inbox:  &inboxStub{},
		limits: &limitsStub{},
	}

	handlers := New(context.Background(), h.manager, h.providers, h.accounts, h.inbox, h.limits,
		events.NopPublisher{}, logging.NewLogger(), nil)

	h.router = gin.New()
	handlers.RegisterRoutes(h.router, testSecret, "hook-token")
	return h
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		token, err := auth.GenerateJWT("user-1", "org-1", "user@example.com", "admin", testSecret)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func TestSyncRequiresAuth(t *testing.T) {
	h := setup(t)
	if resp := h.do(t, http.MethodPost, "/api/sync", nil, false); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if h.manager.syncedAll != 0 {
		t.Error("unauthenticated request must not trigger a sync")
	}
}

func TestTriggerSync(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodPost, "/api/sync", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if h.manager.syncedAll != 1 {
		t.Errorf("synced %d times", h.manager.syncedAll)
	}

	var body struct {
		Report syncer.SyncReport `json:"report"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Report.TotalMessages != 3 {
		t.Errorf("total = %d", body.Report.TotalMessages)
	}
}

func TestTriggerSyncUnknownPlatform(t *testing.T) {
	h := setup(t)
	if resp := h.do(t, http.MethodPost, "/api/sync/friendster", nil, true); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestBackgroundStartStop(t *testing.T) {
	h := setup(t)

	resp := h.do(t, http.MethodPost, "/api/sync/twitter/background", map[string]interface{}{
		"interval_seconds": 90,
		"mentions":         false,
	}, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("start: %d %s", resp.Code, resp.Body.String())
	}
	cfg := h.manager.started[platform.Twitter]
	if cfg.Interval != 90*time.Second {
		t.Errorf("interval = %v", cfg.Interval)
	}
	if cfg.Mentions {
		t.Error("mentions should be disabled")
	}
	if !cfg.Comments || !cfg.DirectMessages || !cfg.Notifications {
		t.Errorf("omitted sync types must default to enabled: %+v", cfg)
	}

	resp = h.do(t, http.MethodDelete, "/api/sync/twitter/background", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("stop: %d", resp.Code)
	}
	if len(h.manager.stopped) != 1 || h.manager.stopped[0] != platform.Twitter {
		t.Errorf("stopped = %v", h.manager.stopped)
	}
}

func TestWebhookTokenMismatch(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodPost, "/webhooks/wrong-token/twitter/acct-1", map[string]string{"k": "v"}, false)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if len(h.manager.webhookEvents) != 0 {
		t.Error("event must not reach the manager")
	}
}

func TestWebhookIngest(t *testing.T) {
	h := setup(t)
	h.manager.webhookMsg = &platform.Message{NativeID: "900"}

	resp := h.do(t, http.MethodPost, "/webhooks/hook-token/twitter/acct-1", map[string]string{"kind": "tweet"}, false)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(h.manager.webhookEvents) != 1 {
		t.Fatalf("events = %d", len(h.manager.webhookEvents))
	}
	if h.manager.webhookEvents[0]["kind"] != "tweet" {
		t.Errorf("payload = %v", h.manager.webhookEvents[0])
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	h := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/hook-token/twitter/acct-1", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRateLimitStatus(t *testing.T) {
	h := setup(t)
	h.limits.usage = ratelimit.Usage{MinuteCount: 42, Limited: true}

	resp := h.do(t, http.MethodGet, "/api/limits/twitter?endpoint=tweets.search", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Usage ratelimit.Usage `json:"usage"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Usage.MinuteCount != 42 || !body.Usage.Limited || body.Usage.Endpoint != "tweets.search" {
		t.Errorf("usage = %+v", body.Usage)
	}
}

func TestRateLimitStatusRequiresEndpoint(t *testing.T) {
	h := setup(t)
	if resp := h.do(t, http.MethodGet, "/api/limits/twitter", nil, true); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUpdateTier(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodPut, "/api/limits/twitter/tier", map[string]string{"tier": "pro"}, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if h.limits.tiers[platform.Twitter] != "pro" {
		t.Errorf("tiers = %v", h.limits.tiers)
	}
}

func TestPublishPost(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodPost, "/api/posts/twitter/acct-1", map[string]string{"content": "hello"}, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPublishPostFailureIsUnprocessable(t *testing.T) {
	h := setup(t)
	h.providers.provider.postResponse = platform.PostResponse{
		Status:       platform.PostFailed,
		ErrorMessage: "content too long",
	}

	resp := h.do(t, http.MethodPost, "/api/posts/twitter/acct-1", map[string]string{"content": "hello"}, true)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestPublishPostUnknownAccount(t *testing.T) {
	h := setup(t)
	h.accounts.account = nil
	h.accounts.getErr = store.ErrNotFound

	resp := h.do(t, http.MethodPost, "/api/posts/twitter/ghost", map[string]string{"content": "hello"}, true)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestConnectAccount(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodPost, "/api/accounts/twitter/connect", map[string]string{
		"code":          "auth-code",
		"code_verifier": "verifier",
	}, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if len(h.accounts.upserted) != 1 {
		t.Fatalf("upserts = %d", len(h.accounts.upserted))
	}
	saved := h.accounts.upserted[0]
	if saved.AccountID != "acct-1" || saved.UserID != "user-1" || saved.Auth.AccessToken != "tok" {
		t.Errorf("saved account = %+v", saved)
	}
	if h.manager.initialized != 1 {
		t.Error("connect should re-initialize accounts")
	}
}

func TestConnectAccountExchangeFailure(t *testing.T) {
	h := setup(t)
	h.providers.provider.exchangeErr = errors.New("invalid code")

	resp := h.do(t, http.MethodPost, "/api/accounts/twitter/connect", map[string]string{"code": "bad"}, true)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if len(h.accounts.upserted) != 0 {
		t.Error("failed exchange must not persist an account")
	}
}

func TestDisconnectAccount(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodDelete, "/api/accounts/twitter/acct-1", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !h.providers.provider.revoked {
		t.Error("tokens should be revoked")
	}
	if len(h.accounts.deactived) != 1 {
		t.Errorf("deactivations = %v", h.accounts.deactived)
	}
}

func TestListInbox(t *testing.T) {
	h := setup(t)
	h.inbox.messages = []platform.Message{
		{NativeID: "1", Content: "first"},
		{NativeID: "2", Content: "second"},
	}

	resp := h.do(t, http.MethodGet, "/api/inbox/twitter/acct-1?limit=10", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d", body.Count)
	}
}

func TestReplyValidation(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodPost, "/api/inbox/twitter/acct-1/reply", map[string]string{"content": "no id"}, true)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestReply(t *testing.T) {
	h := setup(t)
	h.manager.reply = &platform.Message{NativeID: "r-1", Content: "thanks"}

	resp := h.do(t, http.MethodPost, "/api/inbox/twitter/acct-1/reply", map[string]string{
		"message_id": "900",
		"content":    "thanks",
	}, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListPlatforms(t *testing.T) {
	h := setup(t)
	resp := h.do(t, http.MethodGet, "/api/platforms", nil, true)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Platforms []struct {
			Platform platform.Type `json:"platform"`
		} `json:"platforms"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Platforms) != 2 {
		t.Errorf("platforms = %+v", body.Platforms)
	}
}

// Package mastodon implements the Mastodon adapter. Mastodon is
// instance-based: every URL is built from the account's home instance, and
// access tokens never expire, so refresh is a local no-op.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/pkg/clients"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

const defaultScopes = "read write push"

// Provider is the Mastodon adapter for one connected account on one
// instance.
type Provider struct {
	cfg  platform.Config
	auth platform.AuthState

	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
	limiter      *ratelimit.Limiter
	logger       logging.Logger

	instanceURL string
	accountID   string // cached verify_credentials id
}

var (
	_ platform.Provider           = (*Provider)(nil)
	_ platform.NotificationSyncer = (*Provider)(nil)
	_ platform.ConversationSyncer = (*Provider)(nil)
	_ platform.MentionSyncer      = (*Provider)(nil)
	_ platform.Replier            = (*Provider)(nil)
)

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(p *Provider) {
		p.httpExecutor = clients.NewHTTPExecutor(cfg)
		p.shouldRetry = cfg.ShouldRetry
	}
}

// New creates a Mastodon provider. cfg.InstanceURL names the account's home
// instance and is required; the limiter is shared process-wide.
func New(cfg platform.Config, auth platform.AuthState, limiter *ratelimit.Limiter, logger logging.Logger, opts ...Option) *Provider {
	defaultConfig := clients.DefaultHTTPExecutorConfig()
	p := &Provider{
		cfg:          cfg,
		auth:         auth,
		client:       clients.NewHTTPClient(30 * time.Second),
		httpExecutor: clients.NewHTTPExecutor(defaultConfig),
		shouldRetry:  defaultConfig.ShouldRetry,
		limiter:      limiter,
		logger:       logger,
		instanceURL:  strings.TrimSuffix(cfg.InstanceURL, "/"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Platform() platform.Type { return platform.Mastodon }

func (p *Provider) Capabilities() platform.Capabilities {
	return platform.CapabilitiesFor(platform.Mastodon)
}

// AuthorizationURL builds the instance's consent URL. Mastodon does not use
// PKCE; the challenge argument is ignored.
func (p *Provider) AuthorizationURL(state, _ string) (string, error) {
	if p.instanceURL == "" {
		return "", fmt.Errorf("mastodon instance URL not configured")
	}
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {p.cfg.ClientID},
		"redirect_uri":  {p.cfg.RedirectURI},
		"scope":         {defaultScopes},
		"state":         {state},
	}
	return p.instanceURL + "/oauth/authorize?" + q.Encode(), nil
}

// ExchangeCode swaps the authorization code for an access token. Mastodon
// tokens carry no expiry, so the resulting state is marked non-expiring.
func (p *Provider) ExchangeCode(ctx context.Context, code, _ string) (*platform.AuthState, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"redirect_uri":  {p.cfg.RedirectURI},
		"scope":         {defaultScopes},
	}

	resp, err := p.doPlainRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.instanceURL+"/oauth/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &platform.AuthExchangeError{Platform: platform.Mastodon, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	p.auth = platform.AuthState{
		AccessToken: tok.AccessToken,
		Scope:       tok.Scope,
		Extra: map[string]string{
			platform.ExtraTokenExpiry: platform.TokenExpiryNone,
			"instance_url":            p.instanceURL,
		},
	}
	state := p.auth
	return &state, nil
}

// RefreshAccessToken is a no-op: Mastodon tokens never expire. The current
// state is returned without any network call.
func (p *Provider) RefreshAccessToken(_ context.Context) (*platform.AuthState, error) {
	if p.auth.AccessToken == "" {
		return nil, &platform.AuthenticationError{Platform: platform.Mastodon, Reason: "no access token held"}
	}
	state := p.auth
	return &state, nil
}

func (p *Provider) IsAuthenticated() bool {
	return p.auth.Authenticated(time.Now())
}

func (p *Provider) AuthState() platform.AuthState {
	return p.auth
}

func (p *Provider) doPlainRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	return clients.ExecuteHTTP(ctx, p.httpExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if p.shouldRetry != nil && p.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}

func (p *Provider) doRequest(ctx context.Context, endpoint string, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var out *http.Response
	err := p.limiter.Execute(ctx, platform.Mastodon, endpoint, func(ctx context.Context) error {
		resp, err := p.doPlainRequest(ctx, build)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			retry := rateLimitReset(resp)
			_ = resp.Body.Close()
			return &ratelimit.ThrottledError{RetryAfter: retry}
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rateLimitReset reads Mastodon's X-RateLimit-Reset (RFC3339) header.
func rateLimitReset(resp *http.Response) time.Duration {
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if at, err := time.Parse(time.RFC3339, v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func (p *Provider) bearer(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.auth.AccessToken)
}

type status struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Account   struct {
		ID          string `json:"id"`
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
	} `json:"account"`
	InReplyToID     string `json:"in_reply_to_id"`
	FavouritesCount int    `json:"favourites_count"`
	ReblogsCount    int    `json:"reblogs_count"`
	RepliesCount    int    `json:"replies_count"`
	ScheduledAt     string `json:"scheduled_at"`
}

type statusRequest struct {
	Status      string   `json:"status"`
	InReplyToID string   `json:"in_reply_to_id,omitempty"`
	MediaIDs    []string `json:"media_ids,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
	ScheduledAt string   `json:"scheduled_at,omitempty"`
}

func failedResponse(msg string) platform.PostResponse {
	return platform.PostResponse{
		Status:       platform.PostFailed,
		ErrorMessage: msg,
		CreatedAt:    time.Now(),
	}
}

func (p *Provider) CreatePost(ctx context.Context, post platform.Post) platform.PostResponse {
	return p.publish(ctx, post, time.Time{})
}

// SchedulePost uses Mastodon's native scheduled statuses.
func (p *Provider) SchedulePost(ctx context.Context, post platform.Post, at time.Time) platform.PostResponse {
	return p.publish(ctx, post, at)
}

func (p *Provider) publish(ctx context.Context, post platform.Post, at time.Time) platform.PostResponse {
	content := composeContent(post)
	if max := p.Capabilities().MaxCharacters; len([]rune(content)) > max {
		return failedResponse(fmt.Sprintf("content exceeds %d characters", max))
	}

	body := statusRequest{
		Status:      content,
		InReplyToID: post.ReplyToID,
		MediaIDs:    post.MediaIDs,
		Visibility:  post.Visibility,
	}
	if !at.IsZero() {
		body.ScheduledAt = at.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return failedResponse(err.Error())
	}

	resp, err := p.doRequest(ctx, "statuses.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.instanceURL+"/api/v1/statuses", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return failedResponse(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return failedResponse(fmt.Sprintf("mastodon returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var st status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return failedResponse(err.Error())
	}

	out := platform.PostResponse{
		Status:    platform.PostPublished,
		PostID:    st.ID,
		URL:       st.URL,
		CreatedAt: time.Now(),
	}
	// a scheduled_at in the response means the instance queued the status
	if st.ScheduledAt != "" || !at.IsZero() {
		out.Status = platform.PostScheduled
	}
	return out
}

func (p *Provider) DeletePost(ctx context.Context, postID string) error {
	resp, err := p.doRequest(ctx, "statuses.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "DELETE", p.instanceURL+"/api/v1/statuses/"+url.PathEscape(postID), nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return &platform.OperationError{Platform: platform.Mastodon, Op: "delete post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &platform.OperationError{Platform: platform.Mastodon, Op: "delete post", StatusCode: resp.StatusCode}
	}
	return nil
}

func (p *Provider) GetPosts(ctx context.Context, limit int) ([]platform.PostResponse, error) {
	id, err := p.resolveAccount(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 40 {
		limit = 20
	}

	resp, err := p.doRequest(ctx, "timeline", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.instanceURL+"/api/v1/accounts/"+id+"/statuses?limit="+strconv.Itoa(limit), nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "get posts", StatusCode: resp.StatusCode}
	}

	var statuses []status
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return nil, err
	}

	posts := make([]platform.PostResponse, 0, len(statuses))
	for _, st := range statuses {
		posts = append(posts, platform.PostResponse{
			Status:    platform.PostPublished,
			PostID:    st.ID,
			URL:       st.URL,
			CreatedAt: parseTime(st.CreatedAt),
			Metrics: &platform.PostMetrics{
				Likes:     st.FavouritesCount,
				Shares:    st.ReblogsCount,
				Comments:  st.RepliesCount,
				FetchedAt: time.Now(),
			},
		})
	}
	return posts, nil
}

// UploadMedia pushes the attachment through the v2 media endpoint.
func (p *Provider) UploadMedia(ctx context.Context, media platform.Media) (string, error) {
	if len(media.Data) == 0 {
		return "", &platform.OperationError{Platform: platform.Mastodon, Op: "upload media", Err: fmt.Errorf("no media bytes supplied")}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "attachment")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(media.Data); err != nil {
		return "", err
	}
	if media.AltText != "" {
		_ = mw.WriteField("description", media.AltText)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := p.doRequest(ctx, "media.upload", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.instanceURL+"/api/v2/media", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", &platform.OperationError{Platform: platform.Mastodon, Op: "upload media", Err: err}
	}
	defer resp.Body.Close()

	// 202 means the instance is still processing the attachment; the id is
	// already valid for attaching.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &platform.OperationError{Platform: platform.Mastodon, Op: "upload media", StatusCode: resp.StatusCode}
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", err
	}
	return uploaded.ID, nil
}

func (p *Provider) GetMetrics(ctx context.Context, postID string) (*platform.PostMetrics, error) {
	resp, err := p.doRequest(ctx, "timeline", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.instanceURL+"/api/v1/statuses/"+url.PathEscape(postID), nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "get metrics", StatusCode: resp.StatusCode}
	}

	var st status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &platform.PostMetrics{
		Likes:     st.FavouritesCount,
		Shares:    st.ReblogsCount,
		Comments:  st.RepliesCount,
		FetchedAt: time.Now(),
	}, nil
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	_, err := p.AccountDetails(ctx)
	return err == nil
}

func (p *Provider) RevokeTokens(ctx context.Context) bool {
	token := p.auth.AccessToken
	p.auth = platform.AuthState{}
	p.accountID = ""
	if token == "" {
		return true
	}

	form := url.Values{
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"token":         {token},
	}
	resp, err := p.doPlainRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.instanceURL+"/oauth/revoke", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		if p.logger != nil {
			p.logger.WithFields(logging.Fields{"platform": "mastodon", "error": err.Error()}).Warn("Remote token revocation failed")
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *Provider) AccountDetails(ctx context.Context) (*platform.Account, error) {
	resp, err := p.doRequest(ctx, "accounts.verify", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.instanceURL+"/api/v1/accounts/verify_credentials", nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &platform.AuthenticationError{Platform: platform.Mastodon, Reason: "token rejected"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "account details", StatusCode: resp.StatusCode}
	}

	var acct struct {
		ID             string `json:"id"`
		Acct           string `json:"acct"`
		DisplayName    string `json:"display_name"`
		Avatar         string `json:"avatar"`
		FollowersCount int    `json:"followers_count"`
		FollowingCount int    `json:"following_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return nil, err
	}
	p.accountID = acct.ID

	return &platform.Account{
		Platform:       platform.Mastodon,
		AccountID:      acct.ID,
		Username:       acct.Acct,
		DisplayName:    acct.DisplayName,
		AvatarURL:      acct.Avatar,
		FollowerCount:  acct.FollowersCount,
		FollowingCount: acct.FollowingCount,
		Active:         true,
	}, nil
}

func (p *Provider) resolveAccount(ctx context.Context) (string, error) {
	if p.accountID != "" {
		return p.accountID, nil
	}
	if _, err := p.AccountDetails(ctx); err != nil {
		return "", err
	}
	return p.accountID, nil
}

type notification struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	CreatedAt string  `json:"created_at"`
	Status    *status `json:"status"`
	Account   struct {
		ID          string `json:"id"`
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
	} `json:"account"`
}

// SyncNotifications fetches the notification stream. Mentions keep their
// own message type; everything else normalizes as a notification.
func (p *Provider) SyncNotifications(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	resp, err := p.doRequest(ctx, "notifications", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.instanceURL+"/api/v1/notifications?limit=30", nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "sync notifications", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "sync notifications", StatusCode: resp.StatusCode}
	}

	var notifications []notification
	if err := json.NewDecoder(resp.Body).Decode(&notifications); err != nil {
		return nil, err
	}

	msgs := make([]platform.Message, 0, len(notifications))
	for _, n := range notifications {
		msgType := platform.MessageNotification
		if n.Type == "mention" {
			msgType = platform.MessageMention
		}
		msg := platform.Message{
			ID:        uuid.NewString(),
			NativeID:  n.ID,
			Type:      msgType,
			Status:    "unread",
			Priority:  "normal",
			Platform:  platform.Mastodon,
			AccountID: accountID,
			UserID:    userID,
			OrgID:     orgID,
			CreatedAt: parseTime(n.CreatedAt),
			Author: platform.AuthorProfile{
				ID:        n.Account.ID,
				Username:  n.Account.Acct,
				Name:      n.Account.DisplayName,
				AvatarURL: n.Account.Avatar,
			},
		}
		if n.Status != nil {
			msg.Content = stripHTML(n.Status.Content)
			msg.ParentID = n.Status.InReplyToID
		} else {
			msg.Content = n.Type
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// SyncMentions filters the notification stream down to mentions.
func (p *Provider) SyncMentions(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	all, err := p.SyncNotifications(ctx, userID, accountID, orgID)
	if err != nil {
		return nil, err
	}
	mentions := make([]platform.Message, 0, len(all))
	for _, msg := range all {
		if msg.Type == platform.MessageMention {
			mentions = append(mentions, msg)
		}
	}
	return mentions, nil
}

// SyncConversations fetches direct-message conversations; each one is
// represented by its latest status.
func (p *Provider) SyncConversations(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	resp, err := p.doRequest(ctx, "conversations", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.instanceURL+"/api/v1/conversations?limit=30", nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "sync conversations", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "sync conversations", StatusCode: resp.StatusCode}
	}

	var conversations []struct {
		ID         string  `json:"id"`
		LastStatus *status `json:"last_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conversations); err != nil {
		return nil, err
	}

	msgs := make([]platform.Message, 0, len(conversations))
	for _, c := range conversations {
		if c.LastStatus == nil {
			continue
		}
		msgs = append(msgs, platform.Message{
			ID:        uuid.NewString(),
			NativeID:  c.LastStatus.ID,
			Type:      platform.MessageDirectMessage,
			Status:    "unread",
			Priority:  "normal",
			Platform:  platform.Mastodon,
			AccountID: accountID,
			UserID:    userID,
			OrgID:     orgID,
			Content:   stripHTML(c.LastStatus.Content),
			CreatedAt: parseTime(c.LastStatus.CreatedAt),
			Author: platform.AuthorProfile{
				ID:        c.LastStatus.Account.ID,
				Username:  c.LastStatus.Account.Acct,
				Name:      c.LastStatus.Account.DisplayName,
				AvatarURL: c.LastStatus.Account.Avatar,
			},
		})
	}
	return msgs, nil
}

// ReplyToMessage posts a reply status.
func (p *Provider) ReplyToMessage(ctx context.Context, nativeMessageID, content string) (*platform.Message, error) {
	resp := p.CreatePost(ctx, platform.Post{Content: content, ReplyToID: nativeMessageID})
	if resp.Status != platform.PostPublished {
		return nil, &platform.OperationError{Platform: platform.Mastodon, Op: "reply", Err: fmt.Errorf("%s", resp.ErrorMessage)}
	}
	return &platform.Message{
		ID:        uuid.NewString(),
		NativeID:  resp.PostID,
		Type:      platform.MessageComment,
		Status:    "sent",
		Platform:  platform.Mastodon,
		Content:   content,
		ParentID:  nativeMessageID,
		CreatedAt: time.Now(),
	}, nil
}

func composeContent(post platform.Post) string {
	content := post.Content
	for _, tag := range post.Hashtags {
		tag = strings.TrimPrefix(tag, "#")
		if tag == "" {
			continue
		}
		if !strings.Contains(content, "#"+tag) {
			content += " #" + tag
		}
	}
	return content
}

// stripHTML reduces Mastodon's HTML status bodies to plain text. Statuses
// are small; a scanner pass is enough.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(b.String()))
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}

// Package twitter implements the Twitter/X adapter: OAuth 2.0 with PKCE,
// tweet publishing, media upload, and comment/mention sync against the v2
// API.
package twitter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/pkg/clients"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

const (
	defaultAPIBase    = "https://api.twitter.com"
	defaultUploadBase = "https://upload.twitter.com"
	defaultAuthorize  = "https://twitter.com/i/oauth2/authorize"

	defaultScopes = "tweet.read tweet.write users.read offline.access"
)

// Provider is the Twitter adapter. One instance per connected account; the
// held AuthState is mutated in place on refresh.
type Provider struct {
	cfg platform.Config

	// authMu guards auth: refreshes run concurrently with request signing
	// once a background round renews an expired token mid-run.
	authMu sync.Mutex
	auth   platform.AuthState

	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
	limiter      *ratelimit.Limiter
	logger       logging.Logger

	apiBase      string
	uploadBase   string
	authorizeURL string

	// refreshGroup collapses concurrent refresh attempts into one network
	// call so parallel sync workers never race on the refresh token.
	refreshGroup singleflight.Group

	userID   string // cached /2/users/me id
	username string
}

var (
	_ platform.Provider        = (*Provider)(nil)
	_ platform.CommentSyncer   = (*Provider)(nil)
	_ platform.MentionSyncer   = (*Provider)(nil)
	_ platform.WebhookIngester = (*Provider)(nil)
	_ platform.Replier         = (*Provider)(nil)
)

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

func WithBaseURL(apiBase string) Option {
	return func(p *Provider) {
		p.apiBase = strings.TrimSuffix(apiBase, "/")
	}
}

func WithUploadBaseURL(uploadBase string) Option {
	return func(p *Provider) {
		p.uploadBase = strings.TrimSuffix(uploadBase, "/")
	}
}

func WithAuthorizeURL(authorize string) Option {
	return func(p *Provider) { p.authorizeURL = authorize }
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(p *Provider) {
		p.httpExecutor = clients.NewHTTPExecutor(cfg)
		p.shouldRetry = cfg.ShouldRetry
	}
}

// New creates a Twitter provider for one connected account. The limiter is
// shared across all providers in the process; the account's tier is applied
// to it here.
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
		apiBase:      defaultAPIBase,
		uploadBase:   defaultUploadBase,
		authorizeURL: defaultAuthorize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if limiter != nil && cfg.Tier != "" {
		limiter.UpdateTier(platform.Twitter, cfg.Tier)
	}
	return p
}

func (p *Provider) Platform() platform.Type { return platform.Twitter }

func (p *Provider) Capabilities() platform.Capabilities {
	return platform.CapabilitiesFor(platform.Twitter)
}

// AuthorizationURL builds the OAuth consent URL. Twitter requires PKCE, so
// an empty codeChallenge is a caller bug.
func (p *Provider) AuthorizationURL(state, codeChallenge string) (string, error) {
	if codeChallenge == "" {
		return "", fmt.Errorf("twitter requires a PKCE code challenge")
	}
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {p.cfg.ClientID},
		"redirect_uri":          {p.cfg.RedirectURI},
		"scope":                 {defaultScopes},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	return p.authorizeURL + "?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*platform.AuthState, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.cfg.RedirectURI},
		"code_verifier": {codeVerifier},
		"client_id":     {p.cfg.ClientID},
	}
	tok, err := p.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}

	state := platform.AuthState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second).Unix(),
		Scope:        tok.Scope,
	}
	p.setAuth(state)
	return &state, nil
}

// RefreshAccessToken renews the access token. Concurrent callers share one
// refresh round trip.
func (p *Provider) RefreshAccessToken(ctx context.Context) (*platform.AuthState, error) {
	v, err, _ := p.refreshGroup.Do("refresh", func() (interface{}, error) {
		held := p.authSnapshot()
		if held.RefreshToken == "" {
			return nil, &platform.NoRefreshTokenError{Platform: platform.Twitter}
		}
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {held.RefreshToken},
			"client_id":     {p.cfg.ClientID},
		}
		tok, err := p.tokenRequest(ctx, form)
		if err != nil {
			return nil, &platform.RefreshFailedError{Platform: platform.Twitter, Err: err}
		}

		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = held.RefreshToken
		}
		state := platform.AuthState{
			AccessToken:  tok.AccessToken,
			RefreshToken: refresh,
			ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second).Unix(),
			Scope:        tok.Scope,
		}
		p.setAuth(state)
		return &state, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*platform.AuthState), nil
}

func (p *Provider) tokenRequest(ctx context.Context, form url.Values) (*tokenResponse, error) {
	endpoint := p.apiBase + "/2/oauth2/token"
	resp, err := p.doAuthRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &platform.AuthExchangeError{Platform: platform.Twitter, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tok, nil
}

func (p *Provider) IsAuthenticated() bool {
	held := p.authSnapshot()
	return held.Authenticated(time.Now())
}

func (p *Provider) AuthState() platform.AuthState {
	return p.authSnapshot()
}

func (p *Provider) authSnapshot() platform.AuthState {
	p.authMu.Lock()
	defer p.authMu.Unlock()
	return p.auth
}

func (p *Provider) setAuth(a platform.AuthState) {
	p.authMu.Lock()
	p.auth = a
	p.authMu.Unlock()
}

// doAuthRequest runs token endpoints through the retry executor but outside
// the rate limiter: auth traffic is not budgeted per endpoint.
func (p *Provider) doAuthRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
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

// doRequest runs one budgeted API call: admission through the shared rate
// limiter, then the retry executor. A 429 from Twitter surfaces as a
// throttle error so the limiter forces the endpoint key into cooldown.
func (p *Provider) doRequest(ctx context.Context, endpoint string, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var out *http.Response
	err := p.limiter.Execute(ctx, platform.Twitter, endpoint, func(ctx context.Context) error {
		resp, err := p.doAuthRequest(ctx, build)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			retry := retryAfter(resp)
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

// retryAfter reads Twitter's throttle headers: Retry-After in seconds, or
// x-rate-limit-reset as a unix timestamp.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

func (p *Provider) bearer(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.authSnapshot().AccessToken)
}

type tweetRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
}

type tweetMetrics struct {
	ImpressionCount int `json:"impression_count"`
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	QuoteCount      int `json:"quote_count"`
}

type tweet struct {
	ID             string        `json:"id"`
	Text           string        `json:"text"`
	AuthorID       string        `json:"author_id"`
	ConversationID string        `json:"conversation_id"`
	CreatedAt      string        `json:"created_at"`
	PublicMetrics  *tweetMetrics `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type twitterUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   *struct {
		FollowersCount int `json:"followers_count"`
		FollowingCount int `json:"following_count"`
	} `json:"public_metrics"`
}

func failedResponse(msg string) platform.PostResponse {
	return platform.PostResponse{
		Status:       platform.PostFailed,
		ErrorMessage: msg,
		CreatedAt:    time.Now(),
	}
}

// CreatePost publishes a tweet. Failures are reported in the response, not
// as an error, so one bad account never aborts a multi-platform publish.
func (p *Provider) CreatePost(ctx context.Context, post platform.Post) platform.PostResponse {
	content := composeContent(post)
	if max := p.Capabilities().MaxCharacters; len([]rune(content)) > max {
		return failedResponse(fmt.Sprintf("content exceeds %d characters", max))
	}

	body := tweetRequest{Text: content}
	if post.ReplyToID != "" {
		body.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: post.ReplyToID}
	}
	if len(post.MediaIDs) > 0 {
		body.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: post.MediaIDs}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return failedResponse(err.Error())
	}

	resp, err := p.doRequest(ctx, "tweets.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/2/tweets", bytes.NewReader(payload))
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

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return failedResponse(fmt.Sprintf("twitter returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var created struct {
		Data tweet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return failedResponse(err.Error())
	}

	return platform.PostResponse{
		Status:    platform.PostPublished,
		PostID:    created.Data.ID,
		URL:       "https://twitter.com/i/web/status/" + created.Data.ID,
		CreatedAt: time.Now(),
	}
}

// SchedulePost is unsupported on Twitter's public API; callers fall back to
// scheduling on their side and publishing at the due time.
func (p *Provider) SchedulePost(_ context.Context, _ platform.Post, _ time.Time) platform.PostResponse {
	return failedResponse("twitter does not support native post scheduling")
}

func (p *Provider) DeletePost(ctx context.Context, postID string) error {
	resp, err := p.doRequest(ctx, "tweets.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "DELETE", p.apiBase+"/2/tweets/"+url.PathEscape(postID), nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return &platform.OperationError{Platform: platform.Twitter, Op: "delete post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &platform.OperationError{Platform: platform.Twitter, Op: "delete post", StatusCode: resp.StatusCode}
	}
	return nil
}

func (p *Provider) GetPosts(ctx context.Context, limit int) ([]platform.PostResponse, error) {
	userID, err := p.resolveUser(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := url.Values{
		"max_results":  {strconv.Itoa(limit)},
		"tweet.fields": {"created_at,public_metrics"},
	}
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/2/users/"+userID+"/tweets?"+q.Encode(), nil)
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
		return nil, &platform.OperationError{Platform: platform.Twitter, Op: "get posts", StatusCode: resp.StatusCode}
	}

	var out struct {
		Data []tweet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	posts := make([]platform.PostResponse, 0, len(out.Data))
	for _, tw := range out.Data {
		pr := platform.PostResponse{
			Status:    platform.PostPublished,
			PostID:    tw.ID,
			URL:       "https://twitter.com/i/web/status/" + tw.ID,
			CreatedAt: parseTime(tw.CreatedAt),
		}
		if tw.PublicMetrics != nil {
			pr.Metrics = metricsFrom(tw.PublicMetrics)
		}
		posts = append(posts, pr)
	}
	return posts, nil
}

// UploadMedia pushes raw bytes through the v1.1 media endpoint and returns
// the media id to attach to a tweet.
func (p *Provider) UploadMedia(ctx context.Context, media platform.Media) (string, error) {
	if len(media.Data) == 0 {
		return "", &platform.OperationError{Platform: platform.Twitter, Op: "upload media", Err: fmt.Errorf("no media bytes supplied")}
	}

	form := url.Values{"media_data": {base64.StdEncoding.EncodeToString(media.Data)}}
	resp, err := p.doRequest(ctx, "media.upload", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.uploadBase+"/1.1/media/upload.json", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", &platform.OperationError{Platform: platform.Twitter, Op: "upload media", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &platform.OperationError{Platform: platform.Twitter, Op: "upload media", StatusCode: resp.StatusCode}
	}

	var uploaded struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", err
	}
	return uploaded.MediaIDString, nil
}

func (p *Provider) GetMetrics(ctx context.Context, postID string) (*platform.PostMetrics, error) {
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/2/tweets/"+url.PathEscape(postID)+"?tweet.fields=public_metrics", nil)
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
		return nil, &platform.OperationError{Platform: platform.Twitter, Op: "get metrics", StatusCode: resp.StatusCode}
	}

	var out struct {
		Data tweet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Data.PublicMetrics == nil {
		return &platform.PostMetrics{FetchedAt: time.Now()}, nil
	}
	return metricsFrom(out.Data.PublicMetrics), nil
}

func metricsFrom(m *tweetMetrics) *platform.PostMetrics {
	return &platform.PostMetrics{
		Impressions: m.ImpressionCount,
		Likes:       m.LikeCount,
		Shares:      m.RetweetCount + m.QuoteCount,
		Comments:    m.ReplyCount,
		FetchedAt:   time.Now(),
	}
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	_, err := p.AccountDetails(ctx)
	return err == nil
}

// RevokeTokens revokes the access token remotely and always clears local
// state, so the credential cannot be reused from this process even when the
// remote call fails.
func (p *Provider) RevokeTokens(ctx context.Context) bool {
	token := p.authSnapshot().AccessToken
	p.setAuth(platform.AuthState{})
	p.userID = ""
	p.username = ""
	if token == "" {
		return true
	}

	form := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
		"client_id":       {p.cfg.ClientID},
	}
	resp, err := p.doAuthRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/2/oauth2/revoke", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		if p.logger != nil {
			p.logger.WithFields(logging.Fields{"platform": "twitter", "error": err.Error()}).Warn("Remote token revocation failed")
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *Provider) AccountDetails(ctx context.Context) (*platform.Account, error) {
	user, err := p.fetchMe(ctx)
	if err != nil {
		return nil, err
	}
	acct := &platform.Account{
		Platform:    platform.Twitter,
		AccountID:   user.ID,
		Username:    user.Username,
		DisplayName: user.Name,
		AvatarURL:   user.ProfileImageURL,
		Active:      true,
	}
	if user.PublicMetrics != nil {
		acct.FollowerCount = user.PublicMetrics.FollowersCount
		acct.FollowingCount = user.PublicMetrics.FollowingCount
	}
	return acct, nil
}

func (p *Provider) fetchMe(ctx context.Context) (*twitterUser, error) {
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/2/users/me?user.fields=profile_image_url,public_metrics", nil)
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
		return nil, &platform.AuthenticationError{Platform: platform.Twitter, Reason: "token rejected"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.Twitter, Op: "account details", StatusCode: resp.StatusCode}
	}

	var out struct {
		Data twitterUser `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	p.userID = out.Data.ID
	p.username = out.Data.Username
	return &out.Data, nil
}

func (p *Provider) resolveUser(ctx context.Context) (string, error) {
	if p.userID != "" {
		return p.userID, nil
	}
	if _, err := p.fetchMe(ctx); err != nil {
		return "", err
	}
	return p.userID, nil
}

// SyncComments fetches recent replies to the account via recent search.
func (p *Provider) SyncComments(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	if _, err := p.resolveUser(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"query":        {fmt.Sprintf("to:%s is:reply", p.username)},
		"tweet.fields": {"author_id,conversation_id,created_at,referenced_tweets"},
		"expansions":   {"author_id"},
		"user.fields":  {"username,name,profile_image_url"},
	}
	msgs, err := p.fetchTweets(ctx, "tweets.search", p.apiBase+"/2/tweets/search/recent?"+q.Encode(), platform.MessageComment, userID, accountID, orgID)
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.Twitter, Op: "sync comments", Err: err}
	}
	return msgs, nil
}

// SyncMentions fetches the account's mention timeline.
func (p *Provider) SyncMentions(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	id, err := p.resolveUser(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"tweet.fields": {"author_id,conversation_id,created_at"},
		"expansions":   {"author_id"},
		"user.fields":  {"username,name,profile_image_url"},
	}
	msgs, err := p.fetchTweets(ctx, "tweets.search", p.apiBase+"/2/users/"+id+"/mentions?"+q.Encode(), platform.MessageMention, userID, accountID, orgID)
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.Twitter, Op: "sync mentions", Err: err}
	}
	return msgs, nil
}

func (p *Provider) fetchTweets(ctx context.Context, endpoint, fullURL string, msgType platform.MessageType, userID, accountID, orgID string) ([]platform.Message, error) {
	resp, err := p.doRequest(ctx, endpoint, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
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
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out struct {
		Data     []tweet `json:"data"`
		Includes struct {
			Users []twitterUser `json:"users"`
		} `json:"includes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	authors := make(map[string]twitterUser, len(out.Includes.Users))
	for _, u := range out.Includes.Users {
		authors[u.ID] = u
	}

	msgs := make([]platform.Message, 0, len(out.Data))
	for _, tw := range out.Data {
		msg := platform.Message{
			ID:        uuid.NewString(),
			NativeID:  tw.ID,
			Type:      msgType,
			Status:    "unread",
			Priority:  "normal",
			Platform:  platform.Twitter,
			AccountID: accountID,
			UserID:    userID,
			OrgID:     orgID,
			Content:   tw.Text,
			ParentID:  repliedTo(tw),
			CreatedAt: parseTime(tw.CreatedAt),
		}
		if author, ok := authors[tw.AuthorID]; ok {
			msg.Author = platform.AuthorProfile{
				ID:        author.ID,
				Username:  author.Username,
				Name:      author.Name,
				AvatarURL: author.ProfileImageURL,
			}
		} else {
			msg.Author = platform.AuthorProfile{ID: tw.AuthorID}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func repliedTo(tw tweet) string {
	for _, ref := range tw.ReferencedTweets {
		if ref.Type == "replied_to" {
			return ref.ID
		}
	}
	return ""
}

// HandleWebhookEvent normalizes an Account Activity payload. Payloads the
// adapter does not understand yield (nil, nil) so the engine can ignore
// them without treating unknown event shapes as failures.
func (p *Provider) HandleWebhookEvent(_ context.Context, event map[string]interface{}, accountID, userID, orgID string) (*platform.Message, error) {
	events, ok := event["tweet_create_events"].([]interface{})
	if !ok || len(events) == 0 {
		return nil, nil
	}
	raw, ok := events[0].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	nativeID, _ := raw["id_str"].(string)
	text, _ := raw["text"].(string)
	if nativeID == "" {
		return nil, nil
	}

	msgType := platform.MessageMention
	parentID := ""
	if reply, ok := raw["in_reply_to_status_id_str"].(string); ok && reply != "" {
		msgType = platform.MessageComment
		parentID = reply
	}

	msg := &platform.Message{
		ID:        uuid.NewString(),
		NativeID:  nativeID,
		Type:      msgType,
		Status:    "unread",
		Priority:  "normal",
		Platform:  platform.Twitter,
		AccountID: accountID,
		UserID:    userID,
		OrgID:     orgID,
		Content:   text,
		ParentID:  parentID,
		CreatedAt: time.Now(),
	}
	if user, ok := raw["user"].(map[string]interface{}); ok {
		msg.Author.ID, _ = user["id_str"].(string)
		msg.Author.Username, _ = user["screen_name"].(string)
		msg.Author.Name, _ = user["name"].(string)
		msg.Author.AvatarURL, _ = user["profile_image_url_https"].(string)
	}
	return msg, nil
}

// ReplyToMessage publishes a reply tweet and returns it as an outbound
// comment.
func (p *Provider) ReplyToMessage(ctx context.Context, nativeMessageID, content string) (*platform.Message, error) {
	resp := p.CreatePost(ctx, platform.Post{Content: content, ReplyToID: nativeMessageID})
	if resp.Status != platform.PostPublished {
		return nil, &platform.OperationError{Platform: platform.Twitter, Op: "reply", Err: fmt.Errorf("%s", resp.ErrorMessage)}
	}
	return &platform.Message{
		ID:        uuid.NewString(),
		NativeID:  resp.PostID,
		Type:      platform.MessageComment,
		Status:    "sent",
		Platform:  platform.Twitter,
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

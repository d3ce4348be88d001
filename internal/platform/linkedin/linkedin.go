// Package linkedin implements the LinkedIn adapter: three-legged OAuth 2.0
// with refresh tokens, UGC post publishing, and comment/private-message
// sync.
package linkedin

import (
	"bytes"
	"context"
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
	defaultAPIBase  = "https://api.linkedin.com"
	defaultAuthBase = "https://www.linkedin.com"

	defaultScopes = "openid profile w_member_social r_member_social"
)

// Provider is the LinkedIn adapter for one connected member account.
type Provider struct {
	cfg platform.Config

	// authMu guards auth against refreshes racing with request signing.
	authMu sync.Mutex
	auth   platform.AuthState

	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
	limiter      *ratelimit.Limiter
	logger       logging.Logger

	apiBase  string
	authBase string

	refreshGroup singleflight.Group

	personURN string // cached urn:li:person:{id}
}

var (
	_ platform.Provider             = (*Provider)(nil)
	_ platform.CommentSyncer        = (*Provider)(nil)
	_ platform.PrivateMessageSyncer = (*Provider)(nil)
	_ platform.Replier              = (*Provider)(nil)
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

func WithAuthBaseURL(authBase string) Option {
	return func(p *Provider) {
		p.authBase = strings.TrimSuffix(authBase, "/")
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(p *Provider) {
		p.httpExecutor = clients.NewHTTPExecutor(cfg)
		p.shouldRetry = cfg.ShouldRetry
	}
}

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
		authBase:     defaultAuthBase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Platform() platform.Type { return platform.LinkedIn }

func (p *Provider) Capabilities() platform.Capabilities {
	return platform.CapabilitiesFor(platform.LinkedIn)
}

// AuthorizationURL builds the consent URL. LinkedIn does not support PKCE;
// the challenge argument is ignored.
func (p *Provider) AuthorizationURL(state, _ string) (string, error) {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {p.cfg.ClientID},
		"redirect_uri":  {p.cfg.RedirectURI},
		"scope":         {defaultScopes},
		"state":         {state},
	}
	return p.authBase + "/oauth/v2/authorization?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`
}

func (p *Provider) ExchangeCode(ctx context.Context, code, _ string) (*platform.AuthState, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.cfg.RedirectURI},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
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

func (p *Provider) RefreshAccessToken(ctx context.Context) (*platform.AuthState, error) {
	v, err, _ := p.refreshGroup.Do("refresh", func() (interface{}, error) {
		held := p.authSnapshot()
		if held.RefreshToken == "" {
			return nil, &platform.NoRefreshTokenError{Platform: platform.LinkedIn}
		}
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {held.RefreshToken},
			"client_id":     {p.cfg.ClientID},
			"client_secret": {p.cfg.ClientSecret},
		}
		tok, err := p.tokenRequest(ctx, form)
		if err != nil {
			return nil, &platform.RefreshFailedError{Platform: platform.LinkedIn, Err: err}
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
	endpoint := p.authBase + "/oauth/v2/accessToken"
	resp, err := p.doPlainRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
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
		return nil, &platform.AuthExchangeError{Platform: platform.LinkedIn, StatusCode: resp.StatusCode, Body: string(body)}
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
	err := p.limiter.Execute(ctx, platform.LinkedIn, endpoint, func(ctx context.Context) error {
		resp, err := p.doPlainRequest(ctx, build)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			var retry time.Duration
			if v := resp.Header.Get("Retry-After"); v != "" {
				if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
					retry = time.Duration(secs) * time.Second
				}
			}
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

func (p *Provider) bearer(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.authSnapshot().AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}

func failedResponse(msg string) platform.PostResponse {
	return platform.PostResponse{
		Status:       platform.PostFailed,
		ErrorMessage: msg,
		CreatedAt:    time.Now(),
	}
}

// ugcPost is the share payload for the classic UGC posts endpoint.
type ugcPost struct {
	Author          string `json:"author"`
	LifecycleState  string `json:"lifecycleState"`
	SpecificContent struct {
		ShareContent struct {
			ShareCommentary struct {
				Text string `json:"text"`
			} `json:"shareCommentary"`
			ShareMediaCategory string `json:"shareMediaCategory"`
		} `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Visibility struct {
		MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
	} `json:"visibility"`
}

func (p *Provider) CreatePost(ctx context.Context, post platform.Post) platform.PostResponse {
	content := composeContent(post)
	if max := p.Capabilities().MaxCharacters; len([]rune(content)) > max {
		return failedResponse(fmt.Sprintf("content exceeds %d characters", max))
	}

	author, err := p.resolvePerson(ctx)
	if err != nil {
		return failedResponse(err.Error())
	}

	var body ugcPost
	body.Author = author
	body.LifecycleState = "PUBLISHED"
	body.SpecificContent.ShareContent.ShareCommentary.Text = content
	body.SpecificContent.ShareContent.ShareMediaCategory = "NONE"
	visibility := "PUBLIC"
	if post.Visibility == "connections" {
		visibility = "CONNECTIONS"
	}
	body.Visibility.MemberNetworkVisibility = visibility

	payload, err := json.Marshal(body)
	if err != nil {
		return failedResponse(err.Error())
	}

	resp, err := p.doRequest(ctx, "posts.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v2/ugcPosts", bytes.NewReader(payload))
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
		return failedResponse(fmt.Sprintf("linkedin returned status %d: %s", resp.StatusCode, string(raw)))
	}

	// the created post URN arrives in the X-RestLi-Id header
	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		var created struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			postID = created.ID
		}
	}

	return platform.PostResponse{
		Status:    platform.PostPublished,
		PostID:    postID,
		URL:       "https://www.linkedin.com/feed/update/" + postID,
		CreatedAt: time.Now(),
	}
}

// SchedulePost is unsupported on LinkedIn's member API.
func (p *Provider) SchedulePost(_ context.Context, _ platform.Post, _ time.Time) platform.PostResponse {
	return failedResponse("linkedin does not support native post scheduling")
}

func (p *Provider) DeletePost(ctx context.Context, postID string) error {
	resp, err := p.doRequest(ctx, "posts.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "DELETE", p.apiBase+"/v2/ugcPosts/"+url.PathEscape(postID), nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return &platform.OperationError{Platform: platform.LinkedIn, Op: "delete post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return &platform.OperationError{Platform: platform.LinkedIn, Op: "delete post", StatusCode: resp.StatusCode}
	}
	return nil
}

type ugcElement struct {
	ID              string `json:"id"`
	SpecificContent struct {
		ShareContent struct {
			ShareCommentary struct {
				Text string `json:"text"`
			} `json:"shareCommentary"`
		} `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Created struct {
		Time int64 `json:"time"` // epoch millis
	} `json:"created"`
}

func (p *Provider) GetPosts(ctx context.Context, limit int) ([]platform.PostResponse, error) {
	author, err := p.resolvePerson(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	q := url.Values{
		"q":       {"authors"},
		"authors": {"List(" + author + ")"},
		"count":   {strconv.Itoa(limit)},
	}
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/v2/ugcPosts?"+q.Encode(), nil)
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
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "get posts", StatusCode: resp.StatusCode}
	}

	var out struct {
		Elements []ugcElement `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	posts := make([]platform.PostResponse, 0, len(out.Elements))
	for _, el := range out.Elements {
		posts = append(posts, platform.PostResponse{
			Status:    platform.PostPublished,
			PostID:    el.ID,
			URL:       "https://www.linkedin.com/feed/update/" + el.ID,
			CreatedAt: time.UnixMilli(el.Created.Time),
		})
	}
	return posts, nil
}

// UploadMedia registers an upload slot and pushes the bytes to the returned
// URL. Returns the asset URN to reference from a post.
func (p *Provider) UploadMedia(ctx context.Context, media platform.Media) (string, error) {
	if len(media.Data) == 0 {
		return "", &platform.OperationError{Platform: platform.LinkedIn, Op: "upload media", Err: fmt.Errorf("no media bytes supplied")}
	}
	author, err := p.resolvePerson(ctx)
	if err != nil {
		return "", err
	}

	register := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   author,
		},
	}
	payload, err := json.Marshal(register)
	if err != nil {
		return "", err
	}

	resp, err := p.doRequest(ctx, "media.upload", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v2/assets?action=registerUpload", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", &platform.OperationError{Platform: platform.LinkedIn, Op: "upload media", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &platform.OperationError{Platform: platform.LinkedIn, Op: "upload media", StatusCode: resp.StatusCode}
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return "", err
	}
	uploadURL := registered.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" {
		return "", &platform.OperationError{Platform: platform.LinkedIn, Op: "upload media", Err: fmt.Errorf("no upload url in register response")}
	}

	put, err := p.doPlainRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, bytes.NewReader(media.Data))
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		req.Header.Set("Content-Type", media.MimeType)
		return req, nil
	})
	if err != nil {
		return "", &platform.OperationError{Platform: platform.LinkedIn, Op: "upload media", Err: err}
	}
	defer put.Body.Close()

	if put.StatusCode != http.StatusCreated && put.StatusCode != http.StatusOK {
		return "", &platform.OperationError{Platform: platform.LinkedIn, Op: "upload media", StatusCode: put.StatusCode}
	}
	return registered.Value.Asset, nil
}

func (p *Provider) GetMetrics(ctx context.Context, postID string) (*platform.PostMetrics, error) {
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/v2/socialActions/"+url.PathEscape(postID), nil)
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
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "get metrics", StatusCode: resp.StatusCode}
	}

	var out struct {
		LikesSummary struct {
			TotalLikes int `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalFirstLevelComments int `json:"totalFirstLevelComments"`
		} `json:"commentsSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &platform.PostMetrics{
		Likes:     out.LikesSummary.TotalLikes,
		Comments:  out.CommentsSummary.TotalFirstLevelComments,
		FetchedAt: time.Now(),
	}, nil
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	_, err := p.AccountDetails(ctx)
	return err == nil
}

// RevokeTokens clears local state. LinkedIn exposes no public revocation
// endpoint for member tokens, so local clearing is the whole operation.
func (p *Provider) RevokeTokens(_ context.Context) bool {
	p.setAuth(platform.AuthState{})
	p.personURN = ""
	return true
}

func (p *Provider) AccountDetails(ctx context.Context) (*platform.Account, error) {
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/v2/userinfo", nil)
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
		return nil, &platform.AuthenticationError{Platform: platform.LinkedIn, Reason: "token rejected"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "account details", StatusCode: resp.StatusCode}
	}

	var userinfo struct {
		Sub        string `json:"sub"`
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userinfo); err != nil {
		return nil, err
	}
	p.personURN = "urn:li:person:" + userinfo.Sub

	return &platform.Account{
		Platform:    platform.LinkedIn,
		AccountID:   userinfo.Sub,
		Username:    userinfo.Sub,
		DisplayName: userinfo.Name,
		AvatarURL:   userinfo.Picture,
		Active:      true,
	}, nil
}

func (p *Provider) resolvePerson(ctx context.Context) (string, error) {
	if p.personURN != "" {
		return p.personURN, nil
	}
	if _, err := p.AccountDetails(ctx); err != nil {
		return "", err
	}
	return p.personURN, nil
}

type comment struct {
	ID      string `json:"id"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	Actor   string `json:"actor"`
	Created struct {
		Time int64 `json:"time"`
	} `json:"created"`
	Object string `json:"object"`
}

// SyncComments walks the account's recent posts and collects first-level
// comments on each.
func (p *Provider) SyncComments(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	posts, err := p.GetPosts(ctx, 5)
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "sync comments", Err: err}
	}

	var msgs []platform.Message
	for _, post := range posts {
		comments, err := p.fetchComments(ctx, post.PostID)
		if err != nil {
			if p.logger != nil {
				p.logger.WithFields(logging.Fields{
					"platform": "linkedin",
					"post_id":  post.PostID,
					"error":    err.Error(),
				}).Warn("Skipping comments for post")
			}
			continue
		}
		for _, c := range comments {
			msgs = append(msgs, platform.Message{
				ID:        uuid.NewString(),
				NativeID:  c.ID,
				Type:      platform.MessageComment,
				Status:    "unread",
				Priority:  "normal",
				Platform:  platform.LinkedIn,
				AccountID: accountID,
				UserID:    userID,
				OrgID:     orgID,
				Content:   c.Message.Text,
				ParentID:  post.PostID,
				CreatedAt: time.UnixMilli(c.Created.Time),
				Author:    platform.AuthorProfile{ID: c.Actor},
			})
		}
	}
	return msgs, nil
}

func (p *Provider) fetchComments(ctx context.Context, postURN string) ([]comment, error) {
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/v2/socialActions/"+url.PathEscape(postURN)+"/comments", nil)
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
		Elements []comment `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Elements, nil
}

// SyncPrivateMessages fetches the member's message conversations and
// normalizes the latest event of each.
func (p *Provider) SyncPrivateMessages(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error) {
	resp, err := p.doRequest(ctx, "*", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/v2/conversations?q=participants&count=30", nil)
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		return req, nil
	})
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "sync private messages", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "sync private messages", StatusCode: resp.StatusCode}
	}

	var out struct {
		Elements []struct {
			ID     string `json:"id"`
			Events []struct {
				ID        string `json:"id"`
				From      string `json:"from"`
				CreatedAt int64  `json:"createdAt"`
				Body      struct {
					Text string `json:"text"`
				} `json:"body"`
			} `json:"events"`
		} `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	msgs := make([]platform.Message, 0, len(out.Elements))
	for _, conv := range out.Elements {
		if len(conv.Events) == 0 {
			continue
		}
		ev := conv.Events[0]
		msgs = append(msgs, platform.Message{
			ID:        uuid.NewString(),
			NativeID:  ev.ID,
			Type:      platform.MessageDirectMessage,
			Status:    "unread",
			Priority:  "normal",
			Platform:  platform.LinkedIn,
			AccountID: accountID,
			UserID:    userID,
			OrgID:     orgID,
			Content:   ev.Body.Text,
			CreatedAt: time.UnixMilli(ev.CreatedAt),
			Author:    platform.AuthorProfile{ID: ev.From},
		})
	}
	return msgs, nil
}

// ReplyToMessage comments on the post or comment the message came from.
func (p *Provider) ReplyToMessage(ctx context.Context, nativeMessageID, content string) (*platform.Message, error) {
	author, err := p.resolvePerson(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"actor":   author,
		"message": map[string]string{"text": content},
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.doRequest(ctx, "posts.write", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v2/socialActions/"+url.PathEscape(nativeMessageID)+"/comments", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		p.bearer(req)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "reply", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &platform.OperationError{Platform: platform.LinkedIn, Op: "reply", StatusCode: resp.StatusCode}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, err
	}
	return &platform.Message{
		ID:        uuid.NewString(),
		NativeID:  created.ID,
		Type:      platform.MessageComment,
		Status:    "sent",
		Platform:  platform.LinkedIn,
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

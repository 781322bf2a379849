package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrymomot/postflow/pkg/media"
	"github.com/dmitrymomot/postflow/pkg/publisher"
	"github.com/dmitrymomot/postflow/pkg/queue"
)

// Platform is the registry key posts select this publisher by.
const Platform = "facebook"

// GraphAPIVersion pins the Graph API version all calls use.
const GraphAPIVersion = "v21.0"

// DefaultBaseURL is the production Graph API endpoint.
const DefaultBaseURL = "https://graph.facebook.com/" + GraphAPIVersion

// linkPattern finds the first URL in post text for link-preview posts.
var linkPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// GroupPrefix marks a post account as a Group feed target. The remainder of
// the account is the group id, and the stored credential for that account
// must be a user token with publish_to_groups. Accounts without the prefix
// are Page ids.
const GroupPrefix = "group:"

// Client publishes posts to Facebook Pages and Groups. It implements
// publisher.Publisher and is safe for concurrent use.
type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	creds      publisher.CredentialProvider
	media      media.Resolver
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph API endpoint. Test seam.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMediaResolver wires a resolver that turns media references into
// publicly fetchable URLs before they are handed to the Graph API.
func WithMediaResolver(r media.Resolver) Option {
	return func(c *Client) {
		c.media = r
	}
}

// New creates a Facebook publisher. The credential provider supplies page
// access tokens keyed by the post's account (the Page id).
func New(appID, appSecret string, creds publisher.CredentialProvider, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential provider cannot be nil")
	}

	c := &Client{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   DefaultBaseURL,
		creds:     creds,
		media:     media.Passthrough{},
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Platform implements publisher.Publisher.
func (c *Client) Platform() string { return Platform }

// Publish implements publisher.Publisher. The account is the Page id.
func (c *Client) Publish(ctx context.Context, post queue.Post) (string, error) {
	token, err := c.creds.Token(ctx, Platform, post.Account)
	if err != nil {
		return "", publisher.NewError(publisher.ClassAuthExpired, 0, "no valid access token", err)
	}

	if groupID, ok := strings.CutPrefix(post.Account, GroupPrefix); ok {
		return c.publishGroup(ctx, token, groupID, post)
	}

	switch {
	case len(post.MediaRefs) > 0:
		imageURL, err := c.media.ResolveURL(ctx, post.MediaRefs[0])
		if err != nil {
			return "", fmt.Errorf("resolve media ref %q: %w", post.MediaRefs[0], err)
		}
		return c.publishPhoto(ctx, token, post.Account, post.Content, imageURL)
	default:
		if link := linkPattern.FindString(post.Content); link != "" {
			return c.publishLink(ctx, token, post.Account, post.Content, strings.TrimRight(link, ".,;:!?"))
		}
		return c.publishText(ctx, token, post.Account, post.Content)
	}
}

// RefreshCredential implements publisher.Publisher.
func (c *Client) RefreshCredential(ctx context.Context, account string) error {
	if _, err := c.creds.Refresh(ctx, Platform, account); err != nil {
		return fmt.Errorf("refresh facebook credential for %s: %w", account, err)
	}
	return nil
}

func (c *Client) publishText(ctx context.Context, token *oauth2.Token, pageID, text string) (string, error) {
	form := url.Values{
		"message":      {text},
		"access_token": {token.AccessToken},
	}
	return c.postForm(ctx, fmt.Sprintf("%s/%s/feed", c.baseURL, pageID), form)
}

func (c *Client) publishLink(ctx context.Context, token *oauth2.Token, pageID, text, link string) (string, error) {
	form := url.Values{
		"message":      {text},
		"link":         {link},
		"access_token": {token.AccessToken},
	}
	return c.postForm(ctx, fmt.Sprintf("%s/%s/feed", c.baseURL, pageID), form)
}

// publishGroup posts to a Group feed. Groups take text and an optional link;
// there is no photo endpoint for them, so a media ref is attached as a link
// to the resolved URL.
func (c *Client) publishGroup(ctx context.Context, token *oauth2.Token, groupID string, post queue.Post) (string, error) {
	form := url.Values{
		"message":      {post.Content},
		"access_token": {token.AccessToken},
	}
	if len(post.MediaRefs) > 0 {
		mediaURL, err := c.media.ResolveURL(ctx, post.MediaRefs[0])
		if err != nil {
			return "", fmt.Errorf("resolve media ref %q: %w", post.MediaRefs[0], err)
		}
		form.Set("link", mediaURL)
	} else if link := linkPattern.FindString(post.Content); link != "" {
		form.Set("link", strings.TrimRight(link, ".,;:!?"))
	}
	return c.postForm(ctx, fmt.Sprintf("%s/%s/feed", c.baseURL, groupID), form)
}

func (c *Client) publishPhoto(ctx context.Context, token *oauth2.Token, pageID, text, imageURL string) (string, error) {
	form := url.Values{
		"message":      {text},
		"url":          {imageURL},
		"access_token": {token.AccessToken},
	}
	return c.postForm(ctx, fmt.Sprintf("%s/%s/photos", c.baseURL, pageID), form)
}

// graphResponse covers both /feed ("id") and /photos ("post_id") replies.
type graphResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", publisher.NewError(publisher.ClassUnreachable, 0, "graph api unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", publisher.NewError(publisher.ClassUnreachable, resp.StatusCode, "read graph response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyResponse(resp.StatusCode, body)
	}

	var parsed graphResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode graph response: %w", err)
	}

	remoteID := parsed.PostID
	if remoteID == "" {
		remoteID = parsed.ID
	}
	if remoteID == "" {
		return "", publisher.NewError(publisher.ClassRejected, resp.StatusCode, "graph response missing post id", nil)
	}
	return remoteID, nil
}

// ExchangeLongLivedToken swaps a short-lived user token for one valid about
// sixty days, which is also how long-lived tokens are themselves renewed.
func (c *Client) ExchangeLongLivedToken(ctx context.Context, shortLived string) (*oauth2.Token, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.appID},
		"client_secret":     {c.appSecret},
		"fb_exchange_token": {shortLived},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/oauth/access_token?%s", c.baseURL, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("build token exchange request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, publisher.NewError(publisher.ClassUnreachable, 0, "graph api unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyResponse(resp.StatusCode, body)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode token exchange response: %w", err)
	}

	token := &oauth2.Token{
		AccessToken: parsed.AccessToken,
		TokenType:   parsed.TokenType,
	}
	if parsed.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return token, nil
}

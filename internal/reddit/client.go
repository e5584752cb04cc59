package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/pkg/logger"
	"github.com/reddit-agent/pkg/ratelimit"
)

const (
	oauthBaseURL = "https://oauth.reddit.com"
	tokenURL     = "https://www.reddit.com/api/v1/access_token"
)

// RawPost is a Reddit submission as returned by a listing endpoint
type RawPost struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	IsSelf      bool    `json:"is_self"`
	Over18      bool    `json:"over_18"`
	FlairText   string  `json:"link_flair_text"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	CreatedUTC  float64 `json:"created_utc"`
}

// CreatedAt converts Reddit's epoch float to a time
func (p RawPost) CreatedAt() time.Time {
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// URL returns the full post URL
func (p RawPost) URL() string {
	return "https://www.reddit.com" + p.Permalink
}

// ThingMetrics is a point-in-time reading of a comment or post
type ThingMetrics struct {
	Score         int
	Ups           int
	Downs         int
	NumReplies    int
	Removed       bool
	RemovalReason string
}

// Identity is the response of /api/v1/me
type Identity struct {
	Name         string  `json:"name"`
	CommentKarma int     `json:"comment_karma"`
	LinkKarma    int     `json:"link_karma"`
	CreatedUTC   float64 `json:"created_utc"`
	IsSuspended  bool    `json:"is_suspended"`
}

// AgeDays returns the account age in whole days
func (i Identity) AgeDays(now time.Time) int {
	created := time.Unix(int64(i.CreatedUTC), 0).UTC()
	return int(now.Sub(created).Hours() / 24)
}

// SubredditAbout is the subset of /r/{name}/about we use
type SubredditAbout struct {
	Name        string `json:"display_name"`
	Subscribers int    `json:"subscribers"`
}

// Client talks to the Reddit API on behalf of a single token source.
// Clients are cheap to build; construct one per operation via Factory
// instead of caching them across token refreshes.
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	userAgent   string
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// Factory builds clients bound to either the app-only grant (read paths)
// or a specific account's refresh token (write paths).
type Factory struct {
	cfg         config.RedditConfig
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewFactory creates a client factory
func NewFactory(cfg config.RedditConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Factory {
	return &Factory{
		cfg:         cfg,
		rateLimiter: limiter,
		log:         log.WithComponent("reddit"),
	}
}

// ReadOnly returns a client using the application-only grant. Suitable
// for listings and subreddit metadata, not for submitting.
func (f *Factory) ReadOnly(ctx context.Context) *Client {
	cc := &clientcredentials.Config{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		TokenURL:     tokenURL,
	}
	return f.newClient(cc.TokenSource(ctx))
}

// ForAccount returns a client authenticated as the given account via its
// refresh token. The returned token source refreshes transparently.
func (f *Factory) ForAccount(ctx context.Context, refreshToken string) *Client {
	oc := &oauth2.Config{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return f.newClient(ts)
}

func (f *Factory) newClient(ts oauth2.TokenSource) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokenSource: ts,
		userAgent:   f.cfg.UserAgent,
		rateLimiter: f.rateLimiter,
		log:         f.log,
	}
}

// do performs an authenticated request against oauth.reddit.com
func (c *Client) do(ctx context.Context, method, path, limiterName string, form url.Values) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx, limiterName); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, oauthBaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Making Reddit API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Msg("Reddit API response")

	return resp, nil
}

// decodeOK drains the response, mapping non-2xx statuses to sentinels
func decodeOK(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromStatus(resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// listing mirrors Reddit's kind/data envelope
type listing struct {
	Data struct {
		Children []struct {
			Data RawPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchCandidates returns recent posts from a subreddit's rising and new
// listings, deduplicated by post id, rising first.
func (c *Client) FetchCandidates(ctx context.Context, subreddit string, limit int) ([]RawPost, error) {
	seen := make(map[string]bool)
	var posts []RawPost

	for _, sort := range []string{"rising", "new"} {
		path := fmt.Sprintf("/r/%s/%s?limit=%d&raw_json=1", url.PathEscape(subreddit), sort, limit)
		resp, err := c.do(ctx, "GET", path, ratelimit.LimiterRedditRead, nil)
		if err != nil {
			return nil, err
		}

		var page listing
		if err := decodeOK(resp, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch r/%s %s: %w", subreddit, sort, err)
		}

		for _, child := range page.Data.Children {
			if seen[child.Data.ID] {
				continue
			}
			seen[child.Data.ID] = true
			posts = append(posts, child.Data)
		}
	}

	c.log.Debug().
		Str("subreddit", subreddit).
		Int("count", len(posts)).
		Msg("Fetched candidate posts")

	return posts, nil
}

// SubredditInfo fetches subreddit metadata
func (c *Client) SubredditInfo(ctx context.Context, subreddit string) (*SubredditAbout, error) {
	path := fmt.Sprintf("/r/%s/about?raw_json=1", url.PathEscape(subreddit))
	resp, err := c.do(ctx, "GET", path, ratelimit.LimiterRedditRead, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data SubredditAbout `json:"data"`
	}
	if err := decodeOK(resp, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch r/%s about: %w", subreddit, err)
	}
	return &envelope.Data, nil
}

// ProbeIdentity fetches the authenticated account's profile. Used by the
// health agent to verify credentials and refresh karma.
func (c *Client) ProbeIdentity(ctx context.Context) (*Identity, error) {
	resp, err := c.do(ctx, "GET", "/api/v1/me?raw_json=1", ratelimit.LimiterRedditRead, nil)
	if err != nil {
		return nil, err
	}

	var identity Identity
	if err := decodeOK(resp, &identity); err != nil {
		return nil, fmt.Errorf("failed to probe identity: %w", err)
	}
	if identity.IsSuspended {
		return &identity, ErrSuspended
	}
	return &identity, nil
}

// PublishReply submits a comment under the given fullname (t3_xxx for a
// post, t1_xxx for a comment) and returns the new comment's fullname.
func (c *Client) PublishReply(ctx context.Context, parentFullname, text string) (string, error) {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {parentFullname},
		"text":     {text},
	}

	resp, err := c.do(ctx, "POST", "/api/comment", ratelimit.LimiterRedditWrite, form)
	if err != nil {
		return "", err
	}

	var result struct {
		JSON struct {
			Errors [][]string `json:"errors"`
			Data   struct {
				Things []struct {
					Data struct {
						Name string `json:"name"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := decodeOK(resp, &result); err != nil {
		return "", fmt.Errorf("failed to publish reply: %w", err)
	}

	if len(result.JSON.Errors) > 0 {
		first := result.JSON.Errors[0]
		code := ""
		if len(first) > 0 {
			code = first[0]
		}
		// Reddit reports write throttling as an in-body error with 200
		if code == "RATELIMIT" {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, first)
		}
		return "", fmt.Errorf("reddit: comment rejected: %v", first)
	}

	if len(result.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("reddit: comment response contained no thing")
	}

	name := result.JSON.Data.Things[0].Data.Name
	c.log.Info().
		Str("thing_id", name).
		Str("parent", parentFullname).
		Msg("Reply published successfully")

	return name, nil
}

// FetchThing reads current metrics for a published comment or post
func (c *Client) FetchThing(ctx context.Context, fullname string) (*ThingMetrics, error) {
	path := fmt.Sprintf("/api/info?id=%s&raw_json=1", url.QueryEscape(fullname))
	resp, err := c.do(ctx, "GET", path, ratelimit.LimiterRedditRead, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			Children []struct {
				Data struct {
					Score             int    `json:"score"`
					Ups               int    `json:"ups"`
					Downs             int    `json:"downs"`
					NumComments       int    `json:"num_comments"`
					RemovedByCategory string `json:"removed_by_category"`
					Body              string `json:"body"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := decodeOK(resp, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch thing %s: %w", fullname, err)
	}

	if len(envelope.Data.Children) == 0 {
		return nil, ErrNotFound
	}

	d := envelope.Data.Children[0].Data
	removed := d.RemovedByCategory != "" || d.Body == "[removed]"
	return &ThingMetrics{
		Score:         d.Score,
		Ups:           d.Ups,
		Downs:         d.Downs,
		NumReplies:    d.NumComments,
		Removed:       removed,
		RemovalReason: d.RemovedByCategory,
	}, nil
}

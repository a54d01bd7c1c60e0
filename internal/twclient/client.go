// Package twclient is a Twitter API v1.1 client signed with OAuth 1.0a.
// It returns raw documents so the archive keeps every field the API sends.
package twclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"magpie/internal/model"
)

// Credentials holds the OAuth 1.0a keys for a single account.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Client is a rate-limited, retrying HTTP client for the v1.1 REST API.
type Client struct {
	baseURL     string
	creds       Credentials
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	nowFn       func() time.Time
	nonceFn     func() string
}

func New(creds Credentials) *Client {
	return &Client{
		baseURL:     "https://api.twitter.com/1.1",
		creds:       creds,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("TW_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("TW_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
		nowFn:       time.Now,
		nonceFn:     defaultNonce,
	}
}

// FetchPage performs a paginated list fetch, e.g. /statuses/user_timeline.json.
func (c *Client) FetchPage(ctx context.Context, path string, params url.Values) ([]model.Document, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return model.DecodeDocuments(body)
}

// FetchOne performs a single-item fetch, e.g. /statuses/show/123.json.
func (c *Client) FetchOne(ctx context.Context, path string) (model.Document, error) {
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return model.DecodeDocument(body)
}

// LookupUsers fetches full user objects by numeric id and/or screen name,
// up to 100 per request as the API allows.
func (c *Client) LookupUsers(ctx context.Context, ids, screenNames []string) ([]model.Document, error) {
	if len(ids) == 0 && len(screenNames) == 0 {
		return nil, nil
	}
	if len(ids) > 100 {
		ids = ids[:100]
	}
	if len(screenNames) > 100 {
		screenNames = screenNames[:100]
	}
	params := url.Values{}
	if len(ids) > 0 {
		params.Set("user_id", strings.Join(ids, ","))
	}
	if len(screenNames) > 0 {
		params.Set("screen_name", strings.Join(screenNames, ","))
	}
	body, err := c.get(ctx, "/users/lookup.json", params)
	if err != nil {
		return nil, err
	}
	return model.DecodeDocuments(body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + encodeQuery(params)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	c.oauth1Sign(req, params)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("twitter %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				lastErr = fmt.Errorf("status %d", resp.StatusCode)
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}

// Package pixiv wraps the Pixiv mobile app API: a rate-limited, retrying
// client plus normalization of its loosely-shaped responses.
package pixiv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://app-api.pixiv.net"
	defaultAuthURL = "https://oauth.secure.pixiv.net/auth/token"

	// Public mobile-app OAuth credentials, required for the refresh-token
	// grant. These are not secrets.
	oauthClientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	oauthClientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"

	backoffBase = 500 * time.Millisecond
	backoffCap  = 8 * time.Second
)

// APIError is a structured upstream failure carrying the HTTP status and any
// Retry-After hint the server sent.
type APIError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pixiv api: HTTP %d", e.StatusCode)
}

// Options configures a Client. The zero value gets sensible defaults.
type Options struct {
	BaseURL     string
	AuthURL     string
	HTTPClient  *http.Client
	MinInterval time.Duration // pacing floor between any two outbound calls
	Jitter      time.Duration // extra random delay in [0, Jitter]
	MaxAttempts int
}

// Client talks to the Pixiv app API for one account credential. Pacing state
// lives on the instance, so separate accounts never contend on the same
// throttle clock.
type Client struct {
	baseURL     string
	authURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	jitter      time.Duration
	maxAttempts int
	accessToken string
}

// NewClient exchanges the account's refresh token for an access token and
// returns a ready client. Auth failures surface here, before any collection.
func NewClient(ctx context.Context, refreshToken string, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = defaultAuthURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 4
	}

	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		authURL:     opts.AuthURL,
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		jitter:      opts.Jitter,
		maxAttempts: opts.MaxAttempts,
	}

	if err := c.authenticate(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("pixiv auth: %w", err)
	}
	return c, nil
}

func (c *Client) authenticate(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"client_id":      {oauthClientID},
		"client_secret":  {oauthClientSecret},
		"grant_type":     {"refresh_token"},
		"refresh_token":  {refreshToken},
		"get_secure_url": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange failed: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Response    struct {
			AccessToken string `json:"access_token"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	token := payload.AccessToken
	if token == "" {
		token = payload.Response.AccessToken
	}
	if token == "" {
		return errors.New("token response contained no access_token")
	}
	c.accessToken = token
	return nil
}

// UserDetail fetches an account's profile and stats.
func (c *Client) UserDetail(ctx context.Context, userID int64) (map[string]any, error) {
	q := url.Values{
		"user_id": {strconv.FormatInt(userID, 10)},
		"filter":  {"for_ios"},
	}
	return c.call(ctx, "/v1/user/detail", q)
}

// IllustDetail fetches a single post's current engagement metrics.
func (c *Client) IllustDetail(ctx context.Context, illustID int64) (map[string]any, error) {
	q := url.Values{
		"illust_id": {strconv.FormatInt(illustID, 10)},
	}
	return c.call(ctx, "/v1/illust/detail", q)
}

// UserIllusts walks the paginated post list for a user, following the offset
// cursor embedded in each page's next_url, up to maxPages pages. Items are
// returned in upstream order.
func (c *Client) UserIllusts(ctx context.Context, userID int64, maxPages int) ([]any, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	var items []any
	offset := -1

	for page := 0; page < maxPages; page++ {
		q := url.Values{
			"user_id": {strconv.FormatInt(userID, 10)},
			"type":    {"illust"},
			"filter":  {"for_ios"},
		}
		if offset >= 0 {
			q.Set("offset", strconv.Itoa(offset))
		}

		resp, err := c.call(ctx, "/v1/user/illusts", q)
		if err != nil {
			return nil, err
		}

		if list, ok := resp["illusts"].([]any); ok {
			items = append(items, list...)
		}

		next, _ := resp["next_url"].(string)
		if next == "" {
			break
		}
		nextOffset, ok := parseOffset(next)
		if !ok {
			break
		}
		offset = nextOffset
	}

	return items, nil
}

// parseOffset extracts the continuation offset from a next_url value.
func parseOffset(nextURL string) (int, bool) {
	u, err := url.Parse(nextURL)
	if err != nil {
		return 0, false
	}
	raw := u.Query().Get("offset")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// call issues one logical API call with pacing, jitter, and the retry policy:
// retry when no structured status is available, or on 429 / 5xx; any other
// status fails immediately.
func (c *Client) call(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		out, err := c.do(ctx, path, query)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == c.maxAttempts {
			return nil, err
		}
		if err := sleepCtx(ctx, backoffFor(err, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// pace blocks until the pacing floor is satisfied, then adds jitter to
// desynchronize concurrent collectors hitting the same upstream.
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.jitter > 0 {
		d := time.Duration(rand.Int63n(int64(c.jitter) + 1))
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(body),
		}
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// shouldRetry treats errors without a structured status as transient; with a
// status, only 429 and 5xx are retried.
func shouldRetry(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

// backoffFor honors an upstream Retry-After with a 0.5s floor, otherwise
// applies exponential backoff 0.5 * 2^(attempt-1) seconds capped at 8s.
func backoffFor(err error, attempt int) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter < backoffBase {
			return backoffBase
		}
		return apiErr.RetryAfter
	}

	d := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt-1)))
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

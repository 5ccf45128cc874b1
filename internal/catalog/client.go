// Package catalog talks to the Discogs database and collection APIs.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
)

const (
	// DefaultBaseURL is the public Discogs API root
	DefaultBaseURL = "https://api.discogs.com"
	// DefaultRatePerMinute is Discogs' limit for authenticated requests
	DefaultRatePerMinute = 60
	// MaxCandidates bounds every candidate list this package returns
	MaxCandidates = 10
)

// Client represents a Discogs API client for one collection owner
type Client struct {
	baseURL         string
	user            string
	token           string
	preferredFormat string
	country         string
	folderID        int
	maxCandidates   int
	timeout         time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	versions   *cache.Cache
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter overrides the request pacing
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithBaseURL points the client at another API root
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithPreferredFormat filters master versions to one physical format
func WithPreferredFormat(format string) Option {
	return func(c *Client) { c.preferredFormat = strings.TrimSpace(format) }
}

// WithCountry filters master versions to one release country
func WithCountry(country string) Option {
	return func(c *Client) { c.country = strings.TrimSpace(country) }
}

// WithFolder selects the collection folder releases are added to
func WithFolder(id int) Option {
	return func(c *Client) {
		if id >= 1 {
			c.folderID = id
		}
	}
}

// WithMaxCandidates lowers the candidate bound. Values above MaxCandidates
// are clamped.
func WithMaxCandidates(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= MaxCandidates {
			c.maxCandidates = n
		}
	}
}

// WithRequestTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied, never modified.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRatePerMinute paces requests to n per minute
func WithRatePerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// NewClient creates a new catalog client for user
func NewClient(user, token string, opts ...Option) (*Client, error) {
	user = strings.TrimSpace(user)
	token = strings.TrimSpace(token)
	if user == "" || token == "" {
		return nil, errors.WithHint(
			errors.Newk(errors.ErrAuth, "discogs user and token are required"),
			"set AT_DISCOGS_USER and AT_DISCOGS_TOKEN (https://www.discogs.com/settings/developers)")
	}

	c := &Client{
		baseURL:         DefaultBaseURL,
		user:            user,
		token:           token,
		preferredFormat: "Vinyl",
		folderID:        1,
		maxCandidates:   MaxCandidates,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		limiter:         rate.NewLimiter(rate.Every(time.Minute/DefaultRatePerMinute), 1),
		// lives as long as the process; nothing is written to disk
		versions: cache.New(cache.NoExpiration, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

func (c *Client) userAgent() string {
	return "AlbumTracker/" + c.user
}

// do sends one paced request and decodes a 2xx JSON body into out. The
// returned status is zero when no response arrived.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, errors.Wrapk(err, errors.ErrNetwork, "rate limiter refused request")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to build discogs request")
	}
	req.Header.Set("Authorization", "Discogs token="+c.token)
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/vnd.discogs.v2.discogs+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, errors.Wrapkf(err, errors.ErrNetwork, "discogs %s %s failed (latency=%v)", method, path, latency)
	}
	defer resp.Body.Close()

	slog.Debug("Discogs request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency", latency,
		"ratelimit_remaining", resp.Header.Get("X-Discogs-Ratelimit-Remaining"))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, errors.WithHint(
			errors.Newkf(errors.ErrAuth, "discogs rejected the token: %s %s returned %d", method, path, resp.StatusCode),
			"check AT_DISCOGS_TOKEN and that it belongs to AT_DISCOGS_USER")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, errors.Newkf(errors.ErrNetwork, "discogs %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, errors.Wrapkf(err, errors.ErrParse, "failed to decode discogs %s response", path)
	}
	return resp.StatusCode, nil
}

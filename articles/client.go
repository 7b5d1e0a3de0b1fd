package articles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAttemptTimeout bounds a single request to one base URL.
	DefaultAttemptTimeout = 2500 * time.Millisecond

	maxResponseBytes = 8 << 20
)

// ListResponse is the body of GET /api/articles/.
type ListResponse struct {
	Articles []Article `json:"articles"`
}

// Client reads published articles from the public API. Base URLs are tried in
// order, one at a time, each with its own short timeout; the first success
// wins. A 404 is authoritative and stops the walk.
type Client struct {
	baseURLs       []string
	http           *http.Client
	attemptTimeout time.Duration
	logger         *zap.Logger
}

var _ Source = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAttemptTimeout sets the per-base-URL timeout.
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithClientLogger sets the client's logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a Client for the given base URLs, primary first.
func NewClient(baseURLs []string, opts ...ClientOption) *Client {
	c := &Client{
		http:           &http.Client{},
		attemptTimeout: DefaultAttemptTimeout,
		logger:         zap.NewNop(),
	}
	for _, u := range baseURLs {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURLs = append(c.baseURLs, u)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURLs returns the configured base URLs in attempt order.
func (c *Client) BaseURLs() []string {
	return append([]string(nil), c.baseURLs...)
}

// ListPublished fetches the bulk listing used to initialize the Cache.
func (c *Client) ListPublished(ctx context.Context) ([]Article, error) {
	body, err := fetch[ListResponse](ctx, c, "/api/articles/")
	if err != nil {
		return nil, err
	}
	return body.Articles, nil
}

// GetPublished fetches one published article.
func (c *Client) GetPublished(ctx context.Context, slug string) (Article, error) {
	return fetch[Article](ctx, c, "/api/articles/"+url.PathEscape(slug)+"/")
}

// fetch walks the base URLs in order. Every attempt decodes into its own
// value, so the result is exactly the first successful response body.
func fetch[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	if len(c.baseURLs) == 0 {
		return zero, &TransientFetchError{URL: path, Err: errors.New("no base URL configured")}
	}
	var lastErr error
	for i, base := range c.baseURLs {
		v, err := attempt[T](ctx, c, base+path)
		fetchAttempts.WithLabelValues(attemptResult(err)).Inc()
		if err == nil {
			if i > 0 {
				c.logger.Info("article fetch served by alternate base URL",
					zap.String("base", base), zap.Int("attempt", i+1))
			}
			return v, nil
		}
		if !errors.Is(err, ErrTransient) {
			return zero, err
		}
		lastErr = err
		c.logger.Warn("article fetch failed, trying next base URL",
			zap.String("url", base+path), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return zero, lastErr
}

func attempt[T any](ctx context.Context, c *Client, target string) (T, error) {
	var v T
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return v, fmt.Errorf("build request %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return v, &TransientFetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return v, ErrNotFound
	case resp.StatusCode >= 500:
		return v, &TransientFetchError{URL: target, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return v, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&v); err != nil {
		var zero T
		return zero, &TransientFetchError{URL: target, Err: fmt.Errorf("decode body: %w", err)}
	}
	return v, nil
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}

// Package adminclient talks to the admin API of a running server the way the
// admin screens do: load a snapshot, let the caller edit it, and on save send
// only what changed.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

const csrfCookie = "_csrf"

// ErrUnauthorized is returned when the session is missing or the password is wrong.
var ErrUnauthorized = errors.New("adminclient: unauthorized")

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: status %d: %s", e.Status, e.Message)
}

// ReplaceResult is the outcome of a collection replace.
type ReplaceResult struct {
	Count   int    `json:"count"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// Client is an admin API session. It keeps the session and CSRF cookies.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. A cookie jar is added
// when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("adminclient: parse base url: %w", err)
	}
	c := &Client{base: u, http: &http.Client{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

func (c *Client) url(p string) string {
	return c.base.String() + p
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	if tok := c.cookie(csrfCookie); tok != "" {
		return tok, nil
	}
	// Any GET hands out the token cookie.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/admin/"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("adminclient: fetch csrf token: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if tok := c.cookie(csrfCookie); tok != "" {
		return tok, nil
	}
	return "", errors.New("adminclient: server issued no csrf token")
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// Login authenticates the session with the admin password.
func (c *Client) Login(ctx context.Context, password string) error {
	tok, err := c.csrfToken(ctx)
	if err != nil {
		return err
	}
	form := url.Values{"password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/admin/login/"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", tok)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adminclient: login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return &APIError{Status: resp.StatusCode, Message: "login failed"}
	}
	c.logger.Debug("admin session established", zap.String("server", c.base.Host))
	return nil
}

// do sends a JSON request and decodes a JSON response into out. Mutating
// requests carry the CSRF token.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("adminclient: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		tok, err := c.csrfToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("X-CSRF-Token", tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adminclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("adminclient: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		apiErr := &APIError{Status: resp.StatusCode, Message: e.Error}
		if out != nil && len(raw) > 0 {
			// Error bodies may still carry a result, e.g. the item count of a
			// failed replace.
			_ = json.Unmarshal(raw, out)
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("adminclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

// FetchSection returns the current content of a section.
func (c *Client) FetchSection(ctx context.Context, section string) (content.Fields, error) {
	var out content.Fields
	if err := c.do(ctx, http.MethodGet, "/admin/api/content/"+url.PathEscape(section)+"/", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = content.Fields{}
	}
	return out, nil
}

// BulkUpdate sends one PUT with every change and returns the per-item results.
func (c *Client) BulkUpdate(ctx context.Context, changes content.ChangeSet) ([]content.ItemResult, error) {
	var out struct {
		Results []content.ItemResult `json:"results"`
	}
	body := map[string]content.ChangeSet{"updates": changes}
	if err := c.do(ctx, http.MethodPut, "/admin/api/content/", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// FetchCollection returns the items of an ordered collection.
func (c *Client) FetchCollection(ctx context.Context, collection string) ([]content.Item, error) {
	var out struct {
		Items []content.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/api/collections/"+url.PathEscape(collection)+"/", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ReplaceCollection replaces a collection wholesale.
func (c *Client) ReplaceCollection(ctx context.Context, collection string, items []content.Item) (ReplaceResult, error) {
	if items == nil {
		items = []content.Item{}
	}
	var out ReplaceResult
	body := map[string][]content.Item{"items": items}
	err := c.do(ctx, http.MethodPut, "/admin/api/collections/"+url.PathEscape(collection)+"/", body, &out)
	return out, err
}

// Package reddit talks to the Reddit API on behalf of an authenticated
// session: it lists new subreddit comments and posts replies.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/augument/impulsecommunicator/internal/auth"
	"github.com/augument/impulsecommunicator/internal/bots"
)

// Requests are paced well under Reddit's 100 per minute OAuth quota.
const (
	defaultRate  = rate.Limit(1)
	defaultBurst = 5
)

// APIError is a failed API call: either a non-2xx status or an error list
// in the response body.
type APIError struct {
	Op         string
	StatusCode int
	Errors     [][]string
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, item := range e.Errors {
			parts = append(parts, strings.Join(nonEmpty(item), ": "))
		}
		return fmt.Sprintf("%s: %s", e.Op, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Client issues paced requests over the session's signed HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter replaces the default request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client bound to sess.
func NewClient(sess *auth.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(sess.BaseURL, "/"),
		http:    sess.Client,
		limiter: rate.NewLimiter(defaultRate, defaultBurst),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ensure Client implements Replier
var _ bots.Replier = (*Client)(nil)

// NewComments returns up to limit of the newest comments in subreddit,
// newest first.
func (c *Client) NewComments(ctx context.Context, subreddit string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	path := "/r/" + url.PathEscape(subreddit) + "/comments?" + q.Encode()

	var l Listing
	if err := c.do(ctx, "list comments", http.MethodGet, path, nil, &l); err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != KindComment {
			continue
		}
		comments = append(comments, child.Data)
	}
	return comments, nil
}

// Reply posts text as a reply under the thing with the given fullname.
func (c *Client) Reply(ctx context.Context, thingID, text string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", thingID)
	form.Set("text", text)

	var resp replyResponse
	if err := c.do(ctx, "reply", http.MethodPost, "/api/comment", form, &resp); err != nil {
		return err
	}
	if len(resp.JSON.Errors) > 0 {
		return &APIError{Op: "reply", StatusCode: http.StatusOK, Errors: resp.JSON.Errors}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("reddit request", "op", op, "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

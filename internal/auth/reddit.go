// Package auth performs the Reddit OAuth2 login for script apps and hands
// out an HTTP client that signs API requests with the resulting token.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/augument/impulsecommunicator/internal/config"
)

const (
	// TokenURL is Reddit's OAuth2 token endpoint.
	TokenURL = "https://www.reddit.com/api/v1/access_token"
	// APIBaseURL is the host that accepts bearer-token requests.
	APIBaseURL = "https://oauth.reddit.com"
)

// Options overrides endpoints and transport, mainly for tests.
type Options struct {
	TokenURL   string
	APIBaseURL string
	HTTPClient *http.Client
}

// Session is an authenticated Reddit session.
type Session struct {
	// User is the account name reported by /api/v1/me.
	User string
	// BaseURL is the API host requests should go to.
	BaseURL string
	// Client attaches the bearer token and User-Agent to every request and
	// logs in again when the token expires.
	Client *http.Client
}

// Error wraps any failure of the login flow.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("can't auth: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Login exchanges the username and password of s for an access token
// (resource owner password grant) and resolves the account name.
func Login(ctx context.Context, s *config.AuthSettings, opts Options) (*Session, error) {
	if err := s.Validate(); err != nil {
		return nil, &Error{Op: "settings", Err: err}
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = TokenURL
	}
	baseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = APIBaseURL
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}

	// Reddit rejects requests without a descriptive User-Agent, token
	// requests included.
	uaClient := &http.Client{
		Timeout:   base.Timeout,
		Transport: &userAgentTransport{base: base.Transport, userAgent: s.UserAgent},
	}

	conf := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: []string{"identity", "read", "submit"},
	}

	src := &passwordSource{
		// Token refreshes happen long after ctx may be gone.
		ctx:      context.WithValue(context.Background(), oauth2.HTTPClient, uaClient),
		conf:     conf,
		username: s.Username,
		password: s.Password,
	}

	tok, err := conf.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, uaClient), s.Username, s.Password)
	if err != nil {
		return nil, &Error{Op: "token", Err: err}
	}

	client := oauth2.NewClient(src.ctx, oauth2.ReuseTokenSource(tok, src))
	client.Timeout = base.Timeout

	user, err := fetchIdentity(ctx, client, baseURL)
	if err != nil {
		return nil, &Error{Op: "identity", Err: err}
	}

	return &Session{User: user, BaseURL: baseURL, Client: client}, nil
}

// passwordSource logs in again whenever the cached token expires. Reddit
// does not issue refresh tokens for the password grant.
type passwordSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (p *passwordSource) Token() (*oauth2.Token, error) {
	return p.conf.PasswordCredentialsToken(p.ctx, p.username, p.password)
}

func fetchIdentity(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/me", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("identity request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var me struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("decoding identity: %w", err)
	}
	if me.Name == "" {
		return "", fmt.Errorf("identity response has no account name")
	}
	return me.Name, nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

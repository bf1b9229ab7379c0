// Package exchange builds the provider consent URL and trades an
// authorization code for tokens.
package exchange

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/loopback"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes grant read-only access to calendars and task lists.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/tasks.readonly",
}

const defaultTimeout = 30 * time.Second

var errEmptyCode = errors.New("empty authorization code")

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the provider endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithRedirectURL sets the redirect URI sent in both the consent URL and
// the exchange request.
func WithRedirectURL(u string) Option {
	return func(c *Client) { c.redirectURL = u }
}

// WithScopes replaces the requested scopes.
func WithScopes(scopes ...string) Option {
	return func(c *Client) { c.scopes = scopes }
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each token request. Zero or less adds no deadline
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the provider's authorization and token endpoints.
type Client struct {
	endpoint    oauth2.Endpoint
	redirectURL string
	scopes      []string
	httpClient  *http.Client
	timeout     time.Duration
	logger      *slog.Logger
}

// New returns a client for Google's endpoints redirecting to the default
// loopback callback.
func New(opts ...Option) *Client {
	c := &Client{
		endpoint:    google.Endpoint,
		redirectURL: loopback.RedirectURL(loopback.DefaultHost, loopback.DefaultPort),
		scopes:      DefaultScopes,
		timeout:     defaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	// credentials always travel in the form body, so x/oauth2 never probes
	// a second auth style and the exchange stays a single request
	c.endpoint.AuthStyle = oauth2.AuthStyleInParams
	return c
}

// RedirectURL returns the configured redirect URI.
func (c *Client) RedirectURL() string {
	return c.redirectURL
}

// Config returns the oauth2 configuration for the given credentials.
func (c *Client) Config(creds core.Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     c.endpoint,
		RedirectURL:  c.redirectURL,
		Scopes:       c.scopes,
	}
}

// AuthCodeURL returns the consent URL. It requests offline access and forces
// the consent prompt so the provider issues a refresh token every time.
func (c *Client) AuthCodeURL(creds core.Credentials) string {
	return c.Config(creds).AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token set with one request.
// Every failure is returned as *core.ExchangeError.
func (c *Client) Exchange(ctx context.Context, code string, creds core.Credentials) (*core.TokenSet, error) {
	if code == "" {
		return nil, &core.ExchangeError{Cause: errEmptyCode}
	}
	if err := creds.Validate(); err != nil {
		return nil, &core.ExchangeError{Cause: err}
	}

	ctx = c.clientContext(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tok, err := c.Config(creds).Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			c.logger.Error("Token endpoint rejected the exchange",
				"status", re.Response.StatusCode,
				"error_code", re.ErrorCode,
				"client_id", core.MaskSecret(creds.ClientID))
		} else {
			c.logger.Error("Token exchange failed", "err", err)
		}
		return nil, &core.ExchangeError{Cause: err}
	}
	if tok.AccessToken == "" {
		return nil, &core.ExchangeError{Cause: errors.New("token response missing access_token")}
	}

	tokens := core.TokenSetFromOAuth2(tok)
	c.logger.Debug("Token exchange succeeded",
		"access_token", core.MaskSecret(tokens.AccessToken),
		"has_refresh_token", tokens.HasRefreshToken(),
		"expiry", tokens.Expiry)
	return &tokens, nil
}

// TokenSource returns a refreshing source seeded with tokens. Refresh
// requests use ctx and the client's HTTP client.
func (c *Client) TokenSource(ctx context.Context, creds core.Credentials, tokens core.TokenSet) oauth2.TokenSource {
	return c.Config(creds).TokenSource(c.clientContext(ctx), tokens.OAuth2Token())
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

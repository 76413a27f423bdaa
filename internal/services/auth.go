// Google OAuth 2.0 authorization code flow
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/desertthunder/ytlink/internal/shared"
)

const (
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	// DefaultTokenLifetime is assumed when Google omits expires_in.
	DefaultTokenLifetime = 3600 * time.Second
)

// GoogleUser is the userinfo response.
type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleAuth wraps an [oauth2.Config] for Google with offline access, refresh and revocation.
type GoogleAuth struct {
	config      *oauth2.Config
	revokeURL   string
	userInfoURL string
	httpClient  *http.Client
	now         func() time.Time
}

// AuthOption configures a [GoogleAuth].
type AuthOption func(*GoogleAuth)

// WithEndpoints overrides the Google URLs, used by tests.
func WithEndpoints(authURL, tokenURL, revokeURL, userInfoURL string) AuthOption {
	return func(g *GoogleAuth) {
		g.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
		g.revokeURL = revokeURL
		g.userInfoURL = userInfoURL
	}
}

// WithAuthHTTPClient sets the client used for token, revoke and userinfo requests.
func WithAuthHTTPClient(c *http.Client) AuthOption {
	return func(g *GoogleAuth) { g.httpClient = c }
}

// WithClock replaces time.Now when stamping default token expiries.
func WithClock(now func() time.Time) AuthOption {
	return func(g *GoogleAuth) { g.now = now }
}

// NewGoogleAuth creates the OAuth client from the [google] config section.
func NewGoogleAuth(cfg shared.GoogleConfig, opts ...AuthOption) (*GoogleAuth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: google client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	g := &GoogleAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		revokeURL:   googleRevokeURL,
		userInfoURL: googleUserInfoURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GoogleAuth) Name() string {
	return "Google"
}

// RedirectURL is the configured callback URL.
func (g *GoogleAuth) RedirectURL() string {
	return g.config.RedirectURL
}

// AuthCodeURL returns the consent page URL. Offline access and a forced consent prompt
// make Google return a refresh token every time.
func (g *GoogleAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

func (g *GoogleAuth) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// Exchange trades an authorization code for tokens.
func (g *GoogleAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", shared.ErrInvalidInput)
	}

	token, err := g.config.Exchange(g.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %s", shared.ErrAuthFailed, describeOAuthError(err))
	}
	return g.withExpiry(token), nil
}

// Refresh obtains a new access token with a refresh token.
//
// The returned token keeps the refresh token when Google does not rotate it.
func (g *GoogleAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: g.now().Add(-time.Minute)}
	token, err := g.config.TokenSource(g.ctx(ctx), expired).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrRefreshFailed, describeOAuthError(err))
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return g.withExpiry(token), nil
}

func (g *GoogleAuth) withExpiry(token *oauth2.Token) *oauth2.Token {
	if token.Expiry.IsZero() {
		token.Expiry = g.now().Add(DefaultTokenLifetime)
	}
	return token
}

// Revoke invalidates an access or refresh token at Google.
func (g *GoogleAuth) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp)
	}
	return nil
}

// UserInfo returns the Google profile of the token's user.
func (g *GoogleAuth) UserInfo(ctx context.Context, accessToken string) (*GoogleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &user, nil
}

// UserEmail is [GoogleAuth.UserInfo] reduced to the email address.
func (g *GoogleAuth) UserEmail(ctx context.Context, accessToken string) (string, error) {
	user, err := g.UserInfo(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// describeOAuthError prefers Google's error code and description over the raw body.
func describeOAuthError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			if re.ErrorDescription != "" {
				return re.ErrorCode + ": " + re.ErrorDescription
			}
			return re.ErrorCode
		}
		return fmt.Sprintf("status %d", re.Response.StatusCode)
	}
	return err.Error()
}

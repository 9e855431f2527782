// Package exact talks to the Exact Online OAuth2 endpoints. It is a stateless
// protocol adapter: all token state lives in the repositories.
package exact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	tokenPath     = "/api/oauth2/token"
	authorizePath = "/api/oauth2/auth"

	// Exact does not report the refresh token lifetime, so we assume 30
	// days. This is a policy approximation, not a partner guarantee.
	refreshValidFor = 30 * 24 * time.Hour
)

// ErrInvalidGrant means the code or refresh token is invalid or has expired.
// The user has to re-authenticate; this is an expected failure mode.
var ErrInvalidGrant = errors.New("invalid grant: the token or code is invalid or has expired")

// PartnerError is any OAuth2 error code from Exact other than invalid_grant.
type PartnerError struct {
	Code string
}

func (e *PartnerError) Error() string {
	return fmt.Sprintf("oauth2 error from partner: %s", e.Code)
}

// TransportError wraps failures to reach Exact or to read its response at all
// (DNS, TLS, timeouts, malformed bodies). Maps to an upstream failure at the
// boundary.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TokenPair is the result of a successful grant exchange. Expiries are
// absolute unix seconds.
type TokenPair struct {
	Access        string
	Refresh       string
	AccessExpiry  int64
	RefreshExpiry int64
}

type grantType string

const (
	grantAuthorizationCode grantType = "authorization_code"
	grantRefreshToken      grantType = "refresh_token"
)

// Client performs OAuth2 grant exchanges against Exact's token endpoint.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	userAgent    string
	http         *http.Client
	now          func() time.Time
}

// NewClient builds a client for the given Exact region base URL.
func NewClient(baseURL, clientID, clientSecret, redirectURI, userAgent string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		userAgent:    userAgent,
		http:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// AuthorizeURL builds the URL the user is redirected to for consent. Exact is
// told to force a fresh login rather than reuse an existing SSO session.
func (c *Client) AuthorizeURL(state, scopes string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)
	q.Set("response_type", "code")
	q.Set("force_login", "1")
	q.Set("scopes", scopes)
	return c.baseURL + authorizePath + "?" + q.Encode()
}

// ExchangeCode redeems an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenPair, error) {
	form := url.Values{}
	form.Set("code", code)
	return c.tokenExchange(ctx, grantAuthorizationCode, form)
}

// RefreshTokens obtains a fresh token pair from a refresh token.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (TokenPair, error) {
	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	return c.tokenExchange(ctx, grantRefreshToken, form)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// Exact transmits expires_in as a string rather than a number.
	ExpiresIn    string `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) tokenExchange(ctx context.Context, grant grantType, form url.Values) (TokenPair, error) {
	form.Set("grant_type", string(grant))
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("redirect_uri", c.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenPair{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&oauthErr); err != nil {
			return TokenPair{}, &TransportError{Err: fmt.Errorf("decode error response (status %d): %w", resp.StatusCode, err)}
		}
		if oauthErr.Error == "invalid_grant" {
			return TokenPair{}, ErrInvalidGrant
		}
		return TokenPair{}, &PartnerError{Code: oauthErr.Error}
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TokenPair{}, &TransportError{Err: fmt.Errorf("decode token response: %w", err)}
	}

	expiresIn, err := strconv.ParseInt(body.ExpiresIn, 10, 64)
	if err != nil {
		return TokenPair{}, &PartnerError{Code: fmt.Sprintf("invalid value for 'expires_in', failed to parse %q as an integer", body.ExpiresIn)}
	}

	now := c.now().Unix()
	return TokenPair{
		Access:        body.AccessToken,
		Refresh:       body.RefreshToken,
		AccessExpiry:  now + expiresIn,
		RefreshExpiry: now + int64(refreshValidFor.Seconds()),
	}, nil
}

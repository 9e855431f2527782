// Package identity resolves first-party bearer credentials against the
// mrauth service using RFC 7662 token introspection.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnknownToken is returned for inactive or unrecognized bearer tokens.
	ErrUnknownToken = errors.New("unknown bearer token")

	// ErrMissingScope is returned when the token is valid but was not
	// granted the scope the operation requires.
	ErrMissingScope = errors.New("bearer token is missing a required scope")

	// ErrUnavailable means mrauth could not be reached or answered with
	// something other than an introspection response.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// User is the identity bound to a bearer token.
type User struct {
	ID     string
	Scopes []string
}

// Client talks to the mrauth introspection endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a client for the given mrauth base URL.
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type introspectionResponse struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
	Scope   string `json:"scope"`
}

// Resolve introspects the bearer token and verifies it carries requiredScope.
func (c *Client) Resolve(ctx context.Context, bearer, requiredScope string) (User, error) {
	form := url.Values{}
	form.Set("token", bearer)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/introspect", strings.NewReader(form.Encode()))
	if err != nil {
		return User{}, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var body introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return User{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if !body.Active || body.Subject == "" {
		return User{}, ErrUnknownToken
	}

	scopes := strings.Fields(body.Scope)
	if !hasScope(scopes, requiredScope) {
		return User{}, ErrMissingScope
	}

	return User{ID: body.Subject, Scopes: scopes}, nil
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

package domain

import "fmt"

// TokenKind discriminates the two OAuth2 token rows a user can own.
type TokenKind string

// The discriminator strings are part of the database schema for
// oauth2_tokens.token_kind. Changing them breaks existing rows.
const (
	TokenKindAccess  TokenKind = "Access"
	TokenKindRefresh TokenKind = "Refresh"
)

// ParseTokenKind maps a persisted discriminator back to a TokenKind.
func ParseTokenKind(s string) (TokenKind, error) {
	switch TokenKind(s) {
	case TokenKindAccess:
		return TokenKindAccess, nil
	case TokenKindRefresh:
		return TokenKindRefresh, nil
	default:
		return "", fmt.Errorf("unknown token kind %q", s)
	}
}

// OAuth2Token is a partner-issued token stored for a user. At most one row
// exists per (user, kind); writes are upserts.
type OAuth2Token struct {
	UserID string
	Kind   TokenKind
	Token  string
	Expiry int64
}

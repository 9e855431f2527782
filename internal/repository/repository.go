package repository

import (
	"context"

	"github.com/MrFriendly-B-V/ExactAuth/internal/domain"
)

// UserRepository persists broker users.
type UserRepository interface {
	Create(ctx context.Context, id string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	ListAll(ctx context.Context) ([]domain.User, error)
}

// AuthorizationRepository persists in-flight authorization attempts.
type AuthorizationRepository interface {
	StartAuthorization(ctx context.Context, userID, scopes, caller string) (domain.AuthorizationStart, error)
	GetAuthorizationStart(ctx context.Context, id string) (domain.AuthorizationStart, error)
	MarkAuthorizationUsed(ctx context.Context, id string) error
}

// TokenRepository persists the access/refresh token pair per user.
// Set operations are upserts: at most one row exists per (user, kind).
type TokenRepository interface {
	SetAccessToken(ctx context.Context, userID, token string, expiry int64) error
	SetRefreshToken(ctx context.Context, userID, token string, expiry int64) error
	GetAccessToken(ctx context.Context, userID string) (domain.OAuth2Token, error)
	GetRefreshToken(ctx context.Context, userID string) (domain.OAuth2Token, error)
}

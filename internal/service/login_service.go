package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/MrFriendly-B-V/ExactAuth/internal/domain"
	"github.com/MrFriendly-B-V/ExactAuth/internal/exact"
	"github.com/MrFriendly-B-V/ExactAuth/internal/identity"
	"github.com/MrFriendly-B-V/ExactAuth/internal/repository"
)

// Scope is the mrauth scope required for every ExactAuth operation.
const Scope = "nl.mrfriendly.exact"

// TokenExchanger performs OAuth2 grant exchanges against Exact.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string) (exact.TokenPair, error)
	RefreshTokens(ctx context.Context, refreshToken string) (exact.TokenPair, error)
	AuthorizeURL(state, scopes string) string
}

// IdentityResolver resolves a first-party bearer credential to a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, bearer, requiredScope string) (identity.User, error)
}

// LoginService drives the authorization code flow: it opens authorization
// attempts, redeems callback codes, and serves the stored access token.
type LoginService struct {
	users     repository.UserRepository
	auths     repository.AuthorizationRepository
	tokens    repository.TokenRepository
	exchanger TokenExchanger
	identity  IdentityResolver
	logger    *zap.Logger
}

// NewLoginService wires the login service.
func NewLoginService(
	users repository.UserRepository,
	auths repository.AuthorizationRepository,
	tokens repository.TokenRepository,
	exchanger TokenExchanger,
	resolver IdentityResolver,
	logger *zap.Logger,
) *LoginService {
	return &LoginService{
		users:     users,
		auths:     auths,
		tokens:    tokens,
		exchanger: exchanger,
		identity:  resolver,
		logger:    logger,
	}
}

// BeginLogin resolves the caller's identity, opens an authorization start and
// returns the Exact authorization URL the user must be redirected to.
func (s *LoginService) BeginLogin(ctx context.Context, bearer, scopes, caller string) (string, error) {
	authUser, err := s.identity.Resolve(ctx, bearer, Scope)
	if err != nil {
		return "", err
	}

	user, err := s.users.GetByID(ctx, authUser.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		user, err = s.users.Create(ctx, authUser.ID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	start, err := s.auths.StartAuthorization(ctx, user.ID, scopes, caller)
	if err != nil {
		return "", fmt.Errorf("start authorization: %w", err)
	}

	s.logger.Debug("authorization started",
		zap.String("user_id", user.ID),
		zap.String("caller", caller),
	)

	return s.exchanger.AuthorizeURL(start.ID, scopes), nil
}

// CompleteLogin redeems the authorization code Exact sent back. The state
// must match an open authorization start; starts are single-use. On success
// both tokens are persisted and the original caller URL is returned.
func (s *LoginService) CompleteLogin(ctx context.Context, code, state string) (string, error) {
	start, err := s.auths.GetAuthorizationStart(ctx, state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrUnknownState
	}
	if err != nil {
		return "", err
	}
	if start.Used {
		return "", domain.ErrUnknownState
	}

	pair, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return "", err
	}

	if err := s.tokens.SetAccessToken(ctx, start.UserID, pair.Access, pair.AccessExpiry); err != nil {
		return "", fmt.Errorf("persist access token: %w", err)
	}
	if err := s.tokens.SetRefreshToken(ctx, start.UserID, pair.Refresh, pair.RefreshExpiry); err != nil {
		return "", fmt.Errorf("persist refresh token: %w", err)
	}

	if err := s.auths.MarkAuthorizationUsed(ctx, start.ID); err != nil {
		s.logger.Warn("failed to mark authorization start used",
			zap.String("state", start.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("login completed", zap.String("user_id", start.UserID))
	return start.Caller, nil
}

// AccessToken returns the stored Exact access token for the bearer's user.
func (s *LoginService) AccessToken(ctx context.Context, bearer string) (domain.OAuth2Token, error) {
	authUser, err := s.identity.Resolve(ctx, bearer, Scope)
	if err != nil {
		return domain.OAuth2Token{}, err
	}

	user, err := s.users.GetByID(ctx, authUser.ID)
	if err != nil {
		return domain.OAuth2Token{}, err
	}

	return s.tokens.GetAccessToken(ctx, user.ID)
}

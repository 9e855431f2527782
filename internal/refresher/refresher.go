// Package refresher keeps stored Exact access tokens fresh without user
// interaction. It owns no token state itself; every pass re-derives freshness
// from the repositories.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/MrFriendly-B-V/ExactAuth/internal/config"
	"github.com/MrFriendly-B-V/ExactAuth/internal/exact"
	"github.com/MrFriendly-B-V/ExactAuth/internal/repository"
)

// expiryMarginSec is how close to expiry an access token may get before it is
// renewed. Exact access tokens are valid for 10 minutes but may only be
// refreshed within the last 30 seconds of validity; the 1 second difference
// buffers clock and latency skew. This is a protocol constraint of Exact,
// not a tuning knob.
const expiryMarginSec = 29

// TokenRefresher is the slice of the Exact client the refresher needs.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (exact.TokenPair, error)
}

// Refresher periodically scans all users and renews access tokens that are
// expired or about to expire.
type Refresher struct {
	users    repository.UserRepository
	tokens   repository.TokenRepository
	exchange TokenRefresher
	logger   *zap.Logger

	interval      time.Duration
	retryInterval time.Duration
	failFast      bool
	now           func() time.Time
}

// New builds a refresher from configuration.
func New(users repository.UserRepository, tokens repository.TokenRepository, exchange TokenRefresher, cfg config.Config, logger *zap.Logger) *Refresher {
	return &Refresher{
		users:         users,
		tokens:        tokens,
		exchange:      exchange,
		logger:        logger,
		interval:      cfg.RefreshInterval,
		retryInterval: cfg.RefreshRetryInterval,
		failFast:      cfg.RefreshFailFast,
		now:           time.Now,
	}
}

// Run loops until ctx is cancelled. After a clean pass it sleeps the normal
// interval; after a failed pass it retries sooner.
func (r *Refresher) Run(ctx context.Context) {
	for {
		sleep := r.interval
		if err := r.pass(ctx); err != nil {
			r.logger.Warn("token refresh pass failed",
				zap.Error(err),
				zap.Duration("retry_in", r.retryInterval),
			)
			sleep = r.retryInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// pass scans every user once. With failFast set, the first renewal error
// aborts the remaining users (the original whole-batch behavior); otherwise
// failures are logged per user and the scan continues.
func (r *Refresher) pass(ctx context.Context) error {
	users, err := r.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var failed int
	for _, user := range users {
		if err := r.refreshUser(ctx, user.ID); err != nil {
			if r.failFast {
				return fmt.Errorf("refresh user %s: %w", user.ID, err)
			}
			failed++
			r.logger.Warn("failed to refresh tokens for user",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d users failed to refresh", failed, len(users))
	}
	return nil
}

func (r *Refresher) refreshUser(ctx context.Context, userID string) error {
	access, err := r.tokens.GetAccessToken(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		// User has not completed a login yet.
		return nil
	}
	if err != nil {
		return err
	}

	refresh, err := r.tokens.GetRefreshToken(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if !needsRefresh(r.now().Unix(), access.Expiry) {
		return nil
	}

	pair, err := r.exchange.RefreshTokens(ctx, refresh.Token)
	if err != nil {
		return err
	}

	// Exact may rotate the refresh token; only write it back when it changed.
	if pair.Refresh != refresh.Token {
		if err := r.tokens.SetRefreshToken(ctx, userID, pair.Refresh, pair.RefreshExpiry); err != nil {
			return err
		}
	}

	if err := r.tokens.SetAccessToken(ctx, userID, pair.Access, pair.AccessExpiry); err != nil {
		return err
	}

	r.logger.Debug("refreshed tokens", zap.String("user_id", userID))
	return nil
}

// needsRefresh reports whether an access token expiring at expiry (unix
// seconds) must be renewed at time now.
func needsRefresh(now, expiry int64) bool {
	return now >= expiry || expiry-now < expiryMarginSec
}

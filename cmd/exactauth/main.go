package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/MrFriendly-B-V/ExactAuth/internal/config"
	"github.com/MrFriendly-B-V/ExactAuth/internal/exact"
	httptransport "github.com/MrFriendly-B-V/ExactAuth/internal/http"
	"github.com/MrFriendly-B-V/ExactAuth/internal/http/handler"
	"github.com/MrFriendly-B-V/ExactAuth/internal/identity"
	"github.com/MrFriendly-B-V/ExactAuth/internal/refresher"
	"github.com/MrFriendly-B-V/ExactAuth/internal/repository"
	"github.com/MrFriendly-B-V/ExactAuth/internal/server"
	"github.com/MrFriendly-B-V/ExactAuth/internal/service"
	"github.com/MrFriendly-B-V/ExactAuth/internal/telemetry"
)

const version = "1.0.0"

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newUserRepository,
			newAuthorizationRepository,
			newTokenRepository,
			newExactClient,
			newIdentityClient,
			newLoginService,
			newRefresher,
			handler.NewAuthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startRefresher, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newAuthorizationRepository(pool *pgxpool.Pool) repository.AuthorizationRepository {
	return repository.NewPostgresAuthorizationRepo(pool)
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newExactClient(cfg config.Config) *exact.Client {
	userAgent := fmt.Sprintf("MrFriendly %s v%s", cfg.ServiceName, version)
	return exact.NewClient(cfg.ExactBaseURL, cfg.ExactClientID, cfg.ExactClientSecret, cfg.RedirectURI, userAgent)
}

func newIdentityClient(cfg config.Config) *identity.Client {
	userAgent := fmt.Sprintf("MrFriendly %s v%s", cfg.ServiceName, version)
	return identity.NewClient(cfg.MrAuthURL, userAgent)
}

func newLoginService(
	users repository.UserRepository,
	auths repository.AuthorizationRepository,
	tokens repository.TokenRepository,
	client *exact.Client,
	resolver *identity.Client,
	logger *zap.Logger,
) *service.LoginService {
	return service.NewLoginService(users, auths, tokens, client, resolver, logger)
}

func newRefresher(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	client *exact.Client,
	cfg config.Config,
	logger *zap.Logger,
) *refresher.Refresher {
	return refresher.New(users, tokens, client, cfg, logger)
}

func startRefresher(lc fx.Lifecycle, r *refresher.Refresher) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				r.Run(runCtx)
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}

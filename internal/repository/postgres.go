package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrFriendly-B-V/ExactAuth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository          = (*PostgresUserRepo)(nil)
	_ AuthorizationRepository = (*PostgresAuthorizationRepo)(nil)
	_ TokenRepository         = (*PostgresTokenRepo)(nil)
)

const stateIDLength = 32

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

func (r *PostgresUserRepo) Create(ctx context.Context, id string) (domain.User, error) {
	if _, err := r.db.Exec(ctx, `INSERT INTO users (id) VALUES ($1)`, id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, domain.ErrDuplicateUser
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return domain.User{ID: id}, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	var found string
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1`, id).Scan(&found)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return domain.User{ID: found}, nil
}

func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, domain.User{ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// PostgresAuthorizationRepo implements AuthorizationRepository.
type PostgresAuthorizationRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAuthorizationRepo(pool *pgxpool.Pool) *PostgresAuthorizationRepo {
	return &PostgresAuthorizationRepo{db: pool}
}

const insertAuthorizationSQL = `INSERT INTO oauth2_authorization_start (id, user_id, timestamp, caller, scopes, used)
VALUES ($1, $2, $3, $4, $5, false)`

func (r *PostgresAuthorizationRepo) StartAuthorization(ctx context.Context, userID, scopes, caller string) (domain.AuthorizationStart, error) {
	id, err := randomID(stateIDLength)
	if err != nil {
		return domain.AuthorizationStart{}, fmt.Errorf("generate state: %w", err)
	}
	now := time.Now().Unix()

	if _, err := r.db.Exec(ctx, insertAuthorizationSQL, id, userID, now, caller, scopes); err != nil {
		return domain.AuthorizationStart{}, fmt.Errorf("insert authorization start: %w", err)
	}

	return domain.AuthorizationStart{
		ID:        id,
		UserID:    userID,
		Timestamp: now,
		Caller:    caller,
		Scopes:    scopes,
	}, nil
}

const getAuthorizationSQL = `SELECT user_id, timestamp, caller, scopes, used
FROM oauth2_authorization_start WHERE id = $1`

func (r *PostgresAuthorizationRepo) GetAuthorizationStart(ctx context.Context, id string) (domain.AuthorizationStart, error) {
	var start domain.AuthorizationStart
	start.ID = id
	err := r.db.QueryRow(ctx, getAuthorizationSQL, id).
		Scan(&start.UserID, &start.Timestamp, &start.Caller, &start.Scopes, &start.Used)
	if err != nil {
		return domain.AuthorizationStart{}, fmt.Errorf("get authorization start: %w", err)
	}

	// A start record whose user row is gone is corruption, not absence.
	var one int
	err = r.db.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, start.UserID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AuthorizationStart{}, domain.ErrBrokenReference
	}
	if err != nil {
		return domain.AuthorizationStart{}, fmt.Errorf("check authorization user: %w", err)
	}

	return start, nil
}

func (r *PostgresAuthorizationRepo) MarkAuthorizationUsed(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE oauth2_authorization_start SET used = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark authorization used: %w", err)
	}
	return nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

const upsertTokenSQL = `INSERT INTO oauth2_tokens (user_id, token_kind, token, expiry)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, token_kind) DO UPDATE SET token = EXCLUDED.token, expiry = EXCLUDED.expiry`

func (r *PostgresTokenRepo) SetAccessToken(ctx context.Context, userID, token string, expiry int64) error {
	return r.setToken(ctx, userID, domain.TokenKindAccess, token, expiry)
}

func (r *PostgresTokenRepo) SetRefreshToken(ctx context.Context, userID, token string, expiry int64) error {
	return r.setToken(ctx, userID, domain.TokenKindRefresh, token, expiry)
}

func (r *PostgresTokenRepo) setToken(ctx context.Context, userID string, kind domain.TokenKind, token string, expiry int64) error {
	if _, err := r.db.Exec(ctx, upsertTokenSQL, userID, string(kind), token, expiry); err != nil {
		return fmt.Errorf("upsert %s token: %w", kind, err)
	}
	return nil
}

func (r *PostgresTokenRepo) GetAccessToken(ctx context.Context, userID string) (domain.OAuth2Token, error) {
	return r.getToken(ctx, userID, domain.TokenKindAccess)
}

func (r *PostgresTokenRepo) GetRefreshToken(ctx context.Context, userID string) (domain.OAuth2Token, error) {
	return r.getToken(ctx, userID, domain.TokenKindRefresh)
}

const getTokenSQL = `SELECT token, expiry FROM oauth2_tokens WHERE user_id = $1 AND token_kind = $2`

func (r *PostgresTokenRepo) getToken(ctx context.Context, userID string, kind domain.TokenKind) (domain.OAuth2Token, error) {
	tok := domain.OAuth2Token{UserID: userID, Kind: kind}
	err := r.db.QueryRow(ctx, getTokenSQL, userID, string(kind)).Scan(&tok.Token, &tok.Expiry)
	if err != nil {
		return domain.OAuth2Token{}, fmt.Errorf("get %s token: %w", kind, err)
	}
	return tok, nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomID returns an unguessable alphanumeric identifier of the given length.
func randomID(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return string(buf), nil
}

package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrFriendly-B-V/ExactAuth/internal/domain"
	"github.com/MrFriendly-B-V/ExactAuth/internal/exact"
	"github.com/MrFriendly-B-V/ExactAuth/internal/identity"
	"github.com/MrFriendly-B-V/ExactAuth/internal/service"
)

func newTestService(id *fakeIdentity, ex *fakeExchanger) (*service.LoginService, *memoryUserRepo, *memoryAuthRepo, *memoryTokenRepo) {
	users := &memoryUserRepo{users: map[string]bool{}}
	auths := &memoryAuthRepo{starts: map[string]domain.AuthorizationStart{}}
	tokens := &memoryTokenRepo{tokens: map[string]domain.OAuth2Token{}}
	svc := service.NewLoginService(users, auths, tokens, ex, id, zap.NewNop())
	return svc, users, auths, tokens
}

func TestBeginLoginOpensAuthorizationStart(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchanger{}
	svc, users, auths, _ := newTestService(&fakeIdentity{userID: "u1"}, ex)

	redirect, err := svc.BeginLogin(ctx, "bearer-1", "crm", "https://caller.example/done")
	require.NoError(t, err)

	require.True(t, users.users["u1"], "user should be created on first login")
	require.Len(t, auths.starts, 1)
	for _, start := range auths.starts {
		require.Equal(t, "u1", start.UserID)
		require.Equal(t, "crm", start.Scopes)
		require.Equal(t, "https://caller.example/done", start.Caller)
		require.Contains(t, redirect, "state="+start.ID)
	}

	// A second login must reuse the existing user.
	_, err = svc.BeginLogin(ctx, "bearer-1", "crm", "https://caller.example/done")
	require.NoError(t, err)
	require.Equal(t, 1, users.created)
	require.Len(t, auths.starts, 2)
}

func TestBeginLoginRejectsUnknownBearer(t *testing.T) {
	svc, users, auths, _ := newTestService(&fakeIdentity{err: identity.ErrUnknownToken}, &fakeExchanger{})

	_, err := svc.BeginLogin(context.Background(), "bad", "crm", "https://caller.example")
	require.ErrorIs(t, err, identity.ErrUnknownToken)
	require.Empty(t, users.users)
	require.Empty(t, auths.starts)
}

func TestCompleteLoginUnknownStateIsForbidden(t *testing.T) {
	ex := &fakeExchanger{}
	svc, _, _, tokens := newTestService(&fakeIdentity{userID: "u1"}, ex)

	_, err := svc.CompleteLogin(context.Background(), "code", "nope")
	require.ErrorIs(t, err, domain.ErrUnknownState)
	require.Zero(t, ex.exchangeCalls, "no partner call for unknown state")
	require.Zero(t, tokens.setAccessCalls)
	require.Zero(t, tokens.setRefreshCalls)
}

func TestCompleteLoginPersistsTokenPair(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchanger{pair: exact.TokenPair{
		Access:        "a1",
		Refresh:       "r1",
		AccessExpiry:  5600,
		RefreshExpiry: 9000,
	}}
	svc, _, auths, tokens := newTestService(&fakeIdentity{userID: "u1"}, ex)

	_, err := svc.BeginLogin(ctx, "bearer-1", "crm", "https://caller.example/done")
	require.NoError(t, err)
	state := auths.lastID

	caller, err := svc.CompleteLogin(ctx, "the-code", state)
	require.NoError(t, err)
	require.Equal(t, "https://caller.example/done", caller)
	require.Equal(t, "the-code", ex.lastCode)

	access, err := tokens.GetAccessToken(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "a1", access.Token)
	require.Equal(t, int64(5600), access.Expiry)

	refresh, err := tokens.GetRefreshToken(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "r1", refresh.Token)
	require.Equal(t, int64(9000), refresh.Expiry)

	// Starts are single-use: redeeming the same state again is forbidden
	// and triggers no second exchange.
	_, err = svc.CompleteLogin(ctx, "the-code", state)
	require.ErrorIs(t, err, domain.ErrUnknownState)
	require.Equal(t, 1, ex.exchangeCalls)
}

func TestCompleteLoginPropagatesInvalidGrant(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchanger{exchangeErr: exact.ErrInvalidGrant}
	svc, _, auths, tokens := newTestService(&fakeIdentity{userID: "u1"}, ex)

	_, err := svc.BeginLogin(ctx, "bearer-1", "crm", "https://caller.example")
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, "expired-code", auths.lastID)
	require.ErrorIs(t, err, exact.ErrInvalidGrant)
	require.Zero(t, tokens.setAccessCalls)
}

func TestAccessTokenRequiresStoredToken(t *testing.T) {
	ctx := context.Background()
	svc, users, _, tokens := newTestService(&fakeIdentity{userID: "u1"}, &fakeExchanger{})
	users.users["u1"] = true

	_, err := svc.AccessToken(ctx, "bearer-1")
	require.ErrorIs(t, err, pgx.ErrNoRows)

	require.NoError(t, tokens.SetAccessToken(ctx, "u1", "a1", 4242))
	token, err := svc.AccessToken(ctx, "bearer-1")
	require.NoError(t, err)
	require.Equal(t, "a1", token.Token)
	require.Equal(t, int64(4242), token.Expiry)
}

type memoryUserRepo struct {
	users   map[string]bool
	created int
}

func (m *memoryUserRepo) Create(ctx context.Context, id string) (domain.User, error) {
	if m.users[id] {
		return domain.User{}, domain.ErrDuplicateUser
	}
	m.users[id] = true
	m.created++
	return domain.User{ID: id}, nil
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	if !m.users[id] {
		return domain.User{}, pgx.ErrNoRows
	}
	return domain.User{ID: id}, nil
}

func (m *memoryUserRepo) ListAll(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	for id := range m.users {
		users = append(users, domain.User{ID: id})
	}
	return users, nil
}

type memoryAuthRepo struct {
	starts map[string]domain.AuthorizationStart
	seq    int
	lastID string
}

func (m *memoryAuthRepo) StartAuthorization(ctx context.Context, userID, scopes, caller string) (domain.AuthorizationStart, error) {
	m.seq++
	start := domain.AuthorizationStart{
		ID:     fmt.Sprintf("state%027d", m.seq),
		UserID: userID,
		Caller: caller,
		Scopes: scopes,
	}
	m.starts[start.ID] = start
	m.lastID = start.ID
	return start, nil
}

func (m *memoryAuthRepo) GetAuthorizationStart(ctx context.Context, id string) (domain.AuthorizationStart, error) {
	start, ok := m.starts[id]
	if !ok {
		return domain.AuthorizationStart{}, pgx.ErrNoRows
	}
	return start, nil
}

func (m *memoryAuthRepo) MarkAuthorizationUsed(ctx context.Context, id string) error {
	start, ok := m.starts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	start.Used = true
	m.starts[id] = start
	return nil
}

type memoryTokenRepo struct {
	tokens          map[string]domain.OAuth2Token
	setAccessCalls  int
	setRefreshCalls int
}

func (m *memoryTokenRepo) SetAccessToken(ctx context.Context, userID, token string, expiry int64) error {
	m.setAccessCalls++
	m.tokens[userID+"/Access"] = domain.OAuth2Token{UserID: userID, Kind: domain.TokenKindAccess, Token: token, Expiry: expiry}
	return nil
}

func (m *memoryTokenRepo) SetRefreshToken(ctx context.Context, userID, token string, expiry int64) error {
	m.setRefreshCalls++
	m.tokens[userID+"/Refresh"] = domain.OAuth2Token{UserID: userID, Kind: domain.TokenKindRefresh, Token: token, Expiry: expiry}
	return nil
}

func (m *memoryTokenRepo) GetAccessToken(ctx context.Context, userID string) (domain.OAuth2Token, error) {
	tok, ok := m.tokens[userID+"/Access"]
	if !ok {
		return domain.OAuth2Token{}, pgx.ErrNoRows
	}
	return tok, nil
}

func (m *memoryTokenRepo) GetRefreshToken(ctx context.Context, userID string) (domain.OAuth2Token, error) {
	tok, ok := m.tokens[userID+"/Refresh"]
	if !ok {
		return domain.OAuth2Token{}, pgx.ErrNoRows
	}
	return tok, nil
}

type fakeExchanger struct {
	pair        exact.TokenPair
	exchangeErr error

	exchangeCalls int
	lastCode      string
}

func (f *fakeExchanger) ExchangeCode(ctx context.Context, code string) (exact.TokenPair, error) {
	f.exchangeCalls++
	f.lastCode = code
	if f.exchangeErr != nil {
		return exact.TokenPair{}, f.exchangeErr
	}
	return f.pair, nil
}

func (f *fakeExchanger) RefreshTokens(ctx context.Context, refreshToken string) (exact.TokenPair, error) {
	return f.pair, f.exchangeErr
}

func (f *fakeExchanger) AuthorizeURL(state, scopes string) string {
	return "https://start.exactonline.nl/api/oauth2/auth?state=" + state + "&scopes=" + scopes
}

type fakeIdentity struct {
	userID string
	err    error
}

func (f *fakeIdentity) Resolve(ctx context.Context, bearer, requiredScope string) (identity.User, error) {
	if f.err != nil {
		return identity.User{}, f.err
	}
	return identity.User{ID: f.userID, Scopes: []string{requiredScope}}, nil
}

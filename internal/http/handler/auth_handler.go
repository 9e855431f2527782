package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/MrFriendly-B-V/ExactAuth/internal/domain"
	"github.com/MrFriendly-B-V/ExactAuth/internal/exact"
	"github.com/MrFriendly-B-V/ExactAuth/internal/identity"
	"github.com/MrFriendly-B-V/ExactAuth/internal/service"
)

// AuthHandler exposes the login flow and access token endpoints.
type AuthHandler struct {
	Login *service.LoginService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(login *service.LoginService) *AuthHandler {
	return &AuthHandler{Login: login}
}

// BeginLogin starts the authorization code flow and redirects the user to
// Exact's consent page.
func (h *AuthHandler) BeginLogin(c *gin.Context) {
	var req struct {
		Bearer string `form:"bearer" binding:"required"`
		Scopes string `form:"scopes" binding:"required"`
		Caller string `form:"caller" binding:"required"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "bearer, scopes, and caller are required."})
		return
	}

	redirect, err := h.Login.BeginLogin(c.Request.Context(), req.Bearer, req.Scopes, req.Caller)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

// LoggedIn handles the redirect back from Exact and redeems the code.
func (h *AuthHandler) LoggedIn(c *gin.Context) {
	var req struct {
		Code  string `form:"code" binding:"required"`
		State string `form:"state" binding:"required"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "code and state are required."})
		return
	}

	caller, err := h.Login.CompleteLogin(c.Request.Context(), req.Code, req.State)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, caller)
}

// AccessToken returns the stored Exact access token for the calling user.
func (h *AuthHandler) AccessToken(c *gin.Context) {
	bearer, ok := bearerToken(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header missing or invalid."})
		return
	}

	token, err := h.Login.AccessToken(c.Request.Context(), bearer)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token.Token,
		"expires_at": token.Expiry,
	})
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	logger := zap.L()

	var partnerErr *exact.PartnerError
	var transportErr *exact.TransportError

	switch {
	case errors.Is(err, domain.ErrUnknownState):
		logger.Warn("rejected unknown authorization state", zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Unknown state."})
	case errors.Is(err, identity.ErrUnknownToken), errors.Is(err, identity.ErrMissingScope):
		logger.Warn("identity check failed", zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Authorization failed."})
	case errors.Is(err, identity.ErrUnavailable):
		logger.Error("identity provider unreachable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": "Identity provider unavailable."})
	case errors.Is(err, pgx.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Not found."})
	case errors.Is(err, exact.ErrInvalidGrant):
		logger.Warn("token exchange rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "The code or token is invalid or has expired."})
	case errors.As(err, &transportErr):
		logger.Error("partner unreachable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": "Error at upstream partner."})
	case errors.As(err, &partnerErr):
		logger.Error("partner returned oauth2 error", zap.String("code", partnerErr.Code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Token exchange failed."})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

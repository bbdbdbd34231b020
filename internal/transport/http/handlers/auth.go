package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Satya1612t/ela/internal/core/domain"
	"github.com/Satya1612t/ela/internal/infra/logger"
	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/usecase"
)

// AuthHandler exposes login, refresh, logout and session endpoints.
type AuthHandler struct {
	auth    *usecase.AuthService
	cookies CookieOptions
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithCookieOptions sets the domain, security flag and lifetimes of the session cookies.
func WithCookieOptions(opts CookieOptions) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.cookies = opts.withDefaults()
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:    auth,
		cookies: CookieOptions{Secure: true}.withDefaults(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

// Login answers a verified token presented for another phone exactly like a forged one.
var loginErrorCases = []ErrorCase{
	{Err: domain.ErrIdentityMismatch, Status: http.StatusUnauthorized, Message: "Invalid token", Code: domain.CodeTokenInvalid},
}

var refreshErrorCases = []ErrorCase{
	{Err: usecase.ErrMissingRefreshToken, Status: http.StatusUnauthorized, Message: "Refresh token missing"},
	{Err: usecase.ErrRefreshTokenInvalid, Status: http.StatusUnauthorized, Message: "Refresh token is invalid or expired"},
	{Err: usecase.ErrTokenAccountMismatch, Status: http.StatusUnauthorized, Message: "Token account mismatch"},
}

// AdminLogin godoc
// @Summary Log in to the back office
// @Description Verifies a federated or locally issued bearer token for the submitted phone and opens an ADMIN or COADMIN session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/v1/auth/admin/login [post]
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	h.login(c, usecase.SurfaceAdmin, "Admin login successful.")
}

// UserLogin godoc
// @Summary Log in to the storefront
// @Description Verifies a federated or locally issued bearer token for the submitted phone and opens a USER session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/v1/auth/user/login [post]
func (h *AuthHandler) UserLogin(c *gin.Context) {
	h.login(c, usecase.SurfaceUser, "User login successful.")
}

func (h *AuthHandler) login(c *gin.Context, surface usecase.LoginSurface, message string) {
	bearer := middleware.BearerToken(c.GetHeader("Authorization"))
	if bearer == "" {
		RespondWithMappedError(c, usecase.ErrMissingBearer)
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	session, err := h.auth.Login(c.Request.Context(), surface, bearer, strings.TrimSpace(req.Phone))
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases...)
		return
	}

	h.cookies.setSessionCookies(c, session)
	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Message: message,
		User:    session.Account.Public(),
	})
}

// Refresh godoc
// @Summary Rotate the session tokens
// @Description Redeems the refresh token from the cookie or request body exactly once and sets a new token pair.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshRequest false "Refresh token when cookies are unavailable"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	session, err := h.auth.Refresh(c.Request.Context(), refreshTokenFrom(c))
	if err != nil {
		RespondWithMappedError(c, err, refreshErrorCases...)
		return
	}

	h.cookies.setSessionCookies(c, session)
	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Message: "Session refreshed successfully",
		User:    session.Account.Public(),
	})
}

// Logout godoc
// @Summary Log out
// @Description Revokes the presented refresh token (or every refresh token of the access token's account) and clears the session cookies.
// @Tags Authentication
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	accessToken, _ := c.Cookie(middleware.AccessTokenCookie)
	if strings.TrimSpace(accessToken) == "" {
		accessToken = middleware.BearerToken(c.GetHeader("Authorization"))
	}

	if err := h.auth.Logout(c.Request.Context(), refreshTokenFrom(c), accessToken); err != nil {
		logger.WithContext(c.Request.Context()).Warn("logout revocation failed", zap.Error(err))
	}

	h.cookies.clearSessionCookies(c)
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Logged out successfully."})
}

// Session godoc
// @Summary Current session
// @Description Returns the account behind the authenticated access token.
// @Tags Authentication
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/auth/session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	claim, _ := middleware.GetSessionClaim(c)
	account, err := h.auth.Session(c.Request.Context(), claim)
	if err != nil {
		RespondWithMappedError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Message: "Session is valid",
		User:    account.Public(),
	})
}

// refreshTokenFrom prefers the cookie and falls back to the JSON body.
func refreshTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(RefreshTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return cookie
	}
	var req RefreshRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	return req.RefreshToken
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Satya1612t/ela/internal/transport/http/middleware"
	"github.com/Satya1612t/ela/internal/usecase"
)

// RegistrationHandler exposes account onboarding endpoints.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	cookies      CookieOptions
}

// NewRegistrationHandler constructs a RegistrationHandler. Self-registered users receive the same
// session cookies as a login.
func NewRegistrationHandler(registration *usecase.RegistrationService, cookies CookieOptions) *RegistrationHandler {
	return &RegistrationHandler{
		registration: registration,
		cookies:      cookies.withDefaults(),
	}
}

var registrationErrorCases = []ErrorCase{
	{Err: usecase.ErrAccountExists, Status: http.StatusConflict, Message: "User already registered"},
}

// RegisterUser godoc
// @Summary Register a storefront user
// @Description Creates the federated identity and local USER account, then opens a session.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/v1/auth/user/register [post]
func (h *RegistrationHandler) RegisterUser(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	session, err := h.registration.RegisterUser(c.Request.Context(), usecase.RegistrationInput{
		Phone: req.Phone,
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases...)
		return
	}

	h.cookies.setSessionCookies(c, session)
	c.JSON(http.StatusCreated, AuthResponse{
		Success: true,
		Message: "User registered successfully",
		User:    session.Account.Public(),
	})
}

// RegisterCoAdmin godoc
// @Summary Register a co-admin
// @Description Creates a COADMIN account on behalf of the calling ADMIN. No cookies are set.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/auth/coadmin/register [post]
func (h *RegistrationHandler) RegisterCoAdmin(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	claim, _ := middleware.GetSessionClaim(c)
	registeredBy := ""
	if claim != nil {
		registeredBy = claim.ID
	}

	session, err := h.registration.RegisterCoAdmin(c.Request.Context(), usecase.RegistrationInput{
		Phone: req.Phone,
		Email: req.Email,
		Name:  req.Name,
	}, registeredBy)
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases...)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		Success: true,
		Message: "Co-admin registered successfully",
		User:    session.Account.Public(),
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/transport/http/middleware"
	"github.com/arklim/exam-bank-service/internal/usecase"
)

// AuthHandler serves registration, login and profile endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	logger       *zap.Logger
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthHandler{auth: auth, registration: registration, logger: log}
}

var registerErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email address"},
	{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet complexity requirements"},
	{Err: usecase.ErrEmailNotVerified, Status: http.StatusForbidden, Message: "email address not verified"},
	{Err: usecase.ErrEmailAlreadyRegistered, Status: http.StatusConflict, Message: "email address already registered"},
}

// Register creates an account for a verified email address.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	user, err := h.registration.RegisterUser(c.Request.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, registerErrorCases, http.StatusInternalServerError, "failed to register account")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message: "account created",
		User:    newUserSummary(user),
	})
}

// Login authenticates credentials and returns a signed access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	token, user, err := h.auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid email or password"))
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to authenticate"))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token: token,
		User:  newUserSummary(user),
	})
}

// Me returns the authenticated account's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		h.logger.Error("failed to load current user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load profile"))
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

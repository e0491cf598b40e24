package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
	"github.com/arklim/exam-bank-service/internal/repository"
	"github.com/arklim/exam-bank-service/internal/usecase"
)

// OTPHandler serves email verification code endpoints.
type OTPHandler struct {
	otp    *usecase.OTPService
	users  port.UserRepository
	logger *zap.Logger
}

// NewOTPHandler builds an OTPHandler.
func NewOTPHandler(otp *usecase.OTPService, users port.UserRepository, log *zap.Logger) *OTPHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &OTPHandler{otp: otp, users: users, logger: log}
}

// Send issues a verification code for an email address that is not yet registered.
func (h *OTPHandler) Send(c *gin.Context) {
	var req OTPSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !usecase.ValidEmail(email) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid email address"))
		return
	}

	if _, err := h.users.GetByEmail(c.Request.Context(), email); err == nil {
		c.JSON(http.StatusConflict, NewErrorResponse(c, "email address already registered"))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		h.logger.Error("failed to check email registration state",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to send verification code"))
		return
	}

	if err := h.otp.Issue(c.Request.Context(), email); err != nil {
		var rateErr *usecase.RateLimitExceededError
		switch {
		case errors.As(err, &rateErr):
			retryAfter := int(rateErr.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many verification codes requested, try again later"))
		case errors.Is(err, usecase.ErrOTPDispatchFailed):
			c.JSON(http.StatusBadGateway, NewErrorResponse(c, "failed to deliver verification code"))
		default:
			h.logger.Error("failed to issue verification code",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to send verification code"))
		}
		return
	}

	c.JSON(http.StatusOK, OTPSendResponse{
		Message: "verification code sent",
		Email:   email,
	})
}

// Verify checks a submitted verification code.
func (h *OTPHandler) Verify(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.OTP)
	if email == "" || code == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and otp are required"))
		return
	}

	result, err := h.otp.Verify(c.Request.Context(), email, code)
	if err != nil {
		h.logger.Error("verification code check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to verify code"))
		return
	}

	if !result.Valid {
		c.JSON(http.StatusBadRequest, OTPVerifyResponse{
			Verified: false,
			Reason:   result.Reason,
		})
		return
	}

	c.JSON(http.StatusOK, OTPVerifyResponse{
		Verified: true,
		Email:    result.Email,
	})
}

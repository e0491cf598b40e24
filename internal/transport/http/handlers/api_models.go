package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/exam-bank-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness information.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// UserSummary describes the view of an account returned by the API.
type UserSummary struct {
	ID           string     `json:"id"`
	FullName     string     `json:"fullName"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	RegisteredAt time.Time  `json:"registeredAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:           user.ID,
		FullName:     user.FullName,
		Email:        user.Email,
		Role:         string(user.Role),
		RegisteredAt: user.RegisteredAt,
		LastLogin:    user.LastLogin,
	}
}

// OTPSendRequest defines the payload to request a verification code.
type OTPSendRequest struct {
	Email string `json:"email" binding:"required"`
}

// OTPSendResponse acknowledges a dispatched verification code.
type OTPSendResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// OTPVerifyRequest defines the payload to verify a code.
type OTPVerifyRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// OTPVerifyResponse reports the verification outcome.
type OTPVerifyResponse struct {
	Verified bool   `json:"verified"`
	Email    string `json:"email,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse contains the created account.
type RegisterResponse struct {
	Message string      `json:"message"`
	User    UserSummary `json:"user"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

// SubOptionPayload mirrors a nested answer choice.
type SubOptionPayload struct {
	OptionText string `json:"optionText" binding:"required"`
	IsCorrect  bool   `json:"isCorrect"`
}

// SubQuestionPayload mirrors a nested sub-question.
type SubQuestionPayload struct {
	SubQuestionNumber string             `json:"subQuestionNumber"`
	SubQuestionText   string             `json:"subQuestionText" binding:"required"`
	SubOptions        []SubOptionPayload `json:"subOptions"`
}

// QuestionRequest defines the create/update payload for questions.
type QuestionRequest struct {
	Subject        string               `json:"subject" binding:"required"`
	ExamType       string               `json:"examType" binding:"required"`
	Year           string               `json:"year" binding:"required"`
	Month          string               `json:"month"`
	Group          string               `json:"group" binding:"required"`
	PaperName      string               `json:"paperName" binding:"required"`
	QuestionNumber int                  `json:"questionNumber" binding:"required"`
	QuestionText   string               `json:"questionText" binding:"required"`
	AnswerText     string               `json:"answerText"`
	PageNumber     string               `json:"pageNumber"`
	SubQuestions   []SubQuestionPayload `json:"subQuestions"`
}

// QuestionResponse is the API view of a stored question.
type QuestionResponse struct {
	ID             string               `json:"id"`
	Subject        string               `json:"subject"`
	ExamType       string               `json:"examType"`
	Year           string               `json:"year"`
	Month          string               `json:"month,omitempty"`
	Group          string               `json:"group"`
	PaperName      string               `json:"paperName"`
	QuestionNumber int                  `json:"questionNumber"`
	QuestionText   string               `json:"questionText"`
	AnswerText     string               `json:"answerText,omitempty"`
	PageNumber     string               `json:"pageNumber,omitempty"`
	SubQuestions   []domain.SubQuestion `json:"subQuestions,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

func newQuestionResponse(question domain.Question) QuestionResponse {
	return QuestionResponse{
		ID:             question.ID,
		Subject:        question.Subject,
		ExamType:       question.ExamType,
		Year:           question.Year,
		Month:          question.Month,
		Group:          question.Group,
		PaperName:      question.PaperName,
		QuestionNumber: question.QuestionNumber,
		QuestionText:   question.QuestionText,
		AnswerText:     question.AnswerText,
		PageNumber:     question.PageNumber,
		SubQuestions:   question.SubQuestions,
		CreatedAt:      question.CreatedAt,
		UpdatedAt:      question.UpdatedAt,
	}
}

// FieldErrorPayload mirrors a single validation failure.
type FieldErrorPayload struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse aggregates field errors for a rejected payload.
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Fields  []FieldErrorPayload `json:"fields"`
	TraceID string              `json:"trace_id,omitempty"`
}

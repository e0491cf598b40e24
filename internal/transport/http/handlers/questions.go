package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/transport/http/middleware"
	"github.com/arklim/exam-bank-service/internal/usecase"
)

// QuestionHandler serves the exam question bank endpoints.
type QuestionHandler struct {
	questions *usecase.QuestionService
	logger    *zap.Logger
}

// NewQuestionHandler builds a QuestionHandler.
func NewQuestionHandler(questions *usecase.QuestionService, log *zap.Logger) *QuestionHandler {
	if log == nil {
		log = zap.NewNop()
	}

	return &QuestionHandler{questions: questions, logger: log}
}

func questionInputFromRequest(req QuestionRequest) usecase.QuestionInput {
	input := usecase.QuestionInput{
		Subject:        req.Subject,
		ExamType:       req.ExamType,
		Year:           req.Year,
		Month:          req.Month,
		Group:          req.Group,
		PaperName:      req.PaperName,
		QuestionNumber: req.QuestionNumber,
		QuestionText:   req.QuestionText,
		AnswerText:     req.AnswerText,
		PageNumber:     req.PageNumber,
	}

	for _, sq := range req.SubQuestions {
		sub := domain.SubQuestion{
			SubQuestionNumber: sq.SubQuestionNumber,
			SubQuestionText:   sq.SubQuestionText,
		}
		for _, opt := range sq.SubOptions {
			sub.SubOptions = append(sub.SubOptions, domain.SubOption{
				OptionText: opt.OptionText,
				IsCorrect:  opt.IsCorrect,
			})
		}
		input.SubQuestions = append(input.SubQuestions, sub)
	}

	return input
}

func respondValidationError(c *gin.Context, valErr *usecase.ValidationError) {
	fields := make([]FieldErrorPayload, 0, len(valErr.Fields))
	for _, f := range valErr.Fields {
		fields = append(fields, FieldErrorPayload{Field: f.Field, Message: f.Message})
	}

	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Error:   "invalid question payload",
		Fields:  fields,
		TraceID: traceIDStr,
	})
}

// List returns questions matching the optional subject, year and questionNumber filters.
func (h *QuestionHandler) List(c *gin.Context) {
	filter := domain.QuestionFilter{
		Subject: c.Query("subject"),
		Year:    c.Query("year"),
	}

	if raw := c.Query("questionNumber"); raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "questionNumber must be an integer"))
			return
		}
		filter.QuestionNumber = &number
	}

	questions, err := h.questions.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list questions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list questions"))
		return
	}

	responses := make([]QuestionResponse, 0, len(questions))
	for _, q := range questions {
		responses = append(responses, newQuestionResponse(q))
	}

	c.JSON(http.StatusOK, responses)
}

// Get returns a single question by ID.
func (h *QuestionHandler) Get(c *gin.Context) {
	question, err := h.questions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrQuestionNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "question not found"))
			return
		}
		h.logger.Error("failed to load question", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load question"))
		return
	}

	c.JSON(http.StatusOK, newQuestionResponse(*question))
}

// Create stores a new question.
func (h *QuestionHandler) Create(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)

	question, err := h.questions.Create(c.Request.Context(), questionInputFromRequest(req), actorID)
	if err != nil {
		var valErr *usecase.ValidationError
		if errors.As(err, &valErr) {
			respondValidationError(c, valErr)
			return
		}
		h.logger.Error("failed to create question", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to create question"))
		return
	}

	c.JSON(http.StatusCreated, newQuestionResponse(*question))
}

// Update replaces a stored question.
func (h *QuestionHandler) Update(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)

	question, err := h.questions.Update(c.Request.Context(), c.Param("id"), questionInputFromRequest(req), actorID)
	if err != nil {
		var valErr *usecase.ValidationError
		switch {
		case errors.As(err, &valErr):
			respondValidationError(c, valErr)
		case errors.Is(err, usecase.ErrQuestionNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "question not found"))
		default:
			h.logger.Error("failed to update question", zap.Error(err))
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to update question"))
		}
		return
	}

	c.JSON(http.StatusOK, newQuestionResponse(*question))
}

// Delete removes a stored question.
func (h *QuestionHandler) Delete(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.questions.Delete(c.Request.Context(), c.Param("id"), actorID); err != nil {
		if errors.Is(err, usecase.ErrQuestionNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "question not found"))
			return
		}
		h.logger.Error("failed to delete question", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to delete question"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "question deleted"})
}

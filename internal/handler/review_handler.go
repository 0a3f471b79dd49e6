package handler

import (
	"errors"
	"net/http"

	"github.com/coursekart/exam-engine/internal/middleware"
	"github.com/coursekart/exam-engine/internal/model"
	"github.com/coursekart/exam-engine/internal/response"
	"github.com/coursekart/exam-engine/internal/service"
	"github.com/coursekart/exam-engine/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReviewHandler handles reviewer-facing manual grading endpoints.
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// ReviewAnswer godoc
// POST /api/v1/reviewer/attempts/:attempt_id/review
func (h *ReviewHandler) ReviewAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReviewAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.reviewService.ReviewAnswer(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, service.ErrQuestionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrResultNotReady):
			response.Fail(c, http.StatusBadRequest, response.ErrResultNotReady)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Finalize godoc
// POST /api/v1/reviewer/attempts/:attempt_id/finalize
func (h *ReviewHandler) Finalize(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.reviewService.Finalize(c.Request.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, service.ErrReviewPending):
			response.Fail(c, http.StatusBadRequest, response.ErrReviewPending)
		case errors.Is(err, service.ErrResultNotReady):
			response.Fail(c, http.StatusBadRequest, response.ErrResultNotReady)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

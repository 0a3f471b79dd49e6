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

// AttemptHandler handles the student-facing attempt lifecycle endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// failLifecycleError maps lifecycle engine errors onto HTTP status codes.
// Messages travel through unchanged; the boundary only picks the code.
func failLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusBadRequest, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrAlreadyInProgress):
		response.Fail(c, http.StatusBadRequest, response.ErrAlreadyInProgress)
	case errors.Is(err, service.ErrNotInProgress):
		response.Fail(c, http.StatusBadRequest, response.ErrNotInProgress)
	case errors.Is(err, service.ErrSubjectClosed):
		response.Fail(c, http.StatusBadRequest, response.ErrSubjectClosed)
	case errors.Is(err, service.ErrTimeLimitExceeded):
		response.Fail(c, http.StatusBadRequest, response.ErrTimeLimitExceeded)
	case errors.Is(err, service.ErrNoActiveSubject):
		response.Fail(c, http.StatusBadRequest, response.ErrNoActiveSubject)
	case errors.Is(err, service.ErrResultNotReady):
		response.Fail(c, http.StatusBadRequest, response.ErrResultNotReady)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// attemptParams pulls the authenticated user and attempt ID out of the
// request. Both are always required together: attempts are never addressed
// by ID alone.
func attemptParams(c *gin.Context) (uuid.UUID, int, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, 0, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, 0, false
	}
	return attemptID, claims.UserID, true
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	out, err := h.attemptService.StartAttempt(c.Request.Context(), examID, claims.UserID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, out)
}

// GetStatus godoc
// GET /api/v1/student/attempts/:attempt_id
func (h *AttemptHandler) GetStatus(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	out, err := h.attemptService.GetStatus(c.Request.Context(), attemptID, userID)
	if err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// SubmitAnswer godoc
// POST /api/v1/student/attempts/:attempt_id/answers
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	remaining, err := h.attemptService.SubmitAnswer(c.Request.Context(), attemptID, userID, &req)
	if err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"time_remaining_seconds": remaining})
}

// SubmitAllAnswers godoc
// POST /api/v1/student/attempts/:attempt_id/answers/bulk
func (h *AttemptHandler) SubmitAllAnswers(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	var req model.SubmitAllAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SubmitAllAnswers(c.Request.Context(), attemptID, userID, &req); err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// CompleteSubject godoc
// POST /api/v1/student/attempts/:attempt_id/subjects/complete
func (h *AttemptHandler) CompleteSubject(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	var req model.CompleteSubjectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.attemptService.CompleteSubject(c.Request.Context(), attemptID, userID, *req.SubjectIndex)
	if err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"success":                true,
		"all_subjects_completed": out.AllSubjectsCompleted,
		"next_subject_index":     out.NextSubjectIndex,
	})
}

// AdvanceSubject godoc
// POST /api/v1/student/attempts/:attempt_id/advance
func (h *AttemptHandler) AdvanceSubject(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	if _, err := h.attemptService.AdvanceSubject(c.Request.Context(), attemptID, userID); err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// SubmitExam godoc
// POST /api/v1/student/attempts/:attempt_id/submit
func (h *AttemptHandler) SubmitExam(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	if err := h.attemptService.SubmitExam(c.Request.Context(), attemptID, userID); err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"success": true})
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
func (h *AttemptHandler) GetResult(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), attemptID, userID)
	if err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SyncTime godoc
// GET /api/v1/student/attempts/:attempt_id/sync
func (h *AttemptHandler) SyncTime(c *gin.Context) {
	attemptID, userID, ok := attemptParams(c)
	if !ok {
		return
	}

	out, err := h.attemptService.SyncTime(c.Request.Context(), attemptID, userID)
	if err != nil {
		failLifecycleError(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ReviewService handles manual grading of non-objective answers and result
// finalization. It writes only the review fields of question results; the
// lifecycle engine owns everything else.
type ReviewService struct {
	results  ResultStore
	attempts AttemptStore
	log      zerolog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(results ResultStore, attempts AttemptStore, log zerolog.Logger) *ReviewService {
	return &ReviewService{
		results:  results,
		attempts: attempts,
		log:      log.With().Str("component", "review_service").Logger(),
	}
}

// loadFinishedResult fetches a result and rejects it while its attempt is
// still in progress. Reviewing mid-exam would race the completion-time
// grading pass.
func (s *ReviewService) loadFinishedResult(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	result, err := s.results.GetByAttemptID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}

	attempt, err := s.attempts.GetByIDAndUser(ctx, attemptID, result.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if !attempt.Status.Terminal() {
		return nil, ErrResultNotReady
	}

	return result, nil
}

// ReviewAnswer records a reviewer's verdict for one question. Marks are
// capped at the question's maximum.
func (s *ReviewService) ReviewAnswer(ctx context.Context, attemptID uuid.UUID, reviewerID int, req *model.ReviewAnswerRequest) (*model.Result, error) {
	result, err := s.loadFinishedResult(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	qr := result.Find(*req.SubjectIndex, *req.QuestionIndex)
	if qr == nil {
		return nil, ErrQuestionNotFound
	}

	now := time.Now()
	if *req.Correct {
		qr.Grade = model.GradeCorrect
	} else {
		qr.Grade = model.GradeIncorrect
	}
	qr.MarksObtained = req.Marks
	if qr.MarksObtained > qr.MaxMarks {
		qr.MarksObtained = qr.MaxMarks
	}
	qr.ReviewedBy = &reviewerID
	qr.ReviewedAt = &now
	qr.AdminFeedback = req.Feedback

	result.Recalculate()
	if err := s.results.Update(ctx, result); err != nil {
		return nil, fmt.Errorf("persist review: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("reviewer_id", reviewerID).
		Int("subject_index", *req.SubjectIndex).
		Int("question_index", *req.QuestionIndex).
		Msg("Answer reviewed")

	return result, nil
}

// Finalize closes the result. Rejected while any question is still awaiting
// review.
func (s *ReviewService) Finalize(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	result, err := s.loadFinishedResult(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	result.Recalculate()
	if result.PendingReviewCount > 0 {
		return nil, ErrReviewPending
	}

	result.Status = model.ResultStatusFinalized
	if err := s.results.Update(ctx, result); err != nil {
		return nil, fmt.Errorf("persist finalization: %w", err)
	}
	return result, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository handles result data access. One result row per attempt,
// question-level state in a JSONB column.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// GetByAttempt retrieves the result for an attempt, filtered by owner.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Result, error) {
	res := &model.Result{}
	var questionsRaw []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, exam_id, user_id, questions, total_marks, obtained_marks,
		        percentage, pending_review_count, status, submitted_at, created_at, updated_at
		 FROM results
		 WHERE attempt_id = $1 AND user_id = $2`, attemptID, userID,
	).Scan(
		&res.ID, &res.AttemptID, &res.ExamID, &res.UserID, &questionsRaw,
		&res.TotalMarks, &res.ObtainedMarks, &res.Percentage, &res.PendingReviewCount,
		&res.Status, &res.SubmittedAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questionsRaw, &res.Questions); err != nil {
		return nil, fmt.Errorf("decode question results: %w", err)
	}
	return res, nil
}

// GetByAttemptID retrieves the result for an attempt without an owner
// filter. Reviewer path only — student reads go through GetByAttempt.
func (r *ResultRepository) GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res := &model.Result{}
	var questionsRaw []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, exam_id, user_id, questions, total_marks, obtained_marks,
		        percentage, pending_review_count, status, submitted_at, created_at, updated_at
		 FROM results
		 WHERE attempt_id = $1`, attemptID,
	).Scan(
		&res.ID, &res.AttemptID, &res.ExamID, &res.UserID, &questionsRaw,
		&res.TotalMarks, &res.ObtainedMarks, &res.Percentage, &res.PendingReviewCount,
		&res.Status, &res.SubmittedAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questionsRaw, &res.Questions); err != nil {
		return nil, fmt.Errorf("decode question results: %w", err)
	}
	return res, nil
}

// Update persists the full grading snapshot and aggregates.
func (r *ResultRepository) Update(ctx context.Context, res *model.Result) error {
	questionsRaw, err := json.Marshal(res.Questions)
	if err != nil {
		return fmt.Errorf("encode question results: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE results
		 SET questions = $1, total_marks = $2, obtained_marks = $3, percentage = $4,
		     pending_review_count = $5, status = $6, submitted_at = $7, updated_at = NOW()
		 WHERE id = $8`,
		questionsRaw, res.TotalMarks, res.ObtainedMarks, res.Percentage,
		res.PendingReviewCount, res.Status, res.SubmittedAt, res.ID,
	)
	return err
}

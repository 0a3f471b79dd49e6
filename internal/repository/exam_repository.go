package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository handles exam definition data access. Definitions are
// treated as append-only: rows are read by the attempt engine, never
// mutated by it.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam definition with its full subject structure.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	var subjectsRaw []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, title, status, subjects, created_at, updated_at
		 FROM exams
		 WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &subjectsRaw, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(subjectsRaw, &e.Subjects); err != nil {
		return nil, fmt.Errorf("decode exam subjects: %w", err)
	}
	return e, nil
}

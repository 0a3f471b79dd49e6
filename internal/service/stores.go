package service

import (
	"context"
	"time"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
)

// ExamStore provides read access to exam definitions.
// Not-found is reported as pgx.ErrNoRows by the PostgreSQL implementation.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// AttemptStore persists attempts. All mutating calls are conditional on the
// attempt still being in progress, which is the only concurrency control the
// engine relies on (optimistic, no locks).
type AttemptStore interface {
	CreateWithResult(ctx context.Context, a *model.Attempt, res *model.Result) error
	GetByIDAndUser(ctx context.Context, id uuid.UUID, userID int) (*model.Attempt, error)
	FindInProgress(ctx context.Context, examID uuid.UUID, userID int) (*model.Attempt, error)
	UpdateSubjects(ctx context.Context, a *model.Attempt) (bool, error)
	CompleteIfInProgress(ctx context.Context, id uuid.UUID, status model.AttemptStatus, subjects []model.SubjectAttempt, finishedAt time.Time, totalDurationSeconds int) (bool, error)
	ListInProgress(ctx context.Context) ([]model.Attempt, error)
}

// ResultStore persists result snapshots.
type ResultStore interface {
	GetByAttempt(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Result, error)
	GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
	Update(ctx context.Context, res *model.Result) error
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateAttempt is returned when an in-progress attempt already exists
// for the same (exam, user) pair. Enforced by a partial unique index, so two
// racing starts cannot both succeed.
var ErrDuplicateAttempt = errors.New("attempt already in progress")

const attemptColumns = `id, exam_id, user_id, status, started_at, finished_at,
	total_duration_seconds, client_ip, user_agent, subjects, created_at, updated_at`

// AttemptRepository handles attempt data access. The subject snapshot lives
// in a single JSONB column, so every subject transition is one conditional
// row update — atomic per attempt without locks.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var subjectsRaw []byte
	err := row.Scan(
		&a.ID, &a.ExamID, &a.UserID, &a.Status, &a.StartedAt, &a.FinishedAt,
		&a.TotalDurationSeconds, &a.ClientIP, &a.UserAgent, &subjectsRaw,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subjectsRaw, &a.Subjects); err != nil {
		return nil, fmt.Errorf("decode attempt subjects: %w", err)
	}
	return a, nil
}

// GetByIDAndUser retrieves an attempt, always filtering by both attempt ID
// and owner — never by attempt ID alone.
func (r *AttemptRepository) GetByIDAndUser(ctx context.Context, id uuid.UUID, userID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE id = $1 AND user_id = $2`, id, userID,
	))
}

// FindInProgress retrieves the in-progress attempt for an (exam, user) pair.
func (r *AttemptRepository) FindInProgress(ctx context.Context, examID uuid.UUID, userID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1 AND user_id = $2 AND status = $3`,
		examID, userID, model.AttemptStatusInProgress,
	))
}

// CreateWithResult inserts a new attempt and its companion result in one
// transaction. Returns ErrDuplicateAttempt when an in-progress attempt
// already exists for the pair.
func (r *AttemptRepository) CreateWithResult(ctx context.Context, a *model.Attempt, res *model.Result) error {
	subjectsRaw, err := json.Marshal(a.Subjects)
	if err != nil {
		return fmt.Errorf("encode attempt subjects: %w", err)
	}
	questionsRaw, err := json.Marshal(res.Questions)
	if err != nil {
		return fmt.Errorf("encode question results: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, user_id, status, started_at, client_ip, user_agent, subjects)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		a.ID, a.ExamID, a.UserID, a.Status, a.StartedAt, a.ClientIP, a.UserAgent, subjectsRaw,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("insert attempt: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO results (id, attempt_id, exam_id, user_id, questions, total_marks,
		                      obtained_marks, percentage, pending_review_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		res.ID, res.AttemptID, res.ExamID, res.UserID, questionsRaw,
		res.TotalMarks, res.ObtainedMarks, res.Percentage, res.PendingReviewCount, res.Status,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateSubjects persists the attempt's subject snapshot, conditional on the
// attempt still being in progress and owned by the same user. Returns false
// when the condition did not hold (attempt finished or modified concurrently).
func (r *AttemptRepository) UpdateSubjects(ctx context.Context, a *model.Attempt) (bool, error) {
	subjectsRaw, err := json.Marshal(a.Subjects)
	if err != nil {
		return false, fmt.Errorf("encode attempt subjects: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET subjects = $1, updated_at = NOW()
		 WHERE id = $2 AND user_id = $3 AND status = $4`,
		subjectsRaw, a.ID, a.UserID, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteIfInProgress performs the terminal status transition. The WHERE
// clause on the current status makes concurrent finalization idempotent:
// exactly one caller observes true.
func (r *AttemptRepository) CompleteIfInProgress(ctx context.Context, id uuid.UUID, status model.AttemptStatus, subjects []model.SubjectAttempt, finishedAt time.Time, totalDurationSeconds int) (bool, error) {
	subjectsRaw, err := json.Marshal(subjects)
	if err != nil {
		return false, fmt.Errorf("encode attempt subjects: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, subjects = $2, finished_at = $3, total_duration_seconds = $4, updated_at = NOW()
		 WHERE id = $5 AND status = $6`,
		status, subjectsRaw, finishedAt, totalDurationSeconds, id, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListInProgress retrieves every in-progress attempt for the timeout sweep.
func (r *AttemptRepository) ListInProgress(ctx context.Context) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE status = $1
		 ORDER BY started_at ASC`, model.AttemptStatusInProgress,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

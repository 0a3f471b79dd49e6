package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coursekart/exam-engine/internal/config"
	"github.com/coursekart/exam-engine/internal/grader"
	"github.com/coursekart/exam-engine/internal/model"
	"github.com/coursekart/exam-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// AdvanceDebounce suppresses duplicate advance calls that arrive within
	// this window of a subject's start (overlapping client/timer triggers).
	AdvanceDebounce = 3 * time.Second

	// LateSubmitGrace keeps a just-completed subject open to in-flight bulk
	// submissions, covering the race with a timeout sweep.
	LateSubmitGrace = 10 * time.Second

	// examCacheTTL bounds how stale a cached exam definition can get. Short
	// enough that publish-state changes are picked up promptly.
	examCacheTTL = 5 * time.Minute

	// clockCacheSlack pads the clock cache entry's TTL past the subject
	// deadline. The entry must outlive the deadline (SyncTime reports zero
	// remaining from it until the sweep advances) but not survive a failed
	// delete forever.
	clockCacheSlack = 2 * time.Minute
)

// AttemptService is the attempt lifecycle engine: the single source of truth
// for starting attempts, recording answers, advancing subjects, and
// finalizing exams. The user-facing handlers and the timeout sweeper both
// funnel through it.
type AttemptService struct {
	attempts AttemptStore
	results  ResultStore
	exams    ExamStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, results ResultStore, exams ExamStore, rdb *redis.Client, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		results:  results,
		exams:    exams,
		rdb:      rdb,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartAttemptOutput is returned when an attempt is created.
type StartAttemptOutput struct {
	AttemptID            uuid.UUID         `json:"attempt_id"`
	Exam                 model.ExamSummary `json:"exam"`
	CurrentSubjectIndex  int               `json:"current_subject_index"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds"`
}

// StartAttempt creates a fresh attempt plus its companion result snapshot.
// The exam's subject/question structure is copied into both records, so the
// live definition is never re-read during the attempt.
func (s *AttemptService) StartAttempt(ctx context.Context, examID uuid.UUID, userID int, clientIP, userAgent string) (*StartAttemptOutput, error) {
	exam, err := s.getExam(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	if _, err := s.attempts.FindInProgress(ctx, examID, userID); err == nil {
		return nil, ErrAlreadyInProgress
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	now := time.Now()
	attempt := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    examID,
		UserID:    userID,
		Status:    model.AttemptStatusInProgress,
		StartedAt: now,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Subjects:  model.NewSubjectAttempts(exam, now),
	}

	result := &model.Result{
		ID:        uuid.New(),
		AttemptID: attempt.ID,
		ExamID:    examID,
		UserID:    userID,
		Questions: model.NewQuestionResults(exam),
		Status:    model.ResultStatusPendingReview,
	}
	result.Recalculate()

	if err := s.attempts.CreateWithResult(ctx, attempt, result); err != nil {
		if errors.Is(err, repository.ErrDuplicateAttempt) {
			// Concurrent start lost the race against the unique index.
			return nil, ErrAlreadyInProgress
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheClock(ctx, attempt)

	remaining := 0
	if len(attempt.Subjects) > 0 {
		remaining = attempt.Subjects[0].RemainingSeconds(now)
	}

	return &StartAttemptOutput{
		AttemptID:            attempt.ID,
		Exam:                 exam.Summary(),
		CurrentSubjectIndex:  0,
		TimeRemainingSeconds: remaining,
	}, nil
}

// StatusOutput is the read-only attempt status payload.
type StatusOutput struct {
	Status               model.AttemptStatus `json:"status"`
	CurrentSubjectIndex  int                 `json:"current_subject_index"`
	TimeRemainingSeconds int                 `json:"time_remaining_seconds"`
	TotalSubjects        int                 `json:"total_subjects"`
	CompletedSubjects    int                 `json:"completed_subjects"`
}

// GetStatus reports the attempt's position and clock. Time remaining is
// computed on read, never stored as a ticking value.
func (s *AttemptService) GetStatus(ctx context.Context, attemptID uuid.UUID, userID int) (*StatusOutput, error) {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	remaining := 0
	if cur := attempt.CurrentSubject(); cur != nil {
		remaining = cur.RemainingSeconds(now)
	}

	return &StatusOutput{
		Status:               attempt.Status,
		CurrentSubjectIndex:  attempt.CurrentSubjectIndex(),
		TimeRemainingSeconds: remaining,
		TotalSubjects:        len(attempt.Subjects),
		CompletedSubjects:    attempt.CompletedSubjects(),
	}, nil
}

// SubmitAnswer upserts a single answer and synchronously grades it against
// the snapshot answer key. Fails with ErrTimeLimitExceeded once the
// subject's budget has elapsed, independent of sweeper timing.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID uuid.UUID, userID int, req *model.SubmitAnswerRequest) (int, error) {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return 0, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return 0, ErrNotInProgress
	}

	subjectIndex := *req.SubjectIndex
	if subjectIndex >= len(attempt.Subjects) {
		return 0, ErrSubjectClosed
	}
	sa := &attempt.Subjects[subjectIndex]
	if sa.IsCompleted {
		return 0, ErrSubjectClosed
	}

	now := time.Now()
	if sa.TimeLimitMinutes > 0 && sa.Expired(now) {
		return 0, ErrTimeLimitExceeded
	}

	sa.UpsertAnswer(model.Answer{
		SubjectIndex:     subjectIndex,
		QuestionIndex:    *req.QuestionIndex,
		Value:            req.Answer,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})

	ok, err := s.attempts.UpdateSubjects(ctx, attempt)
	if err != nil {
		return 0, fmt.Errorf("persist answer: %w", err)
	}
	if !ok {
		return 0, ErrNotInProgress
	}

	if err := s.gradeAnswers(ctx, attempt, subjectIndex, []int{*req.QuestionIndex}); err != nil {
		return 0, err
	}

	return sa.RemainingSeconds(now), nil
}

// SubmitAllAnswers records a whole subject's answers in one call. A subject
// completed within the last LateSubmitGrace still accepts the submission,
// covering a client whose bulk submit raced the timeout sweep.
func (s *AttemptService) SubmitAllAnswers(ctx context.Context, attemptID uuid.UUID, userID int, req *model.SubmitAllAnswersRequest) error {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return ErrNotInProgress
	}

	subjectIndex := *req.SubjectIndex
	if subjectIndex >= len(attempt.Subjects) {
		return ErrSubjectClosed
	}
	sa := &attempt.Subjects[subjectIndex]

	now := time.Now()
	if sa.IsCompleted {
		if sa.EndedAt == nil || now.Sub(*sa.EndedAt) > LateSubmitGrace {
			return ErrSubjectClosed
		}
	} else if sa.TimeLimitMinutes > 0 && sa.StartedAt != nil {
		// The budget applies even before the sweep closes the subject, with
		// the same grace the post-sweep branch gives an in-flight client.
		deadline := sa.StartedAt.Add(time.Duration(sa.TimeLimitMinutes) * time.Minute)
		if now.Sub(deadline) > LateSubmitGrace {
			return ErrTimeLimitExceeded
		}
	}

	questionIndexes := make([]int, 0, len(req.Answers))
	for _, item := range req.Answers {
		sa.UpsertAnswer(model.Answer{
			SubjectIndex:     subjectIndex,
			QuestionIndex:    *item.QuestionIndex,
			Value:            item.Answer,
			TimeSpentSeconds: item.TimeSpentSeconds,
		})
		questionIndexes = append(questionIndexes, *item.QuestionIndex)
	}

	ok, err := s.attempts.UpdateSubjects(ctx, attempt)
	if err != nil {
		return fmt.Errorf("persist answers: %w", err)
	}
	if !ok {
		return ErrNotInProgress
	}

	return s.gradeAnswers(ctx, attempt, subjectIndex, questionIndexes)
}

// CompleteSubjectOutput reports the position after closing a subject.
type CompleteSubjectOutput struct {
	AllSubjectsCompleted bool `json:"all_subjects_completed"`
	NextSubjectIndex     *int `json:"next_subject_index"`
}

// CompleteSubject marks the named subject completed. It does NOT start the
// next subject's timer — that is AdvanceSubject's job. Completing the last
// subject finalizes the whole exam.
func (s *AttemptService) CompleteSubject(ctx context.Context, attemptID uuid.UUID, userID int, subjectIndex int) (*CompleteSubjectOutput, error) {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrNotInProgress
	}
	if subjectIndex >= len(attempt.Subjects) {
		return nil, ErrSubjectClosed
	}

	now := time.Now()
	sa := &attempt.Subjects[subjectIndex]
	if !sa.IsCompleted {
		sa.IsCompleted = true
		sa.EndedAt = &now

		if cur := attempt.CurrentSubject(); cur == nil {
			// Last subject closed — finalize the exam.
			if err := s.completeExam(ctx, attempt, model.AttemptStatusCompleted); err != nil {
				return nil, err
			}
			return &CompleteSubjectOutput{AllSubjectsCompleted: true}, nil
		}

		ok, err := s.attempts.UpdateSubjects(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("persist subject completion: %w", err)
		}
		if !ok {
			return nil, ErrNotInProgress
		}

		// The completed subject's deadline is no longer the attempt clock;
		// the next subject has no timer until AdvanceSubject starts it.
		s.cacheClock(ctx, attempt)
	}

	out := &CompleteSubjectOutput{}
	if cur := attempt.CurrentSubject(); cur != nil {
		idx := cur.SubjectIndex
		out.NextSubjectIndex = &idx
	} else {
		out.AllSubjectsCompleted = true
	}
	return out, nil
}

// AdvanceSubject is the single transition shared by the user-facing
// "next subject" action and the timeout sweeper: it closes the current
// subject and starts the next one's timer in one conditional update.
// Returns true when no subject remains; the caller decides whether to
// finalize the exam.
func (s *AttemptService) AdvanceSubject(ctx context.Context, attemptID uuid.UUID, userID int) (bool, error) {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return false, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return false, ErrNotInProgress
	}

	cur := attempt.CurrentSubject()
	if cur == nil {
		return false, ErrNoActiveSubject
	}

	now := time.Now()

	// Debounce: a duplicate advance right after a subject started is
	// answered with success and no state change. Subject 0 is exempt so a
	// student can skip the first subject immediately.
	if cur.SubjectIndex != 0 && cur.StartedAt != nil && now.Sub(*cur.StartedAt) < AdvanceDebounce {
		return false, nil
	}

	cur.IsCompleted = true
	cur.EndedAt = &now

	next := attempt.CurrentSubject()
	if next != nil {
		start := now
		next.StartedAt = &start
	}

	ok, err := s.attempts.UpdateSubjects(ctx, attempt)
	if err != nil {
		return false, fmt.Errorf("persist advance: %w", err)
	}
	if !ok {
		return false, ErrNotInProgress
	}

	s.cacheClock(ctx, attempt)

	return next == nil, nil
}

// SubmitExam is the user-initiated early termination: finalize now,
// regardless of how many subjects are still open.
func (s *AttemptService) SubmitExam(ctx context.Context, attemptID uuid.UUID, userID int) error {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return ErrNotInProgress
	}
	return s.completeExam(ctx, attempt, model.AttemptStatusCompleted)
}

// ExpireAttempt is the sweeper's finalization path for an attempt whose last
// subject just timed out.
func (s *AttemptService) ExpireAttempt(ctx context.Context, attemptID uuid.UUID, userID int) error {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil // Already finalized by a racing caller.
	}
	return s.completeExam(ctx, attempt, model.AttemptStatusTimeout)
}

// completeExam finalizes the attempt with a conditional status transition
// and, exactly once, runs the bulk auto-grading pass. Safe under concurrent
// invocation: the losing caller observes the condition failing and returns
// without error.
func (s *AttemptService) completeExam(ctx context.Context, attempt *model.Attempt, status model.AttemptStatus) error {
	now := time.Now()

	// Close any still-open subject in the snapshot being persisted.
	for i := range attempt.Subjects {
		if !attempt.Subjects[i].IsCompleted {
			attempt.Subjects[i].IsCompleted = true
			end := now
			attempt.Subjects[i].EndedAt = &end
		}
	}

	totalDuration := int(now.Sub(attempt.StartedAt).Seconds())

	ok, err := s.attempts.CompleteIfInProgress(ctx, attempt.ID, status, attempt.Subjects, now, totalDuration)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		// A concurrent caller finalized first — idempotent no-op.
		return nil
	}

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, config.CacheKey.AttemptClockKey(attempt.ID.String())).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to drop clock cache")
		}
	}

	result, err := s.results.GetByAttempt(ctx, attempt.ID, attempt.UserID)
	if err != nil {
		return fmt.Errorf("load result: %w", err)
	}
	if result.SubmittedAt != nil {
		return nil // Grading pass already ran.
	}

	for i := range result.Questions {
		qr := &result.Questions[i]
		if !qr.QuestionType.Objective() {
			continue
		}
		if qr.UserAnswer == nil {
			// Unanswered objective questions score zero rather than
			// blocking finalization as pending.
			qr.Grade = model.GradeIncorrect
			qr.MarksObtained = 0
			continue
		}
		qr.Grade, qr.MarksObtained = grader.Score(qr.QuestionType, qr.CorrectOptions, qr.UserAnswer, qr.MaxMarks)
	}

	result.SubmittedAt = &now
	result.Recalculate()
	if result.PendingReviewCount == 0 {
		result.Status = model.ResultStatusFinalized
	} else {
		result.Status = model.ResultStatusPendingReview
	}

	if err := s.results.Update(ctx, result); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("status", string(status)).
		Float64("obtained", result.ObtainedMarks).
		Int("pending_review", result.PendingReviewCount).
		Msg("Attempt finalized")

	return nil
}

// SyncTimeOutput is the client clock-reconciliation payload.
type SyncTimeOutput struct {
	TimeRemainingSeconds int                 `json:"time_remaining_seconds"`
	Status               model.AttemptStatus `json:"status"`
	CurrentSubjectIndex  *int                `json:"current_subject_index"`
}

// attemptClock is the Redis-cached deadline of the current subject. UserID
// rides along so a cache hit still enforces attempt ownership.
type attemptClock struct {
	Deadline     int64 `json:"deadline"`
	SubjectIndex int   `json:"subject_index"`
	UserID       int   `json:"user_id"`
}

// SyncTime is a pure read for periodic client clock reconciliation. It is
// served from the Redis clock cache when possible, falling back to the
// database and self-healing the cache on a miss.
func (s *AttemptService) SyncTime(ctx context.Context, attemptID uuid.UUID, userID int) (*SyncTimeOutput, error) {
	now := time.Now()

	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, config.CacheKey.AttemptClockKey(attemptID.String())).Result()
		if err == nil {
			var clock attemptClock
			if jsonErr := json.Unmarshal([]byte(val), &clock); jsonErr == nil && clock.UserID == userID {
				remaining := int(clock.Deadline - now.Unix())
				if remaining < 0 {
					remaining = 0
				}
				idx := clock.SubjectIndex
				return &SyncTimeOutput{
					TimeRemainingSeconds: remaining,
					Status:               model.AttemptStatusInProgress,
					CurrentSubjectIndex:  &idx,
				}, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read clock cache: %w", err)
		}
	}

	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	cur := attempt.CurrentSubject()
	if cur == nil || attempt.Status != model.AttemptStatusInProgress {
		status := attempt.Status
		if !status.Terminal() {
			status = model.AttemptStatusCompleted
		}
		return &SyncTimeOutput{TimeRemainingSeconds: 0, Status: status}, nil
	}

	s.cacheClock(ctx, attempt)

	idx := cur.SubjectIndex
	return &SyncTimeOutput{
		TimeRemainingSeconds: cur.RemainingSeconds(now),
		Status:               attempt.Status,
		CurrentSubjectIndex:  &idx,
	}, nil
}

// GetResult returns the materialized result once the attempt has finished.
// Blocked while in progress: the snapshot carries the answer key.
func (s *AttemptService) GetResult(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Result, error) {
	attempt, err := s.loadAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if !attempt.Status.Terminal() {
		return nil, ErrResultNotReady
	}

	result, err := s.results.GetByAttempt(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}
	return result, nil
}

// ListInProgress exposes in-progress attempts to the timeout sweeper.
func (s *AttemptService) ListInProgress(ctx context.Context) ([]model.Attempt, error) {
	return s.attempts.ListInProgress(ctx)
}

// ─── Internal helpers ──────────────────────────────────────────────

// getExam is a read-through Redis cache over the exam store. Definitions
// barely change, and every start of a popular exam would otherwise re-read
// the same large JSONB row.
func (s *AttemptService) getExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamKey(examID.String())

	if s.rdb != nil {
		val, err := s.rdb.Get(ctx, key).Result()
		if err == nil {
			var exam model.Exam
			if jsonErr := json.Unmarshal([]byte(val), &exam); jsonErr == nil {
				return &exam, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache read failed")
		}
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, jsonErr := json.Marshal(exam); jsonErr == nil {
			if err := s.rdb.Set(ctx, key, raw, examCacheTTL).Err(); err != nil {
				s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache write failed")
			}
		}
	}

	return exam, nil
}

func (s *AttemptService) loadAttempt(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByIDAndUser(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// gradeAnswers writes the submitted values into the result snapshot and
// grades the objective ones. This is the only per-answer grading call site;
// the bulk pass at completion uses the same grader.
func (s *AttemptService) gradeAnswers(ctx context.Context, attempt *model.Attempt, subjectIndex int, questionIndexes []int) error {
	result, err := s.results.GetByAttempt(ctx, attempt.ID, attempt.UserID)
	if err != nil {
		return fmt.Errorf("load result: %w", err)
	}

	sa := &attempt.Subjects[subjectIndex]
	for _, qi := range questionIndexes {
		ans := sa.FindAnswer(qi)
		qr := result.Find(subjectIndex, qi)
		if ans == nil || qr == nil {
			continue
		}
		qr.UserAnswer = ans.Value
		if qr.QuestionType.Objective() {
			qr.Grade, qr.MarksObtained = grader.Score(qr.QuestionType, qr.CorrectOptions, ans.Value, qr.MaxMarks)
		}
	}

	result.Recalculate()
	if err := s.results.Update(ctx, result); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	return nil
}

// cacheClock stores the current subject's deadline in Redis so SyncTime and
// the WebSocket clock stream can answer without touching PostgreSQL.
// Cache failures are logged, never fatal — the DB remains the source of truth.
func (s *AttemptService) cacheClock(ctx context.Context, attempt *model.Attempt) {
	if s.rdb == nil {
		return
	}
	key := config.CacheKey.AttemptClockKey(attempt.ID.String())

	cur := attempt.CurrentSubject()
	if cur == nil || cur.StartedAt == nil || cur.TimeLimitMinutes <= 0 {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to drop clock cache")
		}
		return
	}

	deadline := cur.StartedAt.Add(time.Duration(cur.TimeLimitMinutes) * time.Minute)
	clock := attemptClock{
		Deadline:     deadline.Unix(),
		SubjectIndex: cur.SubjectIndex,
		UserID:       attempt.UserID,
	}

	ttl := time.Until(deadline) + clockCacheSlack
	if ttl < clockCacheSlack {
		ttl = clockCacheSlack
	}

	raw, _ := json.Marshal(clock)
	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache subject clock")
	}
}

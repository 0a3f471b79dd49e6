package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coursekart/exam-engine/internal/config"
	"github.com/coursekart/exam-engine/internal/model"
	"github.com/coursekart/exam-engine/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ─── In-memory stores ───────────────────────────────────────────────
//
// The fakes mirror the repository contract: not-found is pgx.ErrNoRows,
// conditional updates report false instead of failing, and reads hand out
// deep copies so a service-side mutation never leaks into "storage" without
// an explicit update call.

func deepCopyAttempt(a *model.Attempt) *model.Attempt {
	raw, _ := json.Marshal(a)
	var out model.Attempt
	_ = json.Unmarshal(raw, &out)
	return &out
}

func deepCopyResult(r *model.Result) *model.Result {
	raw, _ := json.Marshal(r)
	var out model.Result
	_ = json.Unmarshal(raw, &out)
	return &out
}

type fakeAttemptStore struct {
	attempts map[uuid.UUID]*model.Attempt
	results  *fakeResultStore
}

func newFakeAttemptStore(results *fakeResultStore) *fakeAttemptStore {
	return &fakeAttemptStore{attempts: map[uuid.UUID]*model.Attempt{}, results: results}
}

func (s *fakeAttemptStore) CreateWithResult(_ context.Context, a *model.Attempt, res *model.Result) error {
	for _, existing := range s.attempts {
		if existing.ExamID == a.ExamID && existing.UserID == a.UserID && existing.Status == model.AttemptStatusInProgress {
			return repository.ErrDuplicateAttempt
		}
	}
	s.attempts[a.ID] = deepCopyAttempt(a)
	s.results.results[res.AttemptID] = deepCopyResult(res)
	return nil
}

func (s *fakeAttemptStore) GetByIDAndUser(_ context.Context, id uuid.UUID, userID int) (*model.Attempt, error) {
	a, ok := s.attempts[id]
	if !ok || a.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	return deepCopyAttempt(a), nil
}

func (s *fakeAttemptStore) FindInProgress(_ context.Context, examID uuid.UUID, userID int) (*model.Attempt, error) {
	for _, a := range s.attempts {
		if a.ExamID == examID && a.UserID == userID && a.Status == model.AttemptStatusInProgress {
			return deepCopyAttempt(a), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeAttemptStore) UpdateSubjects(_ context.Context, a *model.Attempt) (bool, error) {
	stored, ok := s.attempts[a.ID]
	if !ok || stored.UserID != a.UserID || stored.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	stored.Subjects = deepCopyAttempt(a).Subjects
	return true, nil
}

func (s *fakeAttemptStore) CompleteIfInProgress(_ context.Context, id uuid.UUID, status model.AttemptStatus, subjects []model.SubjectAttempt, finishedAt time.Time, totalDurationSeconds int) (bool, error) {
	stored, ok := s.attempts[id]
	if !ok || stored.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	stored.Status = status
	stored.Subjects = deepCopyAttempt(&model.Attempt{Subjects: subjects}).Subjects
	stored.FinishedAt = &finishedAt
	stored.TotalDurationSeconds = totalDurationSeconds
	return true, nil
}

func (s *fakeAttemptStore) ListInProgress(_ context.Context) ([]model.Attempt, error) {
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.Status == model.AttemptStatusInProgress {
			out = append(out, *deepCopyAttempt(a))
		}
	}
	return out, nil
}

type fakeResultStore struct {
	results map[uuid.UUID]*model.Result
	updates int
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: map[uuid.UUID]*model.Result{}}
}

func (s *fakeResultStore) GetByAttempt(_ context.Context, attemptID uuid.UUID, userID int) (*model.Result, error) {
	r, ok := s.results[attemptID]
	if !ok || r.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	return deepCopyResult(r), nil
}

func (s *fakeResultStore) GetByAttemptID(_ context.Context, attemptID uuid.UUID) (*model.Result, error) {
	r, ok := s.results[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return deepCopyResult(r), nil
}

func (s *fakeResultStore) Update(_ context.Context, res *model.Result) error {
	for id, r := range s.results {
		if r.ID == res.ID {
			s.results[id] = deepCopyResult(res)
			s.updates++
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeExamStore struct {
	exams map[uuid.UUID]*model.Exam
}

func (s *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := s.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

// ─── Fixtures ───────────────────────────────────────────────────────

const testUserID = 7

func testExam() *model.Exam {
	return &model.Exam{
		ID:     uuid.New(),
		Title:  "Final Exam",
		Status: model.ExamStatusPublished,
		Subjects: []model.Subject{
			{
				Title:            "Math",
				TimeLimitMinutes: 30,
				Questions: []model.Question{
					{Type: model.QuestionTypeSingleChoice, Text: "2+2?", Options: []string{"3", "4"}, CorrectIndices: []int{1}, Marks: 5},
					{Type: model.QuestionTypeShortAnswer, Text: "Show your work.", Marks: 10},
				},
			},
			{
				Title:            "English",
				TimeLimitMinutes: 20,
				Questions: []model.Question{
					{Type: model.QuestionTypeMultiChoice, Text: "Pick nouns.", Options: []string{"run", "cat", "dog"}, CorrectIndices: []int{1, 2}, Marks: 5},
				},
			},
		},
	}
}

type engineFixture struct {
	svc      *AttemptService
	attempts *fakeAttemptStore
	results  *fakeResultStore
	exam     *model.Exam
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	exam := testExam()
	results := newFakeResultStore()
	attempts := newFakeAttemptStore(results)
	exams := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	svc := NewAttemptService(attempts, results, exams, nil, zerolog.Nop())
	return &engineFixture{svc: svc, attempts: attempts, results: results, exam: exam}
}

func (f *engineFixture) start(t *testing.T) uuid.UUID {
	t.Helper()
	out, err := f.svc.StartAttempt(context.Background(), f.exam.ID, testUserID, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	return out.AttemptID
}

func intPtr(v int) *int { return &v }

// ─── Tests ──────────────────────────────────────────────────────────

func TestStartAttempt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	out, err := f.svc.StartAttempt(ctx, f.exam.ID, testUserID, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if out.CurrentSubjectIndex != 0 {
		t.Errorf("CurrentSubjectIndex = %d, want 0", out.CurrentSubjectIndex)
	}
	if out.TimeRemainingSeconds != 30*60 {
		t.Errorf("TimeRemainingSeconds = %d, want %d", out.TimeRemainingSeconds, 30*60)
	}

	stored := f.attempts.attempts[out.AttemptID]
	if stored == nil {
		t.Fatal("attempt not persisted")
	}
	if len(stored.Subjects) != 2 {
		t.Fatalf("len(Subjects) = %d, want 2", len(stored.Subjects))
	}
	if stored.Subjects[0].StartedAt == nil {
		t.Error("first subject should have started")
	}
	if stored.Subjects[1].StartedAt != nil {
		t.Error("second subject should not have started")
	}

	res := f.results.results[out.AttemptID]
	if res == nil {
		t.Fatal("result not persisted")
	}
	if len(res.Questions) != 3 {
		t.Errorf("len(result.Questions) = %d, want 3", len(res.Questions))
	}
	if res.TotalMarks != 20 {
		t.Errorf("TotalMarks = %v, want 20", res.TotalMarks)
	}
}

func TestStartAttemptRejections(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	t.Run("unknown exam", func(t *testing.T) {
		_, err := f.svc.StartAttempt(ctx, uuid.New(), testUserID, "", "")
		if !errors.Is(err, ErrExamNotFound) {
			t.Errorf("err = %v, want ErrExamNotFound", err)
		}
	})

	t.Run("unpublished exam", func(t *testing.T) {
		draft := testExam()
		draft.Status = model.ExamStatusDraft
		exams := f.svc.exams.(*fakeExamStore)
		exams.exams[draft.ID] = draft

		_, err := f.svc.StartAttempt(ctx, draft.ID, testUserID, "", "")
		if !errors.Is(err, ErrExamNotPublished) {
			t.Errorf("err = %v, want ErrExamNotPublished", err)
		}
	})

	t.Run("second concurrent attempt", func(t *testing.T) {
		f.start(t)
		_, err := f.svc.StartAttempt(ctx, f.exam.ID, testUserID, "", "")
		if !errors.Is(err, ErrAlreadyInProgress) {
			t.Errorf("err = %v, want ErrAlreadyInProgress", err)
		}
	})
}

func TestSubmitAnswerGradesImmediately(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	remaining, err := f.svc.SubmitAnswer(ctx, attemptID, testUserID, &model.SubmitAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(0),
		Answer:        json.RawMessage(`"4"`),
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if remaining <= 0 || remaining > 30*60 {
		t.Errorf("remaining = %d, want within (0, 1800]", remaining)
	}

	res := f.results.results[attemptID]
	qr := res.Find(0, 0)
	if qr.Grade != model.GradeCorrect || qr.MarksObtained != 5 {
		t.Errorf("grade = (%s, %v), want (correct, 5)", qr.Grade, qr.MarksObtained)
	}

	// Resubmitting a wrong answer downgrades — last write wins.
	if _, err := f.svc.SubmitAnswer(ctx, attemptID, testUserID, &model.SubmitAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(0),
		Answer:        json.RawMessage(`"3"`),
	}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	qr = f.results.results[attemptID].Find(0, 0)
	if qr.Grade != model.GradeIncorrect || qr.MarksObtained != 0 {
		t.Errorf("grade after resubmit = (%s, %v), want (incorrect, 0)", qr.Grade, qr.MarksObtained)
	}
}

func TestSubmitAnswerShortAnswerStaysPending(t *testing.T) {
	f := newEngineFixture(t)
	attemptID := f.start(t)

	_, err := f.svc.SubmitAnswer(context.Background(), attemptID, testUserID, &model.SubmitAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(1),
		Answer:        json.RawMessage(`"long prose answer"`),
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	qr := f.results.results[attemptID].Find(0, 1)
	if qr.Grade != model.GradePending {
		t.Errorf("grade = %s, want pending", qr.Grade)
	}
	if string(qr.UserAnswer) != `"long prose answer"` {
		t.Errorf("UserAnswer = %s, not recorded", qr.UserAnswer)
	}
}

func TestSubmitAnswerTimeLimitExceeded(t *testing.T) {
	f := newEngineFixture(t)
	attemptID := f.start(t)

	// Rewind the stored clock past the subject budget.
	past := time.Now().Add(-31 * time.Minute)
	f.attempts.attempts[attemptID].Subjects[0].StartedAt = &past

	_, err := f.svc.SubmitAnswer(context.Background(), attemptID, testUserID, &model.SubmitAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(0),
		Answer:        json.RawMessage(`"4"`),
	})
	if !errors.Is(err, ErrTimeLimitExceeded) {
		t.Errorf("err = %v, want ErrTimeLimitExceeded", err)
	}
}

func TestSubmitAnswerClosedSubject(t *testing.T) {
	f := newEngineFixture(t)
	attemptID := f.start(t)

	f.attempts.attempts[attemptID].Subjects[0].IsCompleted = true

	_, err := f.svc.SubmitAnswer(context.Background(), attemptID, testUserID, &model.SubmitAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(0),
		Answer:        json.RawMessage(`"4"`),
	})
	if !errors.Is(err, ErrSubjectClosed) {
		t.Errorf("err = %v, want ErrSubjectClosed", err)
	}
}

func TestSubmitAllAnswersGraceWindow(t *testing.T) {
	ctx := context.Background()

	req := &model.SubmitAllAnswersRequest{
		SubjectIndex: intPtr(0),
		Answers: []model.BulkAnswerItem{
			{QuestionIndex: intPtr(0), Answer: json.RawMessage(`"4"`)},
		},
	}

	t.Run("just closed subject still accepts", func(t *testing.T) {
		f := newEngineFixture(t)
		attemptID := f.start(t)
		ended := time.Now().Add(-5 * time.Second)
		stored := f.attempts.attempts[attemptID]
		stored.Subjects[0].IsCompleted = true
		stored.Subjects[0].EndedAt = &ended

		if err := f.svc.SubmitAllAnswers(ctx, attemptID, testUserID, req); err != nil {
			t.Fatalf("SubmitAllAnswers: %v", err)
		}
		qr := f.results.results[attemptID].Find(0, 0)
		if qr.Grade != model.GradeCorrect {
			t.Errorf("grade = %s, want correct", qr.Grade)
		}
	})

	t.Run("long-closed subject rejects", func(t *testing.T) {
		f := newEngineFixture(t)
		attemptID := f.start(t)
		ended := time.Now().Add(-30 * time.Second)
		stored := f.attempts.attempts[attemptID]
		stored.Subjects[0].IsCompleted = true
		stored.Subjects[0].EndedAt = &ended

		err := f.svc.SubmitAllAnswers(ctx, attemptID, testUserID, req)
		if !errors.Is(err, ErrSubjectClosed) {
			t.Errorf("err = %v, want ErrSubjectClosed", err)
		}
	})

	// The budget binds before the sweep closes the subject too: an open
	// subject past its deadline gets the same grace, then rejection.
	t.Run("expired open subject within grace accepts", func(t *testing.T) {
		f := newEngineFixture(t)
		attemptID := f.start(t)
		started := time.Now().Add(-30*time.Minute - 5*time.Second)
		f.attempts.attempts[attemptID].Subjects[0].StartedAt = &started

		if err := f.svc.SubmitAllAnswers(ctx, attemptID, testUserID, req); err != nil {
			t.Fatalf("SubmitAllAnswers: %v", err)
		}
	})

	t.Run("expired open subject beyond grace rejects", func(t *testing.T) {
		f := newEngineFixture(t)
		attemptID := f.start(t)
		started := time.Now().Add(-31 * time.Minute)
		f.attempts.attempts[attemptID].Subjects[0].StartedAt = &started

		err := f.svc.SubmitAllAnswers(ctx, attemptID, testUserID, req)
		if !errors.Is(err, ErrTimeLimitExceeded) {
			t.Errorf("err = %v, want ErrTimeLimitExceeded", err)
		}
	})
}

func TestAdvanceSubject(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	allDone, err := f.svc.AdvanceSubject(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("AdvanceSubject: %v", err)
	}
	if allDone {
		t.Error("allDone = true after first advance")
	}

	stored := f.attempts.attempts[attemptID]
	if !stored.Subjects[0].IsCompleted || stored.Subjects[0].EndedAt == nil {
		t.Error("first subject should be closed")
	}
	if stored.Subjects[1].StartedAt == nil {
		t.Error("second subject timer should have started")
	}
}

func TestAdvanceSubjectDebounce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	// Move to subject 1; it starts now, so an immediate second advance is
	// treated as a duplicate trigger.
	if _, err := f.svc.AdvanceSubject(ctx, attemptID, testUserID); err != nil {
		t.Fatalf("first advance: %v", err)
	}

	allDone, err := f.svc.AdvanceSubject(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("debounced advance: %v", err)
	}
	if allDone {
		t.Error("debounced advance reported completion")
	}
	if f.attempts.attempts[attemptID].Subjects[1].IsCompleted {
		t.Error("debounced advance must not close the subject")
	}

	// Once outside the debounce window, the advance goes through and the
	// last subject closing reports completion.
	earlier := time.Now().Add(-10 * time.Second)
	f.attempts.attempts[attemptID].Subjects[1].StartedAt = &earlier

	allDone, err = f.svc.AdvanceSubject(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("advance after window: %v", err)
	}
	if !allDone {
		t.Error("closing the last subject should report completion")
	}
	// Advancing past the last subject does not finalize by itself.
	if f.attempts.attempts[attemptID].Status != model.AttemptStatusInProgress {
		t.Error("advance must not finalize the attempt")
	}
}

func TestCompleteSubjectFinalizesOnLast(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	// Answer the objective question in subject 0, skip the short answer.
	if _, err := f.svc.SubmitAnswer(ctx, attemptID, testUserID, &model.SubmitAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(0),
		Answer:        json.RawMessage(`"4"`),
	}); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	out, err := f.svc.CompleteSubject(ctx, attemptID, testUserID, 0)
	if err != nil {
		t.Fatalf("CompleteSubject(0): %v", err)
	}
	if out.AllSubjectsCompleted || out.NextSubjectIndex == nil || *out.NextSubjectIndex != 1 {
		t.Errorf("unexpected output after first subject: %+v", out)
	}

	out, err = f.svc.CompleteSubject(ctx, attemptID, testUserID, 1)
	if err != nil {
		t.Fatalf("CompleteSubject(1): %v", err)
	}
	if !out.AllSubjectsCompleted {
		t.Error("last subject should complete the exam")
	}

	stored := f.attempts.attempts[attemptID]
	if stored.Status != model.AttemptStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}

	res := f.results.results[attemptID]
	if res.SubmittedAt == nil {
		t.Fatal("result not submitted")
	}
	// Unanswered multi-choice in subject 1 scores incorrect, not pending.
	if qr := res.Find(1, 0); qr.Grade != model.GradeIncorrect {
		t.Errorf("unanswered objective grade = %s, want incorrect", qr.Grade)
	}
	// The skipped short answer keeps the result awaiting review.
	if res.PendingReviewCount != 1 {
		t.Errorf("PendingReviewCount = %d, want 1", res.PendingReviewCount)
	}
	if res.Status != model.ResultStatusPendingReview {
		t.Errorf("result status = %s, want pending review", res.Status)
	}
	if res.ObtainedMarks != 5 {
		t.Errorf("ObtainedMarks = %v, want 5", res.ObtainedMarks)
	}
}

func TestCompleteSubjectIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	if _, err := f.svc.CompleteSubject(ctx, attemptID, testUserID, 0); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	out, err := f.svc.CompleteSubject(ctx, attemptID, testUserID, 0)
	if err != nil {
		t.Fatalf("repeat completion: %v", err)
	}
	if out.NextSubjectIndex == nil || *out.NextSubjectIndex != 1 {
		t.Errorf("repeat completion output = %+v", out)
	}
}

func TestSubmitExamFinalizesOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	if err := f.svc.SubmitExam(ctx, attemptID, testUserID); err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}

	stored := f.attempts.attempts[attemptID]
	if stored.Status != model.AttemptStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	for i := range stored.Subjects {
		if !stored.Subjects[i].IsCompleted {
			t.Errorf("subject %d left open after submit", i)
		}
	}

	firstSubmittedAt := f.results.results[attemptID].SubmittedAt
	if firstSubmittedAt == nil {
		t.Fatal("grading pass did not run")
	}

	// A second submit is rejected as no longer in progress.
	if err := f.svc.SubmitExam(ctx, attemptID, testUserID); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("second submit err = %v, want ErrNotInProgress", err)
	}

	// A racing sweeper expiry is a silent no-op and must not regrade.
	updatesBefore := f.results.updates
	if err := f.svc.ExpireAttempt(ctx, attemptID, testUserID); err != nil {
		t.Errorf("ExpireAttempt on finished attempt: %v", err)
	}
	if f.results.updates != updatesBefore {
		t.Error("expiry after submit must not touch the result")
	}
	if got := f.results.results[attemptID].SubmittedAt; !got.Equal(*firstSubmittedAt) {
		t.Error("SubmittedAt changed on repeat finalization")
	}
}

func TestExpireAttemptUsesTimeoutStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	if err := f.svc.ExpireAttempt(ctx, attemptID, testUserID); err != nil {
		t.Fatalf("ExpireAttempt: %v", err)
	}
	if got := f.attempts.attempts[attemptID].Status; got != model.AttemptStatusTimeout {
		t.Errorf("status = %s, want timeout", got)
	}
}

func TestGetResultBlockedWhileInProgress(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	if _, err := f.svc.GetResult(ctx, attemptID, testUserID); !errors.Is(err, ErrResultNotReady) {
		t.Errorf("err = %v, want ErrResultNotReady", err)
	}

	if err := f.svc.SubmitExam(ctx, attemptID, testUserID); err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}

	res, err := f.svc.GetResult(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("GetResult after submit: %v", err)
	}
	if res.SubmittedAt == nil {
		t.Error("returned result should be graded")
	}
}

func TestGetResultWrongUser(t *testing.T) {
	f := newEngineFixture(t)
	attemptID := f.start(t)

	_, err := f.svc.GetResult(context.Background(), attemptID, testUserID+1)
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestSyncTimeWithoutCache(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	out, err := f.svc.SyncTime(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("SyncTime: %v", err)
	}
	if out.Status != model.AttemptStatusInProgress {
		t.Errorf("status = %s, want in_progress", out.Status)
	}
	if out.CurrentSubjectIndex == nil || *out.CurrentSubjectIndex != 0 {
		t.Errorf("CurrentSubjectIndex = %v, want 0", out.CurrentSubjectIndex)
	}
	if out.TimeRemainingSeconds <= 0 || out.TimeRemainingSeconds > 30*60 {
		t.Errorf("TimeRemainingSeconds = %d, out of range", out.TimeRemainingSeconds)
	}

	if err := f.svc.SubmitExam(ctx, attemptID, testUserID); err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}

	out, err = f.svc.SyncTime(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("SyncTime after submit: %v", err)
	}
	if !out.Status.Terminal() {
		t.Errorf("status = %s, want terminal", out.Status)
	}
	if out.TimeRemainingSeconds != 0 {
		t.Errorf("TimeRemainingSeconds = %d, want 0", out.TimeRemainingSeconds)
	}
}

// newCachedEngineFixture is the fixture with a live (miniredis-backed)
// clock cache, for tests that cover cache coherence.
func newCachedEngineFixture(t *testing.T) (*engineFixture, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	exam := testExam()
	results := newFakeResultStore()
	attempts := newFakeAttemptStore(results)
	exams := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	svc := NewAttemptService(attempts, results, exams, rdb, zerolog.Nop())
	return &engineFixture{svc: svc, attempts: attempts, results: results, exam: exam}, mr
}

func TestSyncTimeCacheFollowsSubjectCompletion(t *testing.T) {
	f, mr := newCachedEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)
	clockKey := config.CacheKey.AttemptClockKey(attemptID.String())

	// The start populates the clock cache with a bounded lifetime.
	if !mr.Exists(clockKey) {
		t.Fatal("clock cache not populated on start")
	}
	if mr.TTL(clockKey) <= 0 {
		t.Error("clock cache entry must carry a TTL")
	}

	out, err := f.svc.SyncTime(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("SyncTime: %v", err)
	}
	if out.CurrentSubjectIndex == nil || *out.CurrentSubjectIndex != 0 {
		t.Fatalf("CurrentSubjectIndex = %v, want 0", out.CurrentSubjectIndex)
	}

	// Completing subject 0 must not leave its deadline in the cache: the
	// next subject has no timer until an advance starts it.
	if _, err := f.svc.CompleteSubject(ctx, attemptID, testUserID, 0); err != nil {
		t.Fatalf("CompleteSubject: %v", err)
	}

	out, err = f.svc.SyncTime(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("SyncTime after completion: %v", err)
	}
	if out.CurrentSubjectIndex == nil || *out.CurrentSubjectIndex != 1 {
		t.Errorf("CurrentSubjectIndex = %v, want 1", out.CurrentSubjectIndex)
	}
	if out.TimeRemainingSeconds != 20*60 {
		t.Errorf("TimeRemainingSeconds = %d, want full unstarted budget %d", out.TimeRemainingSeconds, 20*60)
	}
}

func TestSubmitExamDropsClockCache(t *testing.T) {
	f, mr := newCachedEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)
	clockKey := config.CacheKey.AttemptClockKey(attemptID.String())

	if err := f.svc.SubmitExam(ctx, attemptID, testUserID); err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if mr.Exists(clockKey) {
		t.Error("clock cache must be dropped on finalization")
	}

	out, err := f.svc.SyncTime(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("SyncTime after submit: %v", err)
	}
	if !out.Status.Terminal() || out.TimeRemainingSeconds != 0 {
		t.Errorf("SyncTime = %+v, want terminal with zero remaining", out)
	}
}

func TestSyncTimeCacheHitChecksOwnership(t *testing.T) {
	f, _ := newCachedEngineFixture(t)
	attemptID := f.start(t)

	_, err := f.svc.SyncTime(context.Background(), attemptID, testUserID+1)
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("err = %v, want ErrAttemptNotFound for a foreign attempt", err)
	}
}

func TestGetStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	attemptID := f.start(t)

	out, err := f.svc.GetStatus(ctx, attemptID, testUserID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if out.Status != model.AttemptStatusInProgress || out.CurrentSubjectIndex != 0 {
		t.Errorf("unexpected status output: %+v", out)
	}
	if out.TotalSubjects != 2 || out.CompletedSubjects != 0 {
		t.Errorf("subject counters wrong: %+v", out)
	}

	if _, err := f.svc.GetStatus(ctx, uuid.New(), testUserID); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("unknown attempt err = %v, want ErrAttemptNotFound", err)
	}
}

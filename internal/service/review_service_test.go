package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/coursekart/exam-engine/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const testReviewerID = 99

func boolPtr(v bool) *bool { return &v }

// reviewFixture seeds a finished attempt with a graded-but-pending result,
// the way completeExam leaves them: objective questions scored, the short
// answer still pending.
func newReviewFixture(t *testing.T) (*ReviewService, *fakeResultStore, *fakeAttemptStore, uuid.UUID) {
	t.Helper()
	exam := testExam()
	attemptID := uuid.New()

	result := &model.Result{
		ID:        uuid.New(),
		AttemptID: attemptID,
		ExamID:    exam.ID,
		UserID:    testUserID,
		Questions: model.NewQuestionResults(exam),
		Status:    model.ResultStatusPendingReview,
	}
	for i := range result.Questions {
		qr := &result.Questions[i]
		if qr.QuestionType.Objective() {
			qr.Grade = model.GradeIncorrect
		}
	}
	result.Find(0, 1).UserAnswer = json.RawMessage(`"a thorough derivation"`)
	result.Recalculate()

	results := newFakeResultStore()
	results.results[attemptID] = deepCopyResult(result)

	attempts := newFakeAttemptStore(results)
	attempts.attempts[attemptID] = &model.Attempt{
		ID:     attemptID,
		ExamID: exam.ID,
		UserID: testUserID,
		Status: model.AttemptStatusCompleted,
	}

	return NewReviewService(results, attempts, zerolog.Nop()), results, attempts, attemptID
}

func TestReviewAnswer(t *testing.T) {
	svc, results, _, attemptID := newReviewFixture(t)
	ctx := context.Background()

	out, err := svc.ReviewAnswer(ctx, attemptID, testReviewerID, &model.ReviewAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(1),
		Correct:       boolPtr(true),
		Marks:         8,
		Feedback:      "solid reasoning",
	})
	if err != nil {
		t.Fatalf("ReviewAnswer: %v", err)
	}

	qr := out.Find(0, 1)
	if qr.Grade != model.GradeCorrect || qr.MarksObtained != 8 {
		t.Errorf("grade = (%s, %v), want (correct, 8)", qr.Grade, qr.MarksObtained)
	}
	if qr.ReviewedBy == nil || *qr.ReviewedBy != testReviewerID || qr.ReviewedAt == nil {
		t.Error("review metadata not recorded")
	}
	if qr.AdminFeedback != "solid reasoning" {
		t.Errorf("AdminFeedback = %q", qr.AdminFeedback)
	}
	if out.PendingReviewCount != 0 {
		t.Errorf("PendingReviewCount = %d, want 0", out.PendingReviewCount)
	}

	stored := results.results[attemptID]
	if stored.Find(0, 1).Grade != model.GradeCorrect {
		t.Error("review not persisted")
	}
}

func TestReviewAnswerCapsMarks(t *testing.T) {
	svc, _, _, attemptID := newReviewFixture(t)

	out, err := svc.ReviewAnswer(context.Background(), attemptID, testReviewerID, &model.ReviewAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(1),
		Correct:       boolPtr(true),
		Marks:         500,
	})
	if err != nil {
		t.Fatalf("ReviewAnswer: %v", err)
	}
	if got := out.Find(0, 1).MarksObtained; got != 10 {
		t.Errorf("MarksObtained = %v, want capped at 10", got)
	}
}

func TestReviewAnswerRejections(t *testing.T) {
	svc, _, _, attemptID := newReviewFixture(t)
	ctx := context.Background()

	t.Run("unknown attempt", func(t *testing.T) {
		_, err := svc.ReviewAnswer(ctx, uuid.New(), testReviewerID, &model.ReviewAnswerRequest{
			SubjectIndex:  intPtr(0),
			QuestionIndex: intPtr(1),
			Correct:       boolPtr(true),
		})
		if !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("err = %v, want ErrAttemptNotFound", err)
		}
	})

	t.Run("unknown question", func(t *testing.T) {
		_, err := svc.ReviewAnswer(ctx, attemptID, testReviewerID, &model.ReviewAnswerRequest{
			SubjectIndex:  intPtr(5),
			QuestionIndex: intPtr(9),
			Correct:       boolPtr(true),
		})
		if !errors.Is(err, ErrQuestionNotFound) {
			t.Errorf("err = %v, want ErrQuestionNotFound", err)
		}
	})
}

func TestReviewRejectedWhileAttemptInProgress(t *testing.T) {
	svc, _, attempts, attemptID := newReviewFixture(t)
	ctx := context.Background()
	attempts.attempts[attemptID].Status = model.AttemptStatusInProgress

	_, err := svc.ReviewAnswer(ctx, attemptID, testReviewerID, &model.ReviewAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(1),
		Correct:       boolPtr(true),
		Marks:         5,
	})
	if !errors.Is(err, ErrResultNotReady) {
		t.Errorf("ReviewAnswer err = %v, want ErrResultNotReady mid-exam", err)
	}

	if _, err := svc.Finalize(ctx, attemptID); !errors.Is(err, ErrResultNotReady) {
		t.Errorf("Finalize err = %v, want ErrResultNotReady mid-exam", err)
	}
}

func TestFinalizeRequiresAllReviewed(t *testing.T) {
	svc, results, _, attemptID := newReviewFixture(t)
	ctx := context.Background()

	if _, err := svc.Finalize(ctx, attemptID); !errors.Is(err, ErrReviewPending) {
		t.Fatalf("err = %v, want ErrReviewPending while a question is pending", err)
	}

	if _, err := svc.ReviewAnswer(ctx, attemptID, testReviewerID, &model.ReviewAnswerRequest{
		SubjectIndex:  intPtr(0),
		QuestionIndex: intPtr(1),
		Correct:       boolPtr(false),
		Marks:         0,
	}); err != nil {
		t.Fatalf("ReviewAnswer: %v", err)
	}

	out, err := svc.Finalize(ctx, attemptID)
	if err != nil {
		t.Fatalf("Finalize after review: %v", err)
	}
	if out.Status != model.ResultStatusFinalized {
		t.Errorf("status = %s, want finalized", out.Status)
	}
	if results.results[attemptID].Status != model.ResultStatusFinalized {
		t.Error("finalization not persisted")
	}
}

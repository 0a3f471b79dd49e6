package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. The three terminal states
// are mutually exclusive and entered at most once, guarded by a conditional
// status update in the repository.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusTimeout    AttemptStatus = "timeout"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// Terminal reports whether the status is a done state.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusTimeout || s == AttemptStatusSubmitted
}

// Answer is one recorded answer, addressed by (subjectIndex, questionIndex).
// Value holds a JSON string for single-choice/short-answer, a JSON array of
// option texts for multi-choice, or a file reference for image-upload.
type Answer struct {
	SubjectIndex     int             `json:"subject_index"`
	QuestionIndex    int             `json:"question_index"`
	Value            json.RawMessage `json:"value"`
	TimeSpentSeconds int             `json:"time_spent_seconds"`
}

// SubjectAttempt is the per-subject timing and answer state nested inside
// an attempt. It carries a snapshot of the subject's time budget so a later
// exam edit cannot change the rules mid-attempt.
type SubjectAttempt struct {
	SubjectIndex     int        `json:"subject_index"`
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	IsCompleted      bool       `json:"is_completed"`
	Answers          []Answer   `json:"answers"`
}

// RemainingSeconds computes the clock for this subject at the given instant.
// Never negative; a subject that has not started reports its full budget.
func (sa *SubjectAttempt) RemainingSeconds(now time.Time) int {
	budget := sa.TimeLimitMinutes * 60
	if sa.IsCompleted {
		return 0
	}
	if sa.StartedAt == nil {
		return budget
	}
	remaining := budget - int(now.Sub(*sa.StartedAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the subject's time budget has elapsed.
// Subjects with a non-positive budget never expire.
func (sa *SubjectAttempt) Expired(now time.Time) bool {
	if sa.TimeLimitMinutes <= 0 || sa.StartedAt == nil {
		return false
	}
	return now.Sub(*sa.StartedAt) >= time.Duration(sa.TimeLimitMinutes)*time.Minute
}

// FindAnswer returns the answer for a question index, or nil.
func (sa *SubjectAttempt) FindAnswer(questionIndex int) *Answer {
	for i := range sa.Answers {
		if sa.Answers[i].QuestionIndex == questionIndex {
			return &sa.Answers[i]
		}
	}
	return nil
}

// UpsertAnswer overwrites the answer for the question index, or appends it.
// Resubmission replaces; answers are never duplicated per question.
func (sa *SubjectAttempt) UpsertAnswer(ans Answer) {
	for i := range sa.Answers {
		if sa.Answers[i].QuestionIndex == ans.QuestionIndex {
			sa.Answers[i] = ans
			return
		}
	}
	sa.Answers = append(sa.Answers, ans)
}

// Attempt is one user's run through one exam. Subjects mirror the exam's
// subjects 1:1 by index and advance strictly in order.
type Attempt struct {
	ID                   uuid.UUID        `json:"id"`
	ExamID               uuid.UUID        `json:"exam_id"`
	UserID               int              `json:"user_id"`
	Status               AttemptStatus    `json:"status"`
	StartedAt            time.Time        `json:"started_at"`
	FinishedAt           *time.Time       `json:"finished_at,omitempty"`
	TotalDurationSeconds int              `json:"total_duration_seconds"`
	ClientIP             string           `json:"client_ip,omitempty"`
	UserAgent            string           `json:"user_agent,omitempty"`
	Subjects             []SubjectAttempt `json:"subjects"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// CurrentSubject returns the first incomplete subject attempt, or nil when
// every subject is completed.
func (a *Attempt) CurrentSubject() *SubjectAttempt {
	for i := range a.Subjects {
		if !a.Subjects[i].IsCompleted {
			return &a.Subjects[i]
		}
	}
	return nil
}

// CurrentSubjectIndex returns the index of the first incomplete subject,
// defaulting to 0 when all are completed.
func (a *Attempt) CurrentSubjectIndex() int {
	if cur := a.CurrentSubject(); cur != nil {
		return cur.SubjectIndex
	}
	return 0
}

// CompletedSubjects counts completed subject attempts.
func (a *Attempt) CompletedSubjects() int {
	n := 0
	for i := range a.Subjects {
		if a.Subjects[i].IsCompleted {
			n++
		}
	}
	return n
}

// NewSubjectAttempts builds the 1:1 subject snapshot for a fresh attempt.
// Subject 0 starts immediately; the rest wait for advancement.
func NewSubjectAttempts(exam *Exam, now time.Time) []SubjectAttempt {
	subjects := make([]SubjectAttempt, len(exam.Subjects))
	for i, subj := range exam.Subjects {
		subjects[i] = SubjectAttempt{
			SubjectIndex:     i,
			Title:            subj.Title,
			TimeLimitMinutes: subj.TimeLimitMinutes,
			Answers:          []Answer{},
		}
	}
	if len(subjects) > 0 {
		start := now
		subjects[0].StartedAt = &start
	}
	return subjects
}

// ─── Request payloads ───────────────────────────────────────────────

// SubmitAnswerRequest is the payload for recording a single answer.
// Indices are pointers so a zero index still satisfies "required".
type SubmitAnswerRequest struct {
	SubjectIndex     *int            `json:"subject_index" binding:"required,min=0"`
	QuestionIndex    *int            `json:"question_index" binding:"required,min=0"`
	Answer           json.RawMessage `json:"answer" binding:"required"`
	TimeSpentSeconds int             `json:"time_spent_seconds" binding:"min=0"`
}

// BulkAnswerItem is one answer inside a bulk submission.
type BulkAnswerItem struct {
	QuestionIndex    *int            `json:"question_index" binding:"required,min=0"`
	Answer           json.RawMessage `json:"answer" binding:"required"`
	TimeSpentSeconds int             `json:"time_spent_seconds" binding:"min=0"`
}

// SubmitAllAnswersRequest is the payload for submitting a whole subject.
type SubmitAllAnswersRequest struct {
	SubjectIndex *int             `json:"subject_index" binding:"required,min=0"`
	Answers      []BulkAnswerItem `json:"answers" binding:"required,dive"`
}

// CompleteSubjectRequest is the payload for closing a subject.
type CompleteSubjectRequest struct {
	SubjectIndex *int `json:"subject_index" binding:"required,min=0"`
}

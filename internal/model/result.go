package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GradeStatus is the grading state of one question. Non-objective questions
// stay pending until a reviewer grades them.
type GradeStatus string

const (
	GradePending   GradeStatus = "pending"
	GradeCorrect   GradeStatus = "correct"
	GradeIncorrect GradeStatus = "incorrect"
)

// ResultStatus enumerates the lifecycle of a result record.
type ResultStatus string

const (
	ResultStatusPendingReview ResultStatus = "pending_manual_review"
	ResultStatusFinalized     ResultStatus = "finalized"
)

// QuestionResult is the denormalized grading state of one question inside a
// result. CorrectOptions and MaxMarks are snapshotted from the exam
// definition at attempt start.
type QuestionResult struct {
	SubjectIndex   int             `json:"subject_index"`
	QuestionIndex  int             `json:"question_index"`
	QuestionType   QuestionType    `json:"question_type"`
	CorrectOptions []string        `json:"correct_options,omitempty"`
	MaxMarks       float64         `json:"max_marks"`
	UserAnswer     json.RawMessage `json:"user_answer,omitempty"`
	Grade          GradeStatus     `json:"grade"`
	MarksObtained  float64         `json:"marks_obtained"`
	ReviewedBy     *int            `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	AdminFeedback  string          `json:"admin_feedback,omitempty"`
}

// Result is the gradable snapshot of an attempt, created alongside it and
// holding one QuestionResult per exam question across all subjects.
type Result struct {
	ID                 uuid.UUID        `json:"id"`
	AttemptID          uuid.UUID        `json:"attempt_id"`
	ExamID             uuid.UUID        `json:"exam_id"`
	UserID             int              `json:"user_id"`
	Questions          []QuestionResult `json:"questions"`
	TotalMarks         float64          `json:"total_marks"`
	ObtainedMarks      float64          `json:"obtained_marks"`
	Percentage         float64          `json:"percentage"`
	PendingReviewCount int              `json:"pending_review_count"`
	Status             ResultStatus     `json:"status"`
	SubmittedAt        *time.Time       `json:"submitted_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Find returns the question result at (subjectIndex, questionIndex), or nil.
func (r *Result) Find(subjectIndex, questionIndex int) *QuestionResult {
	for i := range r.Questions {
		if r.Questions[i].SubjectIndex == subjectIndex && r.Questions[i].QuestionIndex == questionIndex {
			return &r.Questions[i]
		}
	}
	return nil
}

// Recalculate refreshes the aggregate fields from the question results.
// Total/obtained marks are only meaningful once the attempt has finished.
func (r *Result) Recalculate() {
	var total, obtained float64
	pending := 0
	for i := range r.Questions {
		total += r.Questions[i].MaxMarks
		obtained += r.Questions[i].MarksObtained
		if r.Questions[i].Grade == GradePending {
			pending++
		}
	}
	r.TotalMarks = total
	r.ObtainedMarks = obtained
	r.PendingReviewCount = pending
	if total > 0 {
		r.Percentage = obtained / total * 100
	} else {
		r.Percentage = 0
	}
}

// NewQuestionResults seeds one QuestionResult per exam question, ungraded
// and unanswered.
func NewQuestionResults(exam *Exam) []QuestionResult {
	results := make([]QuestionResult, 0, exam.TotalQuestions())
	for si := range exam.Subjects {
		for qi := range exam.Subjects[si].Questions {
			q := &exam.Subjects[si].Questions[qi]
			results = append(results, QuestionResult{
				SubjectIndex:   si,
				QuestionIndex:  qi,
				QuestionType:   q.Type,
				CorrectOptions: q.CorrectOptionTexts(),
				MaxMarks:       q.Marks,
				Grade:          GradePending,
				MarksObtained:  0,
			})
		}
	}
	return results
}

// ReviewAnswerRequest is the payload for manually grading one answer.
type ReviewAnswerRequest struct {
	SubjectIndex  *int    `json:"subject_index" binding:"required,min=0"`
	QuestionIndex *int    `json:"question_index" binding:"required,min=0"`
	Correct       *bool   `json:"correct" binding:"required"`
	Marks         float64 `json:"marks" binding:"min=0"`
	Feedback      string  `json:"feedback" binding:"omitempty,max=2000"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// QuestionType enumerates the supported question kinds. Only the choice
// types are auto-gradable; the rest wait for manual review.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeShortAnswer  QuestionType = "SHORT_ANSWER"
	QuestionTypeImageUpload  QuestionType = "IMAGE_UPLOAD"
)

// Objective reports whether the question type can be auto-graded.
func (t QuestionType) Objective() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Question is one question inside a subject. Questions are addressed by
// position within their subject, not by ID.
type Question struct {
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	Options        []string     `json:"options,omitempty"`
	CorrectIndices []int        `json:"correct_indices,omitempty"`
	Marks          float64      `json:"marks"`
	SolutionText   string       `json:"solution_text,omitempty"`
}

// CorrectOptionTexts resolves the correct answer indices to option texts.
// Out-of-range indices are skipped rather than panicking on a bad definition.
func (q *Question) CorrectOptionTexts() []string {
	texts := make([]string, 0, len(q.CorrectIndices))
	for _, idx := range q.CorrectIndices {
		if idx >= 0 && idx < len(q.Options) {
			texts = append(texts, q.Options[idx])
		}
	}
	return texts
}

// Subject is one timed section of an exam. Subject order is significant:
// students work through subjects strictly in sequence.
type Subject struct {
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	Questions        []Question `json:"questions"`
}

// Exam is the immutable exam definition. The subject/question structure is
// snapshotted into each attempt at start time, so edits to a published exam
// never desynchronize in-flight attempts.
type Exam struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Status    ExamStatus `json:"status"`
	Subjects  []Subject  `json:"subjects"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TotalQuestions counts questions across all subjects.
func (e *Exam) TotalQuestions() int {
	n := 0
	for i := range e.Subjects {
		n += len(e.Subjects[i].Questions)
	}
	return n
}

// ExamSummary is the trimmed exam view returned when an attempt starts
// (no correct answers or solutions).
type ExamSummary struct {
	ID       uuid.UUID        `json:"id"`
	Title    string           `json:"title"`
	Subjects []SubjectSummary `json:"subjects"`
}

// SubjectSummary mirrors Subject without answer keys.
type SubjectSummary struct {
	Title            string               `json:"title"`
	TimeLimitMinutes int                  `json:"time_limit_minutes"`
	Questions        []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question stripped of its answer key.
type QuestionForStudent struct {
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
	Marks   float64      `json:"marks"`
}

// Summary builds the student-facing view of the exam.
func (e *Exam) Summary() ExamSummary {
	summary := ExamSummary{
		ID:       e.ID,
		Title:    e.Title,
		Subjects: make([]SubjectSummary, len(e.Subjects)),
	}
	for i, subj := range e.Subjects {
		questions := make([]QuestionForStudent, len(subj.Questions))
		for j, q := range subj.Questions {
			questions[j] = QuestionForStudent{
				Type:    q.Type,
				Text:    q.Text,
				Options: q.Options,
				Marks:   q.Marks,
			}
		}
		summary.Subjects[i] = SubjectSummary{
			Title:            subj.Title,
			TimeLimitMinutes: subj.TimeLimitMinutes,
			Questions:        questions,
		}
	}
	return summary
}

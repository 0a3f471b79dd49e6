package grader

import (
	"encoding/json"
	"testing"

	"github.com/coursekart/exam-engine/internal/model"
)

func TestScoreSingleChoice(t *testing.T) {
	correct := []string{"Paris"}

	tests := []struct {
		name      string
		answer    string
		wantGrade model.GradeStatus
		wantMarks float64
	}{
		{"correct answer", `"Paris"`, model.GradeCorrect, 5},
		{"wrong answer", `"London"`, model.GradeIncorrect, 0},
		{"malformed answer", `{"oops":1}`, model.GradeIncorrect, 0},
		{"array instead of string", `["Paris"]`, model.GradeIncorrect, 0},
		{"empty string", `""`, model.GradeIncorrect, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, marks := Score(model.QuestionTypeSingleChoice, correct, json.RawMessage(tt.answer), 5)
			if grade != tt.wantGrade || marks != tt.wantMarks {
				t.Errorf("Score() = (%s, %v), want (%s, %v)", grade, marks, tt.wantGrade, tt.wantMarks)
			}
		})
	}
}

func TestScoreMultiChoice(t *testing.T) {
	correct := []string{"red", "blue"}

	tests := []struct {
		name      string
		answer    string
		wantGrade model.GradeStatus
		wantMarks float64
	}{
		{"exact match", `["red","blue"]`, model.GradeCorrect, 10},
		{"order independent", `["blue","red"]`, model.GradeCorrect, 10},
		{"partial selection", `["red"]`, model.GradeIncorrect, 0},
		{"extra selection", `["red","blue","green"]`, model.GradeIncorrect, 0},
		{"empty selection", `[]`, model.GradeIncorrect, 0},
		{"bare string treated as one selection", `"red"`, model.GradeIncorrect, 0},
		{"malformed answer", `42`, model.GradeIncorrect, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, marks := Score(model.QuestionTypeMultiChoice, correct, json.RawMessage(tt.answer), 10)
			if grade != tt.wantGrade || marks != tt.wantMarks {
				t.Errorf("Score() = (%s, %v), want (%s, %v)", grade, marks, tt.wantGrade, tt.wantMarks)
			}
		})
	}
}

func TestScoreNonObjectiveStaysPending(t *testing.T) {
	for _, qt := range []model.QuestionType{model.QuestionTypeShortAnswer, model.QuestionTypeImageUpload} {
		t.Run(string(qt), func(t *testing.T) {
			grade, marks := Score(qt, nil, json.RawMessage(`"anything at all"`), 8)
			if grade != model.GradePending {
				t.Errorf("grade = %s, want %s", grade, model.GradePending)
			}
			if marks != 0 {
				t.Errorf("marks = %v, want 0", marks)
			}
		})
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	answer := json.RawMessage(`["blue","red"]`)
	correct := []string{"red", "blue"}

	g1, m1 := Score(model.QuestionTypeMultiChoice, correct, answer, 10)
	g2, m2 := Score(model.QuestionTypeMultiChoice, correct, answer, 10)
	if g1 != g2 || m1 != m2 {
		t.Errorf("repeated grading diverged: (%s, %v) vs (%s, %v)", g1, m1, g2, m2)
	}
}

func TestScoreDoesNotMutateInputs(t *testing.T) {
	correct := []string{"red", "blue"}
	answer := json.RawMessage(`["blue","red"]`)

	Score(model.QuestionTypeMultiChoice, correct, answer, 10)

	if correct[0] != "red" || correct[1] != "blue" {
		t.Errorf("correct options mutated: %v", correct)
	}
	if string(answer) != `["blue","red"]` {
		t.Errorf("answer mutated: %s", answer)
	}
}

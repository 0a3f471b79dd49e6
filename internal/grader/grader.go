// Package grader scores objective answers against an exam's answer key.
// Scoring is deterministic and side-effect-free: grading the same answer
// twice always yields the same outcome, and inputs are never mutated.
package grader

import (
	"encoding/json"
	"sort"

	"github.com/coursekart/exam-engine/internal/model"
)

// Score grades one answer. Objective types resolve to correct/incorrect
// with full or zero marks; short-answer and image-upload always come back
// pending for manual review. A missing or malformed answer on an objective
// question scores incorrect.
func Score(questionType model.QuestionType, correctOptions []string, answer json.RawMessage, maxMarks float64) (model.GradeStatus, float64) {
	switch questionType {
	case model.QuestionTypeSingleChoice:
		selected, err := decodeText(answer)
		if err != nil {
			return model.GradeIncorrect, 0
		}
		if len(correctOptions) > 0 && selected == correctOptions[0] {
			return model.GradeCorrect, maxMarks
		}
		return model.GradeIncorrect, 0

	case model.QuestionTypeMultiChoice:
		selected, err := decodeTexts(answer)
		if err != nil {
			return model.GradeIncorrect, 0
		}
		if setEqual(selected, correctOptions) {
			return model.GradeCorrect, maxMarks
		}
		return model.GradeIncorrect, 0

	default:
		return model.GradePending, 0
	}
}

// decodeText parses a JSON string answer ("42" → 42).
func decodeText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// decodeTexts parses a JSON array of option texts. A bare string is
// accepted as a one-element selection.
func decodeTexts(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return []string{s}, nil
}

// setEqual compares two option-text selections order-independently by
// sorting copies of both and comparing element-wise.
func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

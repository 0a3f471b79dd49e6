package service

import "errors"

// Attempt lifecycle errors. All are caller-visible state conflicts mapped to
// 4xx at the HTTP boundary; none are retried server-side.
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrExamNotPublished  = errors.New("exam is not published")
	ErrAlreadyInProgress = errors.New("attempt already in progress for this exam")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrNotInProgress     = errors.New("attempt is not in progress")
	ErrSubjectClosed     = errors.New("subject is closed")
	ErrTimeLimitExceeded = errors.New("subject time limit exceeded")
	ErrNoActiveSubject   = errors.New("no active subject")
	ErrResultNotReady    = errors.New("result not available until the attempt finishes")
	ErrReviewPending     = errors.New("result has answers awaiting manual review")
	ErrQuestionNotFound  = errors.New("question not found in result")
)

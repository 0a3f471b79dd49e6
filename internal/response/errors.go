package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAlreadyInProgress ErrCode = "ATTEMPT_ALREADY_IN_PROGRESS"
	ErrExamNotPublished  ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNotInProgress     ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrSubjectClosed     ErrCode = "SUBJECT_CLOSED"
	ErrTimeLimitExceeded ErrCode = "TIME_LIMIT_EXCEEDED"
	ErrNoActiveSubject   ErrCode = "NO_ACTIVE_SUBJECT"
	ErrResultNotReady    ErrCode = "RESULT_NOT_READY"
	ErrReviewPending     ErrCode = "REVIEW_PENDING"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "The exam attempt was not found."
	case ErrAlreadyInProgress:
		return "An attempt for this exam is already in progress."
	case ErrExamNotPublished:
		return "This exam is not published."
	case ErrNotInProgress:
		return "The exam attempt is no longer in progress."
	case ErrSubjectClosed:
		return "This subject has been closed."
	case ErrTimeLimitExceeded:
		return "The time limit for this subject has been exceeded."
	case ErrNoActiveSubject:
		return "There is no active subject to advance from."
	case ErrResultNotReady:
		return "The result is not available until the attempt is finished."
	case ErrReviewPending:
		return "The result still has answers awaiting manual review."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

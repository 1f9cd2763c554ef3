package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrExaminerAccessOnly  ErrCode = "EXAMINER_ACCESS_ONLY"
	ErrNotOwner            ErrCode = "NOT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotAvailable ErrCode = "EXAM_NOT_AVAILABLE"
	ErrPaymentRequired  ErrCode = "PAYMENT_REQUIRED"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrNotSubmitted     ErrCode = "NOT_SUBMITTED"

	// ─── Grading ───────────────────────────────────────────────────────
	ErrInvalidMark ErrCode = "INVALID_MARK"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrCandidateAccessOnly:
		return "This resource is restricted to candidates."
	case ErrExaminerAccessOnly:
		return "This resource is restricted to examiners."
	case ErrNotOwner:
		return "This exam session belongs to another candidate."

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
	case ErrConflict:
		return "The resource already exists."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is currently not available."
	case ErrPaymentRequired:
		return "Payment is required before taking this exam."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrNotSubmitted:
		return "This exam has not been submitted yet."

	// ─── Grading ───────────────────────────────────────────────────────
	case ErrInvalidMark:
		return "One or more marks are invalid. No grades were applied."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Intake errors
	CodeIntakeValidation            Code = "INTAKE_VALIDATION"
	CodeIntakeAccessDenied          Code = "INTAKE_ACCESS_DENIED"
	CodeIntakeConversationClosed    Code = "INTAKE_CONVERSATION_CLOSED"
	CodeIntakeResumeTokenInvalid    Code = "INTAKE_RESUME_TOKEN_INVALID"
	CodeIntakeConflictUnknownGoal   Code = "INTAKE_UNKNOWN_GOAL"
	CodeIntakePhaseNotReady         Code = "INTAKE_PHASE_NOT_READY"
	CodeIntakeIdentityRequired      Code = "INTAKE_IDENTITY_REQUIRED"
	CodeIntakeConflictCheckDegraded Code = "INTAKE_CONFLICT_CHECK_DEGRADED"
	CodeIntakeCommitFailed          Code = "INTAKE_COMMIT_FAILED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, malformed input
	case CodeIntakeValidation:
		return http.StatusBadRequest

	// Unauthorized - credentials missing or unusable
	case CodeIntakeResumeTokenInvalid,
		CodeIntakeIdentityRequired:
		return http.StatusUnauthorized

	// Forbidden - identity or tenant mismatch
	case CodeIntakeAccessDenied:
		return http.StatusForbidden

	// Not found
	case CodeNotFound:
		return http.StatusNotFound

	// Conflict - state does not allow the operation
	case CodeIntakeConversationClosed,
		CodeIntakeConflictUnknownGoal,
		CodeIntakePhaseNotReady:
		return http.StatusConflict

	// Internal - commit and dependency failures
	case CodeIntakeCommitFailed,
		CodeIntakeConflictCheckDegraded,
		CodeUnknown:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

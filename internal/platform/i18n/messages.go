package i18n

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/harborlaw/intake/internal/platform/i18n/catalog"
)

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                     = "UNKNOWN"
	CodeIntakeValidation            = "INTAKE_VALIDATION"
	CodeIntakeAccessDenied          = "INTAKE_ACCESS_DENIED"
	CodeIntakeConversationClosed    = "INTAKE_CONVERSATION_CLOSED"
	CodeIntakeResumeTokenInvalid    = "INTAKE_RESUME_TOKEN_INVALID"
	CodeIntakeConflictUnknownGoal   = "INTAKE_UNKNOWN_GOAL"
	CodeIntakePhaseNotReady         = "INTAKE_PHASE_NOT_READY"
	CodeIntakeIdentityRequired      = "INTAKE_IDENTITY_REQUIRED"
	CodeIntakeConflictCheckDegraded = "INTAKE_CONFLICT_CHECK_DEGRADED"
	CodeIntakeCommitFailed          = "INTAKE_COMMIT_FAILED"
	CodeNotFound                    = "NOT_FOUND"
)

// Message returns the localized user-facing message for an error code from
// the embedded locale catalogs. Metadata values replace {Key} placeholders
// in the template.
func Message(tag language.Tag, code string, metadata map[string]string) string {
	bundle := catalog.Default()
	locale := tag.String()

	template, ok := bundle.Message(locale, code)
	if !ok {
		template, _ = bundle.Message(locale, CodeUnknown)
	}
	for key, value := range metadata {
		template = strings.ReplaceAll(template, "{"+key+"}", value)
	}
	return template
}

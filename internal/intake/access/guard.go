// Package access enforces who may touch a conversation: tenant isolation
// first, then resume-token possession before securing, then the bound
// identity afterwards.
package access

import (
	"strings"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/token"
	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

// Caller identifies the principal behind one request. UserID is set only
// when a verified login assertion accompanied the request; ResumeToken is
// the raw header value, if any.
type Caller struct {
	FirmID      string
	UserID      string
	ResumeToken string
}

// Authorize decides whether the caller may operate on the conversation.
// Tenant isolation is absolute and checked before anything else, so a
// cross-firm caller learns nothing about the conversation's auth state.
func Authorize(conv domain.Conversation, caller Caller) error {
	if strings.TrimSpace(caller.FirmID) == "" || caller.FirmID != conv.FirmID {
		return apperrors.WithMetadata(
			apperrors.CodeIntakeAccessDenied,
			"conversation does not belong to this firm",
			map[string]string{"ConversationID": conv.ID},
		)
	}

	if conv.Secured {
		if strings.TrimSpace(caller.UserID) == "" || caller.UserID != conv.AllowedIdentity {
			return apperrors.WithMetadata(
				apperrors.CodeIntakeAccessDenied,
				"conversation is bound to another identity",
				map[string]string{"ConversationID": conv.ID},
			)
		}
		return nil
	}

	return token.Verify(caller.ResumeToken, conv.ResumeTokenHash)
}

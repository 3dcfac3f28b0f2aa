// Package domain defines the intake conversation state model and its
// transition rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/harborlaw/intake/internal/platform/errors"
	"github.com/harborlaw/intake/internal/platform/id"
)

var (
	// ErrEmptyFirmID indicates a missing firm ID.
	ErrEmptyFirmID = apperrors.New(apperrors.CodeIntakeValidation, "firm id is required")
)

// Conversation is the authoritative state of one intake conversation.
// It is owned exclusively by one session actor; all mutation goes through
// session operations.
type Conversation struct {
	ID     string
	UserID string // empty until the conversation is secured
	FirmID string

	Phase           Phase
	Secured         bool
	AllowedIdentity string // exactly one identity once secured, never rewritten
	ResumeTokenHash string

	Identity      IdentitySnapshot
	ConflictCheck ConflictCheck
	Goals         []Goal // insertion-ordered

	// DoVersion increases by exactly 1 per committed mutation.
	DoVersion uint64

	Deleted         bool
	TerminateReason string
	HandoffRequired bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateConversationInput describes the metadata needed to create a conversation.
type CreateConversationInput struct {
	FirmID          string
	ResumeTokenHash string
}

// CreateConversation creates a new anonymous, unsecured conversation seeded
// with the base goal set. The returned conversation carries DoVersion 1,
// counting creation as the first committed mutation.
func CreateConversation(input CreateConversationInput, now func() time.Time, idGenerator func() (string, error)) (Conversation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.FirmID = strings.TrimSpace(input.FirmID)
	if input.FirmID == "" {
		return Conversation{}, ErrEmptyFirmID
	}

	conversationID, err := idGenerator()
	if err != nil {
		return Conversation{}, fmt.Errorf("generate conversation id: %w", err)
	}

	createdAt := now().UTC()
	return Conversation{
		ID:              conversationID,
		FirmID:          input.FirmID,
		Phase:           PhasePreLogin,
		ResumeTokenHash: strings.TrimSpace(input.ResumeTokenHash),
		Identity:        IdentitySnapshot{},
		ConflictCheck:   ConflictCheck{Status: ConflictStatusPending},
		Goals:           BaseGoals(),
		DoVersion:       1,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}, nil
}

// CanMutate reports whether the conversation still accepts mutation.
func (c Conversation) CanMutate() bool {
	return !c.Deleted && !c.Phase.IsTerminal()
}

// AdvancePhase moves the conversation to next if the transition table allows
// it. Illegal transitions are rejected, keeping invariant 1 intact.
func (c *Conversation) AdvancePhase(next Phase) error {
	if !c.Phase.CanTransition(next) {
		return apperrors.WithMetadata(
			apperrors.CodeIntakePhaseNotReady,
			"illegal phase transition",
			map[string]string{"From": c.Phase.Label(), "To": next.Label()},
		)
	}
	c.Phase = next
	return nil
}

// Bind secures the conversation to a single verified identity. It is only
// legal once, from the login_suggested phase, and is irreversible.
func (c *Conversation) Bind(callerIdentity string) error {
	callerIdentity = strings.TrimSpace(callerIdentity)
	if callerIdentity == "" {
		return apperrors.New(apperrors.CodeIntakeValidation, "caller identity is required")
	}
	if c.Secured {
		return apperrors.New(apperrors.CodeIntakeAccessDenied, "conversation is already secured")
	}
	if err := c.AdvancePhase(PhaseSecured); err != nil {
		return err
	}
	c.Secured = true
	c.AllowedIdentity = callerIdentity
	c.UserID = callerIdentity
	return nil
}

// MergeConflictResult folds an external conflict verdict into the
// conversation under the monotonic-escalation rule. Checked fields and
// details accumulate; a resolved verdict clears the follow-up flag.
func (c *Conversation) MergeConflictResult(status ConflictStatus, confidence float64, checkedFields []string, details string) {
	next := c.ConflictCheck.Status.Escalate(status)
	if next != c.ConflictCheck.Status {
		c.ConflictCheck.Status = next
		c.ConflictCheck.Confidence = confidence
	}
	if details != "" {
		c.ConflictCheck.Details = details
	}
	c.ConflictCheck.CheckedFields = mergeFieldSet(c.ConflictCheck.CheckedFields, checkedFields)
	if c.ConflictCheck.Status.Resolved() {
		c.ConflictCheck.NeedsFollowUp = false
	}
}

func mergeFieldSet(current []string, incoming []string) []string {
	seen := make(map[string]struct{}, len(current))
	merged := make([]string, 0, len(current)+len(incoming))
	for _, field := range current {
		seen[field] = struct{}{}
		merged = append(merged, field)
	}
	for _, field := range incoming {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		merged = append(merged, field)
	}
	return merged
}

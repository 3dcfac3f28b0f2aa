// Package sync moves conversation snapshots from the session engine to the
// firm-facing index: commits enqueue events in the outbox, the forwarder
// publishes them, and the index applies them version-gated.
package sync

import (
	"encoding/json"
	"fmt"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/goal"
)

// Topic is the stream all conversation sync events flow through.
const Topic = "intake.conversation.sync"

// Event is one conversation snapshot at a committed version. Events are
// self-contained so the index can apply them in any order and keep only the
// newest version per conversation.
type Event struct {
	ConversationID  string            `json:"conversation_id"`
	FirmID          string            `json:"firm_id"`
	Version         uint64            `json:"version"`
	Phase           string            `json:"phase"`
	Secured         bool              `json:"secured"`
	ConflictStatus  string            `json:"conflict_status"`
	NeedsFollowUp   bool              `json:"needs_follow_up"`
	Identity        map[string]string `json:"identity"`
	GoalsCompleted  int               `json:"goals_completed"`
	GoalsTotal      int               `json:"goals_total"`
	MessageCount    int               `json:"message_count"`
	Deleted         bool              `json:"deleted"`
	TerminateReason string            `json:"terminate_reason,omitempty"`
	HandoffRequired bool              `json:"handoff_required"`
	UpdatedAt       int64             `json:"updated_at"`
}

// NewEvent snapshots a conversation at its current committed version.
func NewEvent(conv domain.Conversation, messageCount int) Event {
	completed, total := goal.Progress(conv.Goals)
	return Event{
		ConversationID:  conv.ID,
		FirmID:          conv.FirmID,
		Version:         conv.DoVersion,
		Phase:           conv.Phase.Label(),
		Secured:         conv.Secured,
		ConflictStatus:  domain.ConflictStatusLabel(conv.ConflictCheck.Status),
		NeedsFollowUp:   conv.ConflictCheck.NeedsFollowUp,
		Identity:        conv.Identity.Clone(),
		GoalsCompleted:  completed,
		GoalsTotal:      total,
		MessageCount:    messageCount,
		Deleted:         conv.Deleted,
		TerminateReason: conv.TerminateReason,
		HandoffRequired: conv.HandoffRequired,
		UpdatedAt:       conv.UpdatedAt.UTC().UnixMilli(),
	}
}

// Encode serializes the event for the outbox and the wire.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal sync event: %w", err)
	}
	return payload, nil
}

// DecodeEvent parses a wire payload back into an event.
func DecodeEvent(payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("unmarshal sync event: %w", err)
	}
	if evt.ConversationID == "" || evt.Version == 0 {
		return Event{}, fmt.Errorf("sync event missing conversation id or version")
	}
	return evt, nil
}

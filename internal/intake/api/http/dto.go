package httpapi

import (
	"time"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/index"
	"github.com/harborlaw/intake/internal/intake/session"
)

type conversationJSON struct {
	ID              string            `json:"id"`
	FirmID          string            `json:"firm_id"`
	Phase           string            `json:"phase"`
	Secured         bool              `json:"secured"`
	DoVersion       uint64            `json:"do_version"`
	Identity        map[string]string `json:"identity,omitempty"`
	ConflictCheck   conflictJSON      `json:"conflict_check"`
	Goals           []goalJSON        `json:"goals"`
	TerminateReason string            `json:"terminate_reason,omitempty"`
	HandoffRequired bool              `json:"handoff_required,omitempty"`
	Deleted         bool              `json:"deleted,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type conflictJSON struct {
	Status        string   `json:"status"`
	Confidence    float64  `json:"confidence,omitempty"`
	CheckedFields []string `json:"checked_fields,omitempty"`
	Details       string   `json:"details,omitempty"`
	NeedsFollowUp bool     `json:"needs_follow_up,omitempty"`
}

type goalJSON struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category,omitempty"`
	Source      string     `json:"source"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type messageJSON struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type createResponse struct {
	Conversation conversationJSON `json:"conversation"`
	ResumeToken  string           `json:"resume_token"`
	Greeting     messageJSON      `json:"greeting"`
}

type viewResponse struct {
	Conversation conversationJSON `json:"conversation"`
	Messages     []messageJSON    `json:"messages"`
}

type replyResponse struct {
	Conversation conversationJSON `json:"conversation"`
	AgentMessage messageJSON      `json:"agent_message"`
	LoginURL     string           `json:"login_url,omitempty"`
}

type conversationResponse struct {
	Conversation conversationJSON `json:"conversation"`
}

type addMessageRequest struct {
	Content        string            `json:"content"`
	IdentityFields map[string]string `json:"identity_fields,omitempty"`
	CompletedGoals []string          `json:"completed_goals,omitempty"`
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

type adminFieldsRequest struct {
	Assignee      string   `json:"assignee"`
	Priority      string   `json:"priority"`
	Tags          []string `json:"tags"`
	InternalNotes string   `json:"internal_notes"`
}

type entryJSON struct {
	ConversationID  string   `json:"conversation_id"`
	Phase           string   `json:"phase"`
	ConflictStatus  string   `json:"conflict_status"`
	NeedsFollowUp   bool     `json:"needs_follow_up,omitempty"`
	Secured         bool     `json:"secured"`
	ContactName     string   `json:"contact_name,omitempty"`
	ContactEmail    string   `json:"contact_email,omitempty"`
	GoalsCompleted  int      `json:"goals_completed"`
	GoalsTotal      int      `json:"goals_total"`
	MessageCount    int      `json:"message_count"`
	TerminateReason string   `json:"terminate_reason,omitempty"`
	HandoffRequired bool     `json:"handoff_required,omitempty"`
	Deleted         bool     `json:"deleted,omitempty"`
	UpdatedAt       int64    `json:"updated_at"`
	Assignee        string   `json:"assignee,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	InternalNotes   string   `json:"internal_notes,omitempty"`
}

type entryResponse struct {
	Entry entryJSON `json:"entry"`
}

type listEntriesResponse struct {
	Entries       []entryJSON `json:"entries"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newConversationJSON(conv domain.Conversation) conversationJSON {
	goals := make([]goalJSON, 0, len(conv.Goals))
	for _, g := range conv.Goals {
		goals = append(goals, goalJSON{
			ID:          g.ID,
			Description: g.Description,
			Priority:    domain.GoalPriorityLabel(g.Priority),
			Category:    g.Category,
			Source:      domain.GoalSourceLabel(g.Source),
			Completed:   g.Completed,
			CompletedAt: g.CompletedAt,
		})
	}
	return conversationJSON{
		ID:        conv.ID,
		FirmID:    conv.FirmID,
		Phase:     conv.Phase.Label(),
		Secured:   conv.Secured,
		DoVersion: conv.DoVersion,
		Identity:  conv.Identity,
		ConflictCheck: conflictJSON{
			Status:        domain.ConflictStatusLabel(conv.ConflictCheck.Status),
			Confidence:    conv.ConflictCheck.Confidence,
			CheckedFields: conv.ConflictCheck.CheckedFields,
			Details:       conv.ConflictCheck.Details,
			NeedsFollowUp: conv.ConflictCheck.NeedsFollowUp,
		},
		Goals:           goals,
		TerminateReason: conv.TerminateReason,
		HandoffRequired: conv.HandoffRequired,
		Deleted:         conv.Deleted,
		CreatedAt:       conv.CreatedAt,
		UpdatedAt:       conv.UpdatedAt,
	}
}

func newMessageJSON(msg domain.Message) messageJSON {
	return messageJSON{
		Role:      domain.MessageRoleLabel(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func newMessagesJSON(messages []domain.Message) []messageJSON {
	out := make([]messageJSON, 0, len(messages))
	for _, msg := range messages {
		out = append(out, newMessageJSON(msg))
	}
	return out
}

func newViewResponse(view session.View) viewResponse {
	return viewResponse{
		Conversation: newConversationJSON(view.Conversation),
		Messages:     newMessagesJSON(view.Messages),
	}
}

func newEntryJSON(entry index.Entry) entryJSON {
	return entryJSON{
		ConversationID:  entry.ConversationID,
		Phase:           entry.Phase,
		ConflictStatus:  entry.ConflictStatus,
		NeedsFollowUp:   entry.NeedsFollowUp,
		Secured:         entry.Secured,
		ContactName:     entry.ContactName,
		ContactEmail:    entry.ContactEmail,
		GoalsCompleted:  entry.GoalsCompleted,
		GoalsTotal:      entry.GoalsTotal,
		MessageCount:    entry.MessageCount,
		TerminateReason: entry.TerminateReason,
		HandoffRequired: entry.HandoffRequired,
		Deleted:         entry.Deleted,
		UpdatedAt:       entry.UpdatedAt,
		Assignee:        entry.Admin.Assignee,
		Priority:        entry.Admin.Priority,
		Tags:            entry.Admin.Tags,
		InternalNotes:   entry.Admin.InternalNotes,
	}
}

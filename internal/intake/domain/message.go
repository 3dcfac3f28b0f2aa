package domain

import (
	"strings"
	"time"
)

// MessageRole identifies who produced a conversation message.
type MessageRole int

const (
	// MessageRoleUnspecified represents an invalid role value.
	MessageRoleUnspecified MessageRole = iota
	// MessageRoleVisitor marks messages from the prospective client.
	MessageRoleVisitor
	// MessageRoleAgent marks messages from the intake agent.
	MessageRoleAgent
	// MessageRoleSystem marks engine-generated notices.
	MessageRoleSystem
)

// Message is one entry in a conversation's append-only transcript.
type Message struct {
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

// MessageRoleLabel returns the string label for a message role.
func MessageRoleLabel(role MessageRole) string {
	switch role {
	case MessageRoleVisitor:
		return "visitor"
	case MessageRoleAgent:
		return "agent"
	case MessageRoleSystem:
		return "system"
	default:
		return "unspecified"
	}
}

// MessageRoleFromLabel converts a role label to a MessageRole value.
func MessageRoleFromLabel(label string) MessageRole {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "visitor":
		return MessageRoleVisitor
	case "agent":
		return MessageRoleAgent
	case "system":
		return MessageRoleSystem
	default:
		return MessageRoleUnspecified
	}
}

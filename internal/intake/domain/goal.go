package domain

import (
	"strings"
	"time"
)

// GoalPriority ranks how strongly a goal blocks phase advancement.
type GoalPriority int

const (
	// GoalPriorityUnspecified represents an invalid priority value.
	GoalPriorityUnspecified GoalPriority = iota
	// GoalPriorityCritical goals block every advancement until complete.
	GoalPriorityCritical
	// GoalPriorityRequired goals block advancement to data gathering.
	GoalPriorityRequired
	// GoalPriorityImportant goals are surfaced but never block.
	GoalPriorityImportant
	// GoalPriorityOptional goals are informational only.
	GoalPriorityOptional
)

// GoalSource records where a goal came from.
type GoalSource int

const (
	// GoalSourceUnspecified represents an invalid source value.
	GoalSourceUnspecified GoalSource = iota
	// GoalSourceBase marks goals seeded at conversation creation.
	GoalSourceBase
	// GoalSourceAdditional marks goals added during the conversation flow.
	GoalSourceAdditional
	// GoalSourceConflictChecker marks goals requested by the conflict checker.
	GoalSourceConflictChecker
	// GoalSourceManual marks goals added by firm staff.
	GoalSourceManual
)

// CategoryPreLogin marks goals that must be complete before login is suggested.
const CategoryPreLogin = "pre_login"

// Goal is a discrete piece of information or action the intake flow must
// obtain before the conversation can advance.
type Goal struct {
	ID          string
	Description string
	Priority    GoalPriority
	Category    string
	Completed   bool
	Source      GoalSource
	CompletedAt *time.Time // nil until the goal is completed
}

// BaseGoals returns the goal set seeded into every new conversation, in
// insertion order.
func BaseGoals() []Goal {
	return []Goal{
		{
			ID:          "describe-situation",
			Description: "Tell us what happened and how we can help.",
			Priority:    GoalPriorityCritical,
			Category:    CategoryPreLogin,
			Source:      GoalSourceBase,
		},
		{
			ID:          "contact-name",
			Description: "Share the name we should use for you.",
			Priority:    GoalPriorityRequired,
			Category:    CategoryPreLogin,
			Source:      GoalSourceBase,
		},
		{
			ID:          "contact-reachability",
			Description: "Share the best way to reach you.",
			Priority:    GoalPriorityRequired,
			Category:    "contact",
			Source:      GoalSourceBase,
		},
		{
			ID:          "jurisdiction",
			Description: "Tell us where the matter took place.",
			Priority:    GoalPriorityImportant,
			Category:    "situation",
			Source:      GoalSourceBase,
		},
	}
}

// GoalPriorityLabel returns the string label for a goal priority.
func GoalPriorityLabel(priority GoalPriority) string {
	switch priority {
	case GoalPriorityCritical:
		return "critical"
	case GoalPriorityRequired:
		return "required"
	case GoalPriorityImportant:
		return "important"
	case GoalPriorityOptional:
		return "optional"
	default:
		return "unspecified"
	}
}

// GoalPriorityFromLabel converts a priority label to a GoalPriority value.
func GoalPriorityFromLabel(label string) GoalPriority {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical":
		return GoalPriorityCritical
	case "required":
		return GoalPriorityRequired
	case "important":
		return GoalPriorityImportant
	case "optional":
		return GoalPriorityOptional
	default:
		return GoalPriorityUnspecified
	}
}

// GoalSourceLabel returns the string label for a goal source.
func GoalSourceLabel(source GoalSource) string {
	switch source {
	case GoalSourceBase:
		return "base"
	case GoalSourceAdditional:
		return "additional"
	case GoalSourceConflictChecker:
		return "conflict_checker"
	case GoalSourceManual:
		return "manual"
	default:
		return "unspecified"
	}
}

// GoalSourceFromLabel converts a source label to a GoalSource value.
func GoalSourceFromLabel(label string) GoalSource {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "base":
		return GoalSourceBase
	case "additional":
		return GoalSourceAdditional
	case "conflict_checker":
		return GoalSourceConflictChecker
	case "manual":
		return GoalSourceManual
	default:
		return GoalSourceUnspecified
	}
}

package domain

import "strings"

// Phase describes the lifecycle stage of an intake conversation.
type Phase int

const (
	// PhaseUnspecified represents an invalid phase value.
	PhaseUnspecified Phase = iota
	// PhasePreLogin indicates an anonymous conversation gathering initial facts.
	PhasePreLogin
	// PhaseLoginSuggested indicates pre-login goals are complete and the caller
	// has been offered authentication.
	PhaseLoginSuggested
	// PhaseSecured indicates the conversation is bound to one verified identity.
	PhaseSecured
	// PhaseConflictCheckComplete indicates the conflict check has resolved.
	PhaseConflictCheckComplete
	// PhaseDataGathering indicates all critical and required goals are complete
	// and detailed intake is underway.
	PhaseDataGathering
	// PhaseCompleted indicates the conversation finished normally.
	PhaseCompleted
	// PhaseTerminated indicates the conversation was stopped before completion.
	PhaseTerminated
)

// phaseOrder is the forward progression of non-terminal phases. Termination is
// handled separately because it is reachable from every non-terminal phase.
var phaseOrder = map[Phase]Phase{
	PhasePreLogin:              PhaseLoginSuggested,
	PhaseLoginSuggested:        PhaseSecured,
	PhaseSecured:               PhaseConflictCheckComplete,
	PhaseConflictCheckComplete: PhaseDataGathering,
	PhaseDataGathering:         PhaseCompleted,
}

// IsTerminal reports whether the phase accepts no further mutation.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseTerminated
}

// CanTransition reports whether a conversation may move from p to next.
// Phases only advance forward one step at a time; PhaseTerminated is reachable
// from any non-terminal phase.
func (p Phase) CanTransition(next Phase) bool {
	if p.IsTerminal() {
		return false
	}
	if next == PhaseTerminated {
		return true
	}
	return phaseOrder[p] == next
}

// Label returns the string label for a phase.
func (p Phase) Label() string {
	switch p {
	case PhasePreLogin:
		return "pre_login"
	case PhaseLoginSuggested:
		return "login_suggested"
	case PhaseSecured:
		return "secured"
	case PhaseConflictCheckComplete:
		return "conflict_check_complete"
	case PhaseDataGathering:
		return "data_gathering"
	case PhaseCompleted:
		return "completed"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unspecified"
	}
}

// PhaseFromLabel converts a phase label to a Phase value.
func PhaseFromLabel(label string) Phase {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pre_login":
		return PhasePreLogin
	case "login_suggested":
		return PhaseLoginSuggested
	case "secured":
		return PhaseSecured
	case "conflict_check_complete":
		return PhaseConflictCheckComplete
	case "data_gathering":
		return PhaseDataGathering
	case "completed":
		return PhaseCompleted
	case "terminated":
		return PhaseTerminated
	default:
		return PhaseUnspecified
	}
}

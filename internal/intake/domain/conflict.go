package domain

import "strings"

// ConflictStatus describes the outcome of a conflict-of-interest check.
type ConflictStatus int

const (
	// ConflictStatusUnspecified represents an invalid status value.
	ConflictStatusUnspecified ConflictStatus = iota
	// ConflictStatusPending indicates no check has resolved yet.
	ConflictStatusPending
	// ConflictStatusClear indicates the check found no conflict.
	ConflictStatusClear
	// ConflictStatusConflictDetected indicates a conflict was found.
	// This status is permanent once reached.
	ConflictStatusConflictDetected
)

// ConflictCheck is the conversation's view of the external conflict check.
type ConflictCheck struct {
	Status        ConflictStatus
	Confidence    float64
	CheckedFields []string
	Details       string
	// NeedsFollowUp flags degraded checks for manual review. It never blocks
	// the conversation on its own.
	NeedsFollowUp bool
}

// CanEscalate reports whether the status may move from s to next.
// The only legal moves are pending→clear and pending/clear→conflict_detected;
// a detected conflict is never downgraded.
func (s ConflictStatus) CanEscalate(next ConflictStatus) bool {
	switch s {
	case ConflictStatusPending:
		return next == ConflictStatusClear || next == ConflictStatusConflictDetected
	case ConflictStatusClear:
		return next == ConflictStatusConflictDetected
	default:
		return false
	}
}

// Escalate returns the status that results from merging an incoming verdict,
// honoring the monotonic-escalation rule. Illegal moves leave s unchanged.
func (s ConflictStatus) Escalate(incoming ConflictStatus) ConflictStatus {
	if s.CanEscalate(incoming) {
		return incoming
	}
	return s
}

// Resolved reports whether the check has produced a verdict.
func (s ConflictStatus) Resolved() bool {
	return s == ConflictStatusClear || s == ConflictStatusConflictDetected
}

// ConflictStatusLabel returns the string label for a conflict status.
func ConflictStatusLabel(status ConflictStatus) string {
	switch status {
	case ConflictStatusPending:
		return "pending"
	case ConflictStatusClear:
		return "clear"
	case ConflictStatusConflictDetected:
		return "conflict_detected"
	default:
		return "unspecified"
	}
}

// ConflictStatusFromLabel converts a status label to a ConflictStatus value.
func ConflictStatusFromLabel(label string) ConflictStatus {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending":
		return ConflictStatusPending
	case "clear":
		return ConflictStatusClear
	case "conflict_detected":
		return ConflictStatusConflictDetected
	default:
		return ConflictStatusUnspecified
	}
}

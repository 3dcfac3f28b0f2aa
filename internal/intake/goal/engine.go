// Package goal computes goal merging, completion, and phase readiness for
// intake conversations.
package goal

import (
	"strings"
	"time"

	"github.com/harborlaw/intake/internal/intake/domain"
	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

// Merge appends new goals to the current ordered set, deduplicated by goal
// ID. Existing goals always win: an incoming goal whose ID is already present
// is dropped, so completion state is never clobbered.
func Merge(current []domain.Goal, incoming []domain.Goal) []domain.Goal {
	seen := make(map[string]struct{}, len(current))
	merged := make([]domain.Goal, 0, len(current)+len(incoming))
	for _, g := range current {
		seen[g.ID] = struct{}{}
		merged = append(merged, g)
	}
	for _, g := range incoming {
		g.ID = strings.TrimSpace(g.ID)
		if g.ID == "" {
			continue
		}
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		merged = append(merged, g)
	}
	return merged
}

// Complete marks the goal with the given ID complete and returns the updated
// set. Completing an already-complete goal is a no-op.
func Complete(goals []domain.Goal, goalID string, completedAt time.Time) ([]domain.Goal, error) {
	goalID = strings.TrimSpace(goalID)
	if goalID == "" {
		return nil, apperrors.New(apperrors.CodeIntakeValidation, "goal id is required")
	}

	updated := make([]domain.Goal, len(goals))
	copy(updated, goals)
	for i := range updated {
		if updated[i].ID != goalID {
			continue
		}
		if !updated[i].Completed {
			at := completedAt.UTC()
			updated[i].Completed = true
			updated[i].CompletedAt = &at
		}
		return updated, nil
	}
	return nil, apperrors.WithMetadata(
		apperrors.CodeIntakeConflictUnknownGoal,
		"goal not found",
		map[string]string{"GoalID": goalID},
	)
}

// PreLoginComplete reports whether every pre-login goal is complete.
func PreLoginComplete(goals []domain.Goal) bool {
	for _, g := range goals {
		if g.Category == domain.CategoryPreLogin && !g.Completed {
			return false
		}
	}
	return true
}

// BlockingComplete reports whether every critical and required goal is
// complete, the readiness threshold for data gathering.
func BlockingComplete(goals []domain.Goal) bool {
	for _, g := range goals {
		if g.Completed {
			continue
		}
		if g.Priority == domain.GoalPriorityCritical || g.Priority == domain.GoalPriorityRequired {
			return false
		}
	}
	return true
}

// FirstBlocking returns the goal to surface to the caller next: the
// earliest-added incomplete goal of the highest unmet priority. Insertion
// order breaks ties among goals of equal priority. It returns nil when every
// goal is complete.
func FirstBlocking(goals []domain.Goal) *domain.Goal {
	var best *domain.Goal
	for i := range goals {
		g := &goals[i]
		if g.Completed || g.Priority == domain.GoalPriorityUnspecified {
			continue
		}
		if best == nil || g.Priority < best.Priority {
			best = g
		}
	}
	if best == nil {
		return nil
	}
	found := *best
	return &found
}

// Progress reports completed and total goal counts.
func Progress(goals []domain.Goal) (completed int, total int) {
	for _, g := range goals {
		if g.Completed {
			completed++
		}
	}
	return completed, len(goals)
}

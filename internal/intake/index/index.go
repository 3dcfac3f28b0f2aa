// Package index maintains the firm-facing conversation index: a read model
// fed by sync events, carrying triage fields only firm staff may touch.
package index

import (
	"context"

	"github.com/harborlaw/intake/internal/intake/sync"
	"github.com/harborlaw/intake/internal/platform/errors"
)

// ErrNotFound indicates a requested index entry is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "index entry not found")

// Entry is one conversation as the firm sees it. The snapshot columns mirror
// the engine's last applied sync event; the admin fields belong to the index
// alone and never flow back to the conversation.
type Entry struct {
	ConversationID string
	FirmID         string
	StoredVersion  uint64

	Phase           string
	ConflictStatus  string
	NeedsFollowUp   bool
	Secured         bool
	ContactName     string
	ContactEmail    string
	GoalsCompleted  int
	GoalsTotal      int
	MessageCount    int
	Deleted         bool
	TerminateReason string
	HandoffRequired bool
	UpdatedAt       int64

	Admin AdminFields
}

// AdminFields are firm-staff triage annotations owned by the index.
type AdminFields struct {
	Assignee      string
	Priority      string
	Tags          []string
	InternalNotes string
}

// Page is one page of index entries.
type Page struct {
	Entries       []Entry
	NextPageToken string
}

// Store persists the conversation index.
type Store interface {
	// ApplyEvent folds a sync event into the index. It reports false when
	// the event is stale and was silently discarded.
	ApplyEvent(ctx context.Context, evt sync.Event) (bool, error)
	GetEntry(ctx context.Context, firmID string, conversationID string) (Entry, error)
	ListEntries(ctx context.Context, firmID string, pageSize int, pageToken string) (Page, error)
	UpdateAdminFields(ctx context.Context, firmID string, conversationID string, fields AdminFields) error
}

// Package storage defines the persistence interfaces for intake
// conversations, their message transcripts, and the sync outbox.
package storage

import (
	"context"
	"time"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrVersionConflict indicates a commit raced another writer. The caller's
// view of the conversation is stale and nothing was written.
var ErrVersionConflict = errors.New(errors.CodeIntakeCommitFailed, "conversation version conflict")

// OutboxEvent is one sync event awaiting delivery to the index. Events are
// keyed by (conversation, version) so re-enqueueing the same commit is a
// no-op.
type OutboxEvent struct {
	ConversationID string
	Version        uint64
	Payload        []byte
	EnqueuedAt     time.Time
}

// OutboxRow is a claimed outbox entry handed to the forwarder.
type OutboxRow struct {
	ConversationID string
	Version        uint64
	Payload        []byte
	AttemptCount   int
}

// Commit is one atomic conversation mutation: the updated state, any
// messages appended by the operation, and the sync event announcing it.
// Either everything lands or nothing does.
type Commit struct {
	Conversation domain.Conversation
	// ExpectedVersion is the version the caller loaded. The store rejects
	// the commit with ErrVersionConflict when the stored version moved.
	ExpectedVersion uint64
	NewMessages     []domain.Message
	Event           *OutboxEvent
}

// ConversationStore persists authoritative conversation state.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv domain.Conversation, messages []domain.Message, event OutboxEvent) error
	GetConversation(ctx context.Context, conversationID string) (domain.Conversation, error)
	GetConversationByTokenHash(ctx context.Context, firmID string, tokenHash string) (domain.Conversation, error)
	CommitConversation(ctx context.Context, commit Commit) error
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
}

// OutboxStore drains the sync outbox with at-least-once semantics.
type OutboxStore interface {
	ClaimDueOutboxRows(ctx context.Context, now time.Time, limit int) ([]OutboxRow, error)
	MarkOutboxRetry(ctx context.Context, row OutboxRow, now time.Time, lastError string) error
	CompleteOutboxRow(ctx context.Context, row OutboxRow) error
}

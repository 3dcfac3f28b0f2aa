package sqlite

import (
	"context"
	"testing"
	"time"
)

func TestOutboxClaimRetryComplete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := newStoredConversation(t, "conv-1")
	if err := store.CreateConversation(ctx, conv, nil, creationEvent(conv)); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := storedNow().Add(time.Second)
	claimed, err := store.ClaimDueOutboxRows(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ConversationID != "conv-1" || claimed[0].Version != 1 {
		t.Fatalf("claimed = %+v", claimed)
	}

	// A claimed row is invisible until its lease expires.
	again, err := store.ClaimDueOutboxRows(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no claimable rows, got %d", len(again))
	}

	if err := store.MarkOutboxRetry(ctx, claimed[0], now, "index unavailable"); err != nil {
		t.Fatalf("mark retry: %v", err)
	}

	// Not due yet: the first retry backs off one second.
	early, err := store.ClaimDueOutboxRows(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim early: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("expected backoff to defer the row, got %d rows", len(early))
	}

	due, err := store.ClaimDueOutboxRows(ctx, now.Add(2*time.Second), 10)
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(due) != 1 || due[0].AttemptCount != 1 {
		t.Fatalf("due = %+v", due)
	}

	if err := store.CompleteOutboxRow(ctx, due[0]); err != nil {
		t.Fatalf("complete: %v", err)
	}
	empty, err := store.ClaimDueOutboxRows(ctx, now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("claim after complete: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(empty))
	}
}

func TestOutboxLeaseExpiryReclaims(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := newStoredConversation(t, "conv-1")
	if err := store.CreateConversation(ctx, conv, nil, creationEvent(conv)); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := storedNow().Add(time.Second)
	claimed, err := store.ClaimDueOutboxRows(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed = %+v", claimed)
	}

	// A crashed worker's claim becomes visible again after the lease window.
	reclaimed, err := store.ClaimDueOutboxRows(ctx, now.Add(outboxProcessingLease+time.Second), 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].Version != 1 {
		t.Fatalf("reclaimed = %+v", reclaimed)
	}
}

func TestOutboxDeadLetterAfterThreshold(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := newStoredConversation(t, "conv-1")
	if err := store.CreateConversation(ctx, conv, nil, creationEvent(conv)); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := storedNow()
	for attempt := 0; attempt < outboxDeadLetterThreshold; attempt++ {
		now = now.Add(10 * time.Minute)
		claimed, err := store.ClaimDueOutboxRows(ctx, now, 10)
		if err != nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		if len(claimed) != 1 {
			t.Fatalf("claim attempt %d: claimed = %+v", attempt, claimed)
		}
		if err := store.MarkOutboxRetry(ctx, claimed[0], now, "still failing"); err != nil {
			t.Fatalf("retry attempt %d: %v", attempt, err)
		}
	}

	// Dead rows never come due again on their own.
	claimed, err := store.ClaimDueOutboxRows(ctx, now.Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("claim dead: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected dead row to stay parked, got %+v", claimed)
	}
}

func TestOutboxEnqueueIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	conv := newStoredConversation(t, "conv-1")
	if err := store.CreateConversation(ctx, conv, nil, creationEvent(conv)); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Re-enqueueing the same (conversation, version) pair is a no-op.
	tx, err := store.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := enqueueOutboxTx(ctx, tx, creationEvent(conv)); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	claimed, err := store.ClaimDueOutboxRows(ctx, storedNow().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected a single outbox row, got %d", len(claimed))
	}
}

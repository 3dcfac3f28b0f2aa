package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harborlaw/intake/internal/intake/storage"
)

const (
	outboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute
)

func enqueueOutboxTx(ctx context.Context, tx *sql.Tx, event storage.OutboxEvent) error {
	enqueuedAt := event.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	const enqueueSQL = `
INSERT INTO sync_outbox (
    conversation_id, do_version, payload, status, attempt_count, next_attempt_at, last_error, updated_at
) VALUES (?, ?, ?, 'pending', 0, ?, '', ?)
ON CONFLICT(conversation_id, do_version) DO NOTHING
`
	if _, err := tx.ExecContext(
		ctx,
		enqueueSQL,
		event.ConversationID,
		int64(event.Version),
		string(event.Payload),
		toMillis(enqueuedAt),
		toMillis(enqueuedAt),
	); err != nil {
		return fmt.Errorf("enqueue sync outbox: %w", err)
	}
	return nil
}

// ClaimDueOutboxRows claims up to limit due rows for delivery. Rows stuck in
// processing past the lease are reclaimed, which is where the at-least-once
// guarantee comes from.
func (s *Store) ClaimDueOutboxRows(ctx context.Context, now time.Time, limit int) ([]storage.OutboxRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return []storage.OutboxRow{}, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim tx: %w", err)
	}
	defer tx.Rollback()

	staleBefore := now.Add(-outboxProcessingLease)
	rows, err := tx.QueryContext(
		ctx,
		`SELECT conversation_id, do_version, payload, attempt_count
		 FROM sync_outbox
		 WHERE (
			 status IN ('pending', 'failed') AND next_attempt_at <= ?
		 ) OR (
			 status = 'processing' AND updated_at <= ?
		 )
		 ORDER BY next_attempt_at, do_version
		 LIMIT ?`,
		toMillis(now),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox rows: %w", err)
	}
	defer rows.Close()

	candidates := make([]storage.OutboxRow, 0, limit)
	for rows.Next() {
		var (
			row     storage.OutboxRow
			version int64
			payload string
		)
		if err := rows.Scan(&row.ConversationID, &version, &payload, &row.AttemptCount); err != nil {
			return nil, fmt.Errorf("scan due outbox row: %w", err)
		}
		row.Version = uint64(version)
		row.Payload = []byte(payload)
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due outbox rows: %w", err)
	}

	claimed := make([]storage.OutboxRow, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := tx.ExecContext(
			ctx,
			`UPDATE sync_outbox
			 SET status = 'processing', updated_at = ?
			 WHERE conversation_id = ? AND do_version = ?
			   AND (
			   	(status IN ('pending', 'failed') AND next_attempt_at <= ?)
			   	OR (status = 'processing' AND updated_at <= ?)
			   )`,
			toMillis(now),
			candidate.ConversationID,
			int64(candidate.Version),
			toMillis(now),
			toMillis(staleBefore),
		)
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %s/%d: %w", candidate.ConversationID, candidate.Version, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim outbox row rows affected %s/%d: %w", candidate.ConversationID, candidate.Version, err)
		}
		if affected == 1 {
			claimed = append(claimed, candidate)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim tx: %w", err)
	}
	return claimed, nil
}

// MarkOutboxRetry requeues a claimed row after a delivery failure, moving it
// to dead once the attempt threshold is crossed.
func (s *Store) MarkOutboxRetry(ctx context.Context, row storage.OutboxRow, now time.Time, lastError string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	attempt := row.AttemptCount + 1
	status := "failed"
	if attempt >= outboxDeadLetterThreshold {
		status = "dead"
	}
	nextAttempt := now.Add(outboxRetryBackoff(attempt))

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE sync_outbox
		 SET status = ?,
		     attempt_count = ?,
		     next_attempt_at = ?,
		     last_error = ?,
		     updated_at = ?
		 WHERE conversation_id = ? AND do_version = ? AND status = 'processing'`,
		status,
		attempt,
		toMillis(nextAttempt),
		lastError,
		toMillis(now),
		row.ConversationID,
		int64(row.Version),
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry for row %s/%d: %w", row.ConversationID, row.Version, err)
	}
	return ensureOutboxSingleRow(result, row, "mark outbox retry for row", "updated")
}

// CompleteOutboxRow removes a delivered row from the outbox.
func (s *Store) CompleteOutboxRow(ctx context.Context, row storage.OutboxRow) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM sync_outbox
		 WHERE conversation_id = ? AND do_version = ? AND status = 'processing'`,
		row.ConversationID,
		int64(row.Version),
	)
	if err != nil {
		return fmt.Errorf("complete outbox row %s/%d: %w", row.ConversationID, row.Version, err)
	}
	return ensureOutboxSingleRow(result, row, "complete outbox row", "deleted")
}

func ensureOutboxSingleRow(result sql.Result, row storage.OutboxRow, operation, verb string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected %s/%d: %w", operation, row.ConversationID, row.Version, err)
	}
	if affected != 1 {
		return fmt.Errorf("%s %s/%d: expected 1 row %s, got %d", operation, row.ConversationID, row.Version, verb, affected)
	}
	return nil
}

func outboxRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := time.Second << (attempt - 1)
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}

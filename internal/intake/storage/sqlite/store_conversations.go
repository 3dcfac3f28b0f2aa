package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/storage"
)

const conversationColumns = `id, firm_id, user_id, phase, secured, allowed_identity, resume_token_hash,
identity_json, conflict_status, conflict_confidence, conflict_checked_fields_json, conflict_details,
conflict_needs_follow_up, goals_json, do_version, deleted, terminate_reason, handoff_required,
created_at, updated_at`

// goalRecord is the JSON shape goals take inside the goals_json column.
type goalRecord struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Completed   bool   `json:"completed"`
	Source      string `json:"source"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
}

func goalsToJSON(goals []domain.Goal) (string, error) {
	records := make([]goalRecord, 0, len(goals))
	for _, g := range goals {
		record := goalRecord{
			ID:          g.ID,
			Description: g.Description,
			Priority:    domain.GoalPriorityLabel(g.Priority),
			Category:    g.Category,
			Completed:   g.Completed,
			Source:      domain.GoalSourceLabel(g.Source),
		}
		if g.CompletedAt != nil {
			millis := toMillis(*g.CompletedAt)
			record.CompletedAt = &millis
		}
		records = append(records, record)
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal goals: %w", err)
	}
	return string(encoded), nil
}

func goalsFromJSON(encoded string) ([]domain.Goal, error) {
	var records []goalRecord
	if err := json.Unmarshal([]byte(encoded), &records); err != nil {
		return nil, fmt.Errorf("unmarshal goals: %w", err)
	}
	goals := make([]domain.Goal, 0, len(records))
	for _, record := range records {
		g := domain.Goal{
			ID:          record.ID,
			Description: record.Description,
			Priority:    domain.GoalPriorityFromLabel(record.Priority),
			Category:    record.Category,
			Completed:   record.Completed,
			Source:      domain.GoalSourceFromLabel(record.Source),
		}
		if record.CompletedAt != nil {
			at := fromMillis(*record.CompletedAt)
			g.CompletedAt = &at
		}
		goals = append(goals, g)
	}
	return goals, nil
}

type conversationRow struct {
	conv domain.Conversation

	identityJSON  string
	checkedJSON   string
	goalsJSON     string
	phase         string
	conflictLabel string
	secured       int
	needsFollowUp int
	deleted       int
	handoff       int
	doVersion     int64
	createdAt     int64
	updatedAt     int64
}

func scanConversation(scan func(dest ...any) error) (domain.Conversation, error) {
	var row conversationRow
	err := scan(
		&row.conv.ID,
		&row.conv.FirmID,
		&row.conv.UserID,
		&row.phase,
		&row.secured,
		&row.conv.AllowedIdentity,
		&row.conv.ResumeTokenHash,
		&row.identityJSON,
		&row.conflictLabel,
		&row.conv.ConflictCheck.Confidence,
		&row.checkedJSON,
		&row.conv.ConflictCheck.Details,
		&row.needsFollowUp,
		&row.goalsJSON,
		&row.doVersion,
		&row.deleted,
		&row.conv.TerminateReason,
		&row.handoff,
		&row.createdAt,
		&row.updatedAt,
	)
	if err != nil {
		return domain.Conversation{}, err
	}

	conv := row.conv
	conv.Phase = domain.PhaseFromLabel(row.phase)
	conv.Secured = row.secured != 0
	conv.ConflictCheck.Status = domain.ConflictStatusFromLabel(row.conflictLabel)
	conv.ConflictCheck.NeedsFollowUp = row.needsFollowUp != 0
	conv.Deleted = row.deleted != 0
	conv.HandoffRequired = row.handoff != 0
	conv.DoVersion = uint64(row.doVersion)
	conv.CreatedAt = fromMillis(row.createdAt)
	conv.UpdatedAt = fromMillis(row.updatedAt)

	conv.Identity = domain.IdentitySnapshot{}
	if err := json.Unmarshal([]byte(row.identityJSON), (*map[string]string)(&conv.Identity)); err != nil {
		return domain.Conversation{}, fmt.Errorf("unmarshal identity snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(row.checkedJSON), &conv.ConflictCheck.CheckedFields); err != nil {
		return domain.Conversation{}, fmt.Errorf("unmarshal checked fields: %w", err)
	}
	conv.Goals, err = goalsFromJSON(row.goalsJSON)
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func conversationArgs(conv domain.Conversation) ([]any, error) {
	identityJSON, err := json.Marshal(map[string]string(conv.Identity))
	if err != nil {
		return nil, fmt.Errorf("marshal identity snapshot: %w", err)
	}
	checkedFields := conv.ConflictCheck.CheckedFields
	if checkedFields == nil {
		checkedFields = []string{}
	}
	checkedJSON, err := json.Marshal(checkedFields)
	if err != nil {
		return nil, fmt.Errorf("marshal checked fields: %w", err)
	}
	goalsJSON, err := goalsToJSON(conv.Goals)
	if err != nil {
		return nil, err
	}

	return []any{
		conv.ID,
		conv.FirmID,
		conv.UserID,
		conv.Phase.Label(),
		boolToInt(conv.Secured),
		conv.AllowedIdentity,
		conv.ResumeTokenHash,
		string(identityJSON),
		domain.ConflictStatusLabel(conv.ConflictCheck.Status),
		conv.ConflictCheck.Confidence,
		string(checkedJSON),
		conv.ConflictCheck.Details,
		boolToInt(conv.ConflictCheck.NeedsFollowUp),
		goalsJSON,
		int64(conv.DoVersion),
		boolToInt(conv.Deleted),
		conv.TerminateReason,
		boolToInt(conv.HandoffRequired),
		toMillis(conv.CreatedAt),
		toMillis(conv.UpdatedAt),
	}, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// CreateConversation persists a new conversation, its seed messages, and the
// creation sync event in one transaction.
func (s *Store) CreateConversation(ctx context.Context, conv domain.Conversation, messages []domain.Message, event storage.OutboxEvent) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	args, err := conversationArgs(conv)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	const insertSQL = `
INSERT INTO conversations (` + conversationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	if err := appendMessagesTx(ctx, tx, conv.ID, 0, messages); err != nil {
		return err
	}
	if err := enqueueOutboxTx(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

// GetConversation loads one conversation by ID.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Conversation{}, fmt.Errorf("storage is not configured")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return domain.Conversation{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`,
		conversationID,
	)
	conv, err := scanConversation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// GetConversationByTokenHash loads the conversation a resume token points at,
// scoped to one firm.
func (s *Store) GetConversationByTokenHash(ctx context.Context, firmID string, tokenHash string) (domain.Conversation, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Conversation{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(firmID) == "" || strings.TrimSpace(tokenHash) == "" {
		return domain.Conversation{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE firm_id = ? AND resume_token_hash = ?`,
		firmID,
		tokenHash,
	)
	conv, err := scanConversation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation by token hash: %w", err)
	}
	return conv, nil
}

// CommitConversation applies one mutation atomically: the state update, any
// appended messages, and the sync event. The stored version must still match
// commit.ExpectedVersion or nothing is written.
func (s *Store) CommitConversation(ctx context.Context, commit storage.Commit) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	conv := commit.Conversation
	if conv.DoVersion != commit.ExpectedVersion+1 {
		return fmt.Errorf("commit version %d does not follow expected version %d", conv.DoVersion, commit.ExpectedVersion)
	}
	args, err := conversationArgs(conv)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback()

	const updateSQL = `
UPDATE conversations SET
    id = ?, firm_id = ?, user_id = ?, phase = ?, secured = ?, allowed_identity = ?, resume_token_hash = ?,
    identity_json = ?, conflict_status = ?, conflict_confidence = ?, conflict_checked_fields_json = ?,
    conflict_details = ?, conflict_needs_follow_up = ?, goals_json = ?, do_version = ?, deleted = ?,
    terminate_reason = ?, handoff_required = ?, created_at = ?, updated_at = ?
WHERE id = ? AND do_version = ?
`
	result, err := tx.ExecContext(ctx, updateSQL, append(args, conv.ID, int64(commit.ExpectedVersion))...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conversation rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conv.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check conversation existence: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrVersionConflict
	}

	if len(commit.NewMessages) > 0 {
		var lastSeq int64
		err := tx.QueryRowContext(
			ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM conversation_messages WHERE conversation_id = ?`,
			conv.ID,
		).Scan(&lastSeq)
		if err != nil {
			return fmt.Errorf("read last message seq: %w", err)
		}
		if err := appendMessagesTx(ctx, tx, conv.ID, lastSeq, commit.NewMessages); err != nil {
			return err
		}
	}

	if commit.Event != nil {
		if err := enqueueOutboxTx(ctx, tx, *commit.Event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func appendMessagesTx(ctx context.Context, tx *sql.Tx, conversationID string, lastSeq int64, messages []domain.Message) error {
	const insertSQL = `
INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at)
VALUES (?, ?, ?, ?, ?)
`
	for i, msg := range messages {
		seq := lastSeq + int64(i) + 1
		if _, err := tx.ExecContext(
			ctx,
			insertSQL,
			conversationID,
			seq,
			domain.MessageRoleLabel(msg.Role),
			msg.Content,
			toMillis(msg.CreatedAt),
		); err != nil {
			return fmt.Errorf("append message %d: %w", seq, err)
		}
	}
	return nil
}

// ListMessages returns the full transcript in append order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	return s.listMessages(ctx, conversationID, 0)
}

// ListRecentMessages returns the last limit messages in chronological order.
func (s *Store) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	return s.listMessages(ctx, conversationID, limit)
}

// CountMessages reports the transcript length.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ?`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *Store) listMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `SELECT role, content, created_at FROM conversation_messages WHERE conversation_id = ? ORDER BY seq ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `SELECT role, content, created_at FROM (
			SELECT seq, role, content, created_at FROM conversation_messages
			WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var (
			role      string
			content   string
			createdAt int64
		)
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, domain.Message{
			Role:      domain.MessageRoleFromLabel(role),
			Content:   content,
			CreatedAt: fromMillis(createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

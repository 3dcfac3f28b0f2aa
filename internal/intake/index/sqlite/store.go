// Package sqlite implements the conversation index over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/index"
	"github.com/harborlaw/intake/internal/intake/index/sqlite/migrations"
	"github.com/harborlaw/intake/internal/intake/sync"
	"github.com/harborlaw/intake/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store implements the conversation index over SQLite. The index lives in
// its own database file so the firm-facing read path never contends with
// engine commits.
type Store struct {
	sqlDB *sql.DB
}

// Open opens an index SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ApplyEvent folds a sync event into the index, keyed by conversation and
// guarded by stored_version. Stale and duplicate events affect zero rows and
// are reported as discarded, never as errors. Admin fields are left alone.
func (s *Store) ApplyEvent(ctx context.Context, evt sync.Event) (bool, error) {
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if evt.ConversationID == "" || evt.Version == 0 {
		return false, fmt.Errorf("sync event missing conversation id or version")
	}

	const applySQL = `
INSERT INTO conversation_index (
    conversation_id, firm_id, stored_version, phase, conflict_status, needs_follow_up, secured,
    contact_name, contact_email, goals_completed, goals_total, message_count, deleted,
    terminate_reason, handoff_required, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
    firm_id = excluded.firm_id,
    stored_version = excluded.stored_version,
    phase = excluded.phase,
    conflict_status = excluded.conflict_status,
    needs_follow_up = excluded.needs_follow_up,
    secured = excluded.secured,
    contact_name = excluded.contact_name,
    contact_email = excluded.contact_email,
    goals_completed = excluded.goals_completed,
    goals_total = excluded.goals_total,
    message_count = excluded.message_count,
    deleted = excluded.deleted,
    terminate_reason = excluded.terminate_reason,
    handoff_required = excluded.handoff_required,
    updated_at = excluded.updated_at
WHERE excluded.stored_version > conversation_index.stored_version
`
	result, err := s.sqlDB.ExecContext(
		ctx,
		applySQL,
		evt.ConversationID,
		evt.FirmID,
		int64(evt.Version),
		evt.Phase,
		evt.ConflictStatus,
		boolToInt(evt.NeedsFollowUp),
		boolToInt(evt.Secured),
		evt.Identity[domain.FieldFullName],
		evt.Identity[domain.FieldEmail],
		evt.GoalsCompleted,
		evt.GoalsTotal,
		evt.MessageCount,
		boolToInt(evt.Deleted),
		evt.TerminateReason,
		boolToInt(evt.HandoffRequired),
		evt.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("apply sync event %s/%d: %w", evt.ConversationID, evt.Version, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply sync event rows affected %s/%d: %w", evt.ConversationID, evt.Version, err)
	}
	return affected == 1, nil
}

const entryColumns = `conversation_id, firm_id, stored_version, phase, conflict_status, needs_follow_up,
secured, contact_name, contact_email, goals_completed, goals_total, message_count, deleted,
terminate_reason, handoff_required, updated_at, assignee, priority, tags_json, internal_notes`

func scanEntry(scan func(dest ...any) error) (index.Entry, error) {
	var (
		entry         index.Entry
		storedVersion int64
		needsFollowUp int
		secured       int
		deleted       int
		handoff       int
		tagsJSON      string
	)
	err := scan(
		&entry.ConversationID,
		&entry.FirmID,
		&storedVersion,
		&entry.Phase,
		&entry.ConflictStatus,
		&needsFollowUp,
		&secured,
		&entry.ContactName,
		&entry.ContactEmail,
		&entry.GoalsCompleted,
		&entry.GoalsTotal,
		&entry.MessageCount,
		&deleted,
		&entry.TerminateReason,
		&handoff,
		&entry.UpdatedAt,
		&entry.Admin.Assignee,
		&entry.Admin.Priority,
		&tagsJSON,
		&entry.Admin.InternalNotes,
	)
	if err != nil {
		return index.Entry{}, err
	}
	entry.StoredVersion = uint64(storedVersion)
	entry.NeedsFollowUp = needsFollowUp != 0
	entry.Secured = secured != 0
	entry.Deleted = deleted != 0
	entry.HandoffRequired = handoff != 0
	if err := json.Unmarshal([]byte(tagsJSON), &entry.Admin.Tags); err != nil {
		return index.Entry{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	return entry, nil
}

// GetEntry loads one index entry scoped to a firm.
func (s *Store) GetEntry(ctx context.Context, firmID string, conversationID string) (index.Entry, error) {
	if s == nil || s.sqlDB == nil {
		return index.Entry{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM conversation_index WHERE firm_id = ? AND conversation_id = ?`,
		firmID,
		conversationID,
	)
	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Entry{}, index.ErrNotFound
	}
	if err != nil {
		return index.Entry{}, fmt.Errorf("get index entry: %w", err)
	}
	return entry, nil
}

// ListEntries pages through a firm's conversations in stable ID order.
func (s *Store) ListEntries(ctx context.Context, firmID string, pageSize int, pageToken string) (index.Page, error) {
	if s == nil || s.sqlDB == nil {
		return index.Page{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+entryColumns+`
		 FROM conversation_index
		 WHERE firm_id = ? AND conversation_id > ?
		 ORDER BY conversation_id ASC
		 LIMIT ?`,
		firmID,
		pageToken,
		pageSize+1,
	)
	if err != nil {
		return index.Page{}, fmt.Errorf("list index entries: %w", err)
	}
	defer rows.Close()

	entries := make([]index.Entry, 0, pageSize)
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return index.Page{}, fmt.Errorf("scan index entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return index.Page{}, fmt.Errorf("iterate index entries: %w", err)
	}

	page := index.Page{Entries: entries}
	if len(entries) > pageSize {
		page.Entries = entries[:pageSize]
		page.NextPageToken = entries[pageSize-1].ConversationID
	}
	return page, nil
}

// UpdateAdminFields writes firm-staff triage annotations. Snapshot columns
// are never touched here, so admin edits survive any sync event replay.
func (s *Store) UpdateAdminFields(ctx context.Context, firmID string, conversationID string, fields index.AdminFields) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tags := fields.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE conversation_index
		 SET assignee = ?, priority = ?, tags_json = ?, internal_notes = ?
		 WHERE firm_id = ? AND conversation_id = ?`,
		fields.Assignee,
		fields.Priority,
		string(tagsJSON),
		fields.InternalNotes,
		firmID,
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("update admin fields: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update admin fields rows affected: %w", err)
	}
	if affected == 0 {
		return index.ErrNotFound
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

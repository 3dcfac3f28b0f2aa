package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/index"
	"github.com/harborlaw/intake/internal/intake/sync"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func testEvent(conversationID string, version uint64) sync.Event {
	return sync.Event{
		ConversationID: conversationID,
		FirmID:         "firm-1",
		Version:        version,
		Phase:          "pre_login",
		ConflictStatus: "pending",
		Identity: map[string]string{
			domain.FieldFullName: "Dana Velez",
			domain.FieldEmail:    "dana@example.com",
		},
		GoalsTotal: 4,
		UpdatedAt:  1770000000000 + int64(version),
	}
}

func TestApplyEventIsVersionGated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	applied, err := store.ApplyEvent(ctx, testEvent("conv-1", 2))
	if err != nil {
		t.Fatalf("apply v2: %v", err)
	}
	if !applied {
		t.Fatal("expected v2 to apply")
	}

	// Out-of-order and duplicate events are discarded without error.
	for _, version := range []uint64{1, 2} {
		applied, err := store.ApplyEvent(ctx, testEvent("conv-1", version))
		if err != nil {
			t.Fatalf("apply v%d: %v", version, err)
		}
		if applied {
			t.Fatalf("expected v%d to be discarded as stale", version)
		}
	}

	newer := testEvent("conv-1", 3)
	newer.Phase = "login_suggested"
	applied, err = store.ApplyEvent(ctx, newer)
	if err != nil {
		t.Fatalf("apply v3: %v", err)
	}
	if !applied {
		t.Fatal("expected v3 to apply")
	}

	entry, err := store.GetEntry(ctx, "firm-1", "conv-1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.StoredVersion != 3 || entry.Phase != "login_suggested" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.ContactName != "Dana Velez" || entry.ContactEmail != "dana@example.com" {
		t.Fatalf("contact fields = %q %q", entry.ContactName, entry.ContactEmail)
	}
}

func TestAdminFieldsSurviveEventReplay(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.ApplyEvent(ctx, testEvent("conv-1", 1)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	fields := index.AdminFields{
		Assignee:      "paralegal-7",
		Priority:      "high",
		Tags:          []string{"auto-accident", "follow-up"},
		InternalNotes: "possible conflict with Smith file",
	}
	if err := store.UpdateAdminFields(ctx, "firm-1", "conv-1", fields); err != nil {
		t.Fatalf("update admin fields: %v", err)
	}

	if _, err := store.ApplyEvent(ctx, testEvent("conv-1", 2)); err != nil {
		t.Fatalf("apply v2: %v", err)
	}

	entry, err := store.GetEntry(ctx, "firm-1", "conv-1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.StoredVersion != 2 {
		t.Fatalf("stored version = %d, want 2", entry.StoredVersion)
	}
	if entry.Admin.Assignee != "paralegal-7" || len(entry.Admin.Tags) != 2 {
		t.Fatalf("admin fields lost: %+v", entry.Admin)
	}
}

func TestUpdateAdminFieldsMissingEntry(t *testing.T) {
	store := openTestStore(t)

	err := store.UpdateAdminFields(context.Background(), "firm-1", "missing", index.AdminFields{Assignee: "x"})
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEntryScopedToFirm(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.ApplyEvent(ctx, testEvent("conv-1", 1)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	_, err := store.GetEntry(ctx, "firm-2", "conv-1")
	if !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other firm, got %v", err)
	}
}

func TestListEntriesPaginates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		evt := testEvent(fmt.Sprintf("conv-%d", i), 1)
		if _, err := store.ApplyEvent(ctx, evt); err != nil {
			t.Fatalf("apply conv-%d: %v", i, err)
		}
	}
	other := testEvent("other-conv", 1)
	other.FirmID = "firm-2"
	if _, err := store.ApplyEvent(ctx, other); err != nil {
		t.Fatalf("apply other firm: %v", err)
	}

	first, err := store.ListEntries(ctx, "firm-1", 3, "")
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Entries) != 3 || first.NextPageToken == "" {
		t.Fatalf("first page = %d entries token %q", len(first.Entries), first.NextPageToken)
	}

	second, err := store.ListEntries(ctx, "firm-1", 3, first.NextPageToken)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Entries) != 2 || second.NextPageToken != "" {
		t.Fatalf("second page = %d entries token %q", len(second.Entries), second.NextPageToken)
	}
	for _, entry := range append(first.Entries, second.Entries...) {
		if entry.FirmID != "firm-1" {
			t.Fatalf("cross-firm entry leaked: %+v", entry)
		}
	}
}

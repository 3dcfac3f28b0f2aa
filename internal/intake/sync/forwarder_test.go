package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/harborlaw/intake/internal/intake/domain"
	"github.com/harborlaw/intake/internal/intake/storage"
)

type fakeOutbox struct {
	rows      []storage.OutboxRow
	retried   []storage.OutboxRow
	completed []storage.OutboxRow
}

func (f *fakeOutbox) ClaimDueOutboxRows(ctx context.Context, now time.Time, limit int) ([]storage.OutboxRow, error) {
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeOutbox) MarkOutboxRetry(ctx context.Context, row storage.OutboxRow, now time.Time, lastError string) error {
	f.retried = append(f.retried, row)
	return nil
}

func (f *fakeOutbox) CompleteOutboxRow(ctx context.Context, row storage.OutboxRow) error {
	f.completed = append(f.completed, row)
	return nil
}

type capturePublisher struct {
	published []*message.Message
	fail      bool
}

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	if p.fail {
		return errors.New("stream unavailable")
	}
	if topic != Topic {
		return errors.New("unexpected topic " + topic)
	}
	p.published = append(p.published, messages...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func testEventPayload(t *testing.T, conversationID string, version uint64) []byte {
	t.Helper()
	payload, err := Event{
		ConversationID: conversationID,
		FirmID:         "firm-1",
		Version:        version,
		Phase:          "pre_login",
		ConflictStatus: "pending",
	}.Encode()
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	return payload
}

func TestForwarderPublishesAndCompletes(t *testing.T) {
	outbox := &fakeOutbox{rows: []storage.OutboxRow{
		{ConversationID: "conv-1", Version: 1, Payload: testEventPayload(t, "conv-1", 1)},
		{ConversationID: "conv-1", Version: 2, Payload: testEventPayload(t, "conv-1", 2)},
	}}
	publisher := &capturePublisher{}
	forwarder := NewForwarder(outbox, publisher, time.Second, 32, zerolog.Nop())

	processed, err := forwarder.Drain(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("published = %d, want 2", len(publisher.published))
	}
	if len(outbox.completed) != 2 || len(outbox.retried) != 0 {
		t.Fatalf("completed = %d retried = %d", len(outbox.completed), len(outbox.retried))
	}

	msg := publisher.published[1]
	if msg.Metadata.Get(MetadataConversationID) != "conv-1" || msg.Metadata.Get(MetadataVersion) != "2" {
		t.Fatalf("metadata = %v", msg.Metadata)
	}
	evt, err := DecodeEvent(msg.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Version != 2 {
		t.Fatalf("version = %d, want 2", evt.Version)
	}
}

func TestForwarderRetriesFailedPublishes(t *testing.T) {
	outbox := &fakeOutbox{rows: []storage.OutboxRow{
		{ConversationID: "conv-1", Version: 1, Payload: testEventPayload(t, "conv-1", 1)},
	}}
	publisher := &capturePublisher{fail: true}
	forwarder := NewForwarder(outbox, publisher, time.Second, 32, zerolog.Nop())

	processed, err := forwarder.Drain(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if len(outbox.retried) != 1 || len(outbox.completed) != 0 {
		t.Fatalf("retried = %d completed = %d", len(outbox.retried), len(outbox.completed))
	}
}

func TestNewEventSnapshotsConversation(t *testing.T) {
	conv, err := domain.CreateConversation(domain.CreateConversationInput{
		FirmID:          "firm-1",
		ResumeTokenHash: "hash-1",
	}, func() time.Time {
		return time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	}, func() (string, error) { return "conv-1", nil })
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	conv.Identity.Merge(map[string]string{domain.FieldFullName: "Dana Velez"})

	evt := NewEvent(conv, 3)
	if evt.ConversationID != "conv-1" || evt.FirmID != "firm-1" || evt.Version != 1 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Phase != "pre_login" || evt.ConflictStatus != "pending" {
		t.Fatalf("unexpected labels %+v", evt)
	}
	if evt.GoalsTotal != len(domain.BaseGoals()) || evt.GoalsCompleted != 0 {
		t.Fatalf("goals = %d/%d", evt.GoalsCompleted, evt.GoalsTotal)
	}
	if evt.MessageCount != 3 {
		t.Fatalf("message count = %d", evt.MessageCount)
	}
	if evt.Identity[domain.FieldFullName] != "Dana Velez" {
		t.Fatalf("identity = %v", evt.Identity)
	}
}

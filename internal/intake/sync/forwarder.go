package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/harborlaw/intake/internal/intake/storage"
)

// MetadataConversationID carries the conversation ID on published messages.
const MetadataConversationID = "conversation_id"

// MetadataVersion carries the snapshot version on published messages.
const MetadataVersion = "version"

// Forwarder drains the sync outbox onto the stream. Delivery is
// at-least-once: rows are only completed after a successful publish, and
// failed publishes requeue with backoff.
type Forwarder struct {
	outbox    storage.OutboxStore
	publisher message.Publisher
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

// NewForwarder builds an outbox forwarder.
func NewForwarder(outbox storage.OutboxStore, publisher message.Publisher, interval time.Duration, batchSize int, logger zerolog.Logger) *Forwarder {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Forwarder{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run forwards outbox rows until the context is canceled.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := f.Drain(ctx, time.Now().UTC()); err != nil {
				f.logger.Error().Err(err).Msg("drain sync outbox")
			}
		}
	}
}

// Drain runs one forwarding pass and reports how many rows it processed.
func (f *Forwarder) Drain(ctx context.Context, now time.Time) (int, error) {
	rows, err := f.outbox.ClaimDueOutboxRows(ctx, now, f.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		msg := message.NewMessage(watermill.NewUUID(), row.Payload)
		msg.Metadata.Set(MetadataConversationID, row.ConversationID)
		msg.Metadata.Set(MetadataVersion, strconv.FormatUint(row.Version, 10))

		if publishErr := f.publisher.Publish(Topic, msg); publishErr != nil {
			f.logger.Warn().
				Err(publishErr).
				Str("conversation_id", row.ConversationID).
				Uint64("version", row.Version).
				Msg("publish sync event failed")
			if err := f.outbox.MarkOutboxRetry(ctx, row, now, publishErr.Error()); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if err := f.outbox.CompleteOutboxRow(ctx, row); err != nil {
			return processed, err
		}
		f.logger.Debug().
			Str("conversation_id", row.ConversationID).
			Uint64("version", row.Version).
			Msg("sync event published")
		processed++
	}
	return processed, nil
}

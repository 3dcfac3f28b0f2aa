package index

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harborlaw/intake/internal/intake/sync"
)

var tracer = otel.Tracer("github.com/harborlaw/intake/internal/intake/index")

// Applier consumes the sync stream and applies events to the index store.
// Delivery is at-least-once and may arrive out of order; the store's version
// gate makes re-applies and stale events harmless.
type Applier struct {
	subscriber message.Subscriber
	store      Store
	logger     zerolog.Logger
}

// NewApplier builds a stream applier.
func NewApplier(subscriber message.Subscriber, store Store, logger zerolog.Logger) *Applier {
	return &Applier{subscriber: subscriber, store: store, logger: logger}
}

// Run applies sync events until the context is canceled.
func (a *Applier) Run(ctx context.Context) error {
	messages, err := a.subscriber.Subscribe(ctx, sync.Topic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *Applier) handle(ctx context.Context, msg *message.Message) {
	evt, err := sync.DecodeEvent(msg.Payload)
	if err != nil {
		// A payload that cannot decode will never decode. Drop it rather
		// than wedge the stream.
		a.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("drop undecodable sync event")
		msg.Ack()
		return
	}

	ctx, span := tracer.Start(ctx, "index.ApplyEvent", trace.WithAttributes(
		attribute.String("conversation_id", evt.ConversationID),
		attribute.Int64("version", int64(evt.Version)),
	))
	defer span.End()

	applied, err := a.store.ApplyEvent(ctx, evt)
	if err != nil {
		span.RecordError(err)
		a.logger.Warn().
			Err(err).
			Str("conversation_id", evt.ConversationID).
			Uint64("version", evt.Version).
			Msg("apply sync event failed, requeueing")
		msg.Nack()
		return
	}

	if !applied {
		a.logger.Debug().
			Str("conversation_id", evt.ConversationID).
			Uint64("version", evt.Version).
			Msg("stale sync event discarded")
	}
	msg.Ack()
}

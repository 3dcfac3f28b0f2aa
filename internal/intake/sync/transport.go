package sync

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Settings selects the sync transport. With an empty Addr the transport is
// in-process; setting Addr switches to Redis Streams so the engine and the
// index worker can run as separate processes.
type Settings struct {
	Addr     string `env:"INTAKE_SYNC_REDIS_ADDR"`
	Group    string `env:"INTAKE_SYNC_REDIS_GROUP" envDefault:"intake-index"`
	Consumer string `env:"INTAKE_SYNC_REDIS_CONSUMER" envDefault:"indexworker"`
}

// Transport owns the publisher/subscriber pair for the sync stream.
type Transport struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	channel    *gochannel.GoChannel
}

// NewTransport builds the sync transport from settings.
func NewTransport(settings Settings, logger zerolog.Logger) (*Transport, error) {
	wmLogger := NewWatermillLogger(logger)

	if settings.Addr == "" {
		channel := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return &Transport{publisher: channel, subscriber: channel, channel: channel}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: settings.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	publisher, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build redis publisher: %w", err)
	}

	subscriber, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: settings.Group,
		Consumer:      settings.Consumer,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build redis subscriber: %w", err)
	}

	return &Transport{publisher: publisher, subscriber: subscriber}, nil
}

// Publisher returns the sync event publisher.
func (t *Transport) Publisher() message.Publisher {
	if t == nil {
		return nil
	}
	return t.publisher
}

// Subscriber returns the sync event subscriber.
func (t *Transport) Subscriber() message.Subscriber {
	if t == nil {
		return nil
	}
	return t.subscriber
}

// Close shuts the transport down.
func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	if t.channel != nil {
		return t.channel.Close()
	}
	var firstErr error
	if t.publisher != nil {
		if err := t.publisher.Close(); err != nil {
			firstErr = err
		}
	}
	if t.subscriber != nil {
		if err := t.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

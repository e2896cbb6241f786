package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher publishes lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Config selects and configures the event transport.
type Config struct {
	// KafkaBrokers selects Kafka; empty means an in-process channel.
	KafkaBrokers  []string
	Topic         string
	ConsumerGroup string
}

// Bus publishes events to one topic and hands out subscriptions to it.
type Bus struct {
	pub   message.Publisher
	sub   message.Subscriber
	topic string
	log   zerolog.Logger

	// shared is set when pub and sub are the same gochannel.
	shared bool
}

// NewBus connects to Kafka when brokers are configured and otherwise
// creates an in-process channel bus.
func NewBus(cfg Config, log zerolog.Logger) (*Bus, error) {
	log = log.With().Str("component", "event_bus").Logger()
	wlog := NewLogger(log)

	if len(cfg.KafkaBrokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlog)
		log.Info().Str("topic", cfg.Topic).Msg("Using in-process event bus")
		return &Bus{pub: ch, sub: ch, topic: cfg.Topic, log: log, shared: true}, nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}

	sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:       cfg.KafkaBrokers,
		Unmarshaler:   kafka.DefaultMarshaler{},
		ConsumerGroup: cfg.ConsumerGroup,
	}, wlog)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create kafka subscriber: %w", err)
	}

	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.Topic).Msg("Using Kafka event bus")
	return &Bus{pub: pub, sub: sub, topic: cfg.Topic, log: log}, nil
}

// Publish sends e to the bus topic.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	if err := b.pub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	b.log.Debug().Str("event_id", e.ID).Str("event_type", string(e.Type)).Str("form_id", e.FormID).Msg("Published event")
	return nil
}

// Subscribe returns the messages of the bus topic until ctx is done. Every
// message must be acked or nacked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.sub.Subscribe(ctx, b.topic)
}

// Close shuts down the publisher and subscriber.
func (b *Bus) Close() error {
	pubErr := b.pub.Close()
	if b.shared {
		return pubErr
	}
	if err := b.sub.Close(); err != nil {
		return err
	}
	return pubErr
}

func newID() string { return uuid.NewString() }

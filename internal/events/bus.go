package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// Handler processes one lifecycle event. A returned error nacks the message
// so the transport redelivers it.
type Handler func(ctx context.Context, ev LifecycleEvent) error

// Bus carries lifecycle events in and failure alerts out.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{publisher: pub, subscriber: sub, logger: logger}
}

// NewGoChannelBus is the in-process transport used when no brokers are set.
func NewGoChannelBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewSlogLogger(logger),
	)
	return NewBus(pubSub, pubSub, logger)
}

func NewKafkaBus(brokers []string, consumerGroup string, logger *slog.Logger) (*Bus, error) {
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, errors.New("no kafka brokers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	wmLogger := watermill.NewSlogLogger(logger)

	saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaSubscriberConfig,
			ConsumerGroup:         consumerGroup,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("kafka subscriber: %w", err)
	}

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig,
		},
		wmLogger,
	)
	if err != nil {
		_ = subscriber.Close()
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return NewBus(publisher, subscriber, logger), nil
}

// PublishLifecycle validates ev and puts it on the lifecycle topic.
func (b *Bus) PublishLifecycle(ctx context.Context, ev LifecycleEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = watermill.NewULID()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataKind, string(ev.Kind))
	if ev.Subject != nil {
		msg.Metadata.Set(MetadataSubject, ev.Subject.Key())
	}
	return b.publisher.Publish(TopicLifecycle, msg)
}

// PublishAlert implements the alert sink of the engine.
func (b *Bus) PublishAlert(ctx context.Context, alert domain.FailureAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataSubject, alert.Subject.Key())
	return b.publisher.Publish(TopicAlerts, msg)
}

// Listen consumes the lifecycle topic until ctx is done. Malformed messages
// are acked and dropped since redelivery cannot fix them.
func (b *Bus) Listen(ctx context.Context, handler Handler) error {
	messages, err := b.subscriber.Subscribe(ctx, TopicLifecycle)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(ctx, msg, handler)
		}
	}
}

func (b *Bus) handle(ctx context.Context, msg *message.Message, handler Handler) {
	var ev LifecycleEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.ErrorContext(ctx, "Dropping malformed lifecycle event", "message_id", msg.UUID, "error", err)
		msg.Ack()
		return
	}
	if err := ev.Validate(); err != nil {
		b.logger.ErrorContext(ctx, "Dropping invalid lifecycle event", "message_id", msg.UUID, "error", err)
		msg.Ack()
		return
	}
	if err := handler(ctx, ev); err != nil {
		b.logger.WarnContext(ctx, "Lifecycle event handler failed", "message_id", msg.UUID, "kind", ev.Kind, "error", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

// Alerts subscribes to the alert topic.
func (b *Bus) Alerts(ctx context.Context) (<-chan domain.FailureAlert, error) {
	messages, err := b.subscriber.Subscribe(ctx, TopicAlerts)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.FailureAlert)
	go func() {
		defer close(out)
		for msg := range messages {
			var alert domain.FailureAlert
			if err := json.Unmarshal(msg.Payload, &alert); err != nil {
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- alert:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	if any(b.subscriber) == any(b.publisher) {
		return nil
	}
	return b.subscriber.Close()
}

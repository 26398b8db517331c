package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/dailyreel/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	base := event.Base()

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.RunIDMetadataKey, base.RunID)
	msg.Metadata.Set(events.SeqMetadataKey, strconv.FormatInt(base.Seq, 10))
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Watch(ctx context.Context, runID string, handler EventHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}

			err := eb.deliver(ctx, runID, msg, handler)
			if errors.Is(err, ErrStopWatching) {
				return nil
			}

			if err != nil {
				return err
			}
		}
	}
}

// deliver acks every message it consumes. Messages that cannot be decoded
// are logged and skipped so one bad payload does not stall the topic.
func (eb *WatermillEventBus) deliver(ctx context.Context, runID string, msg *message.Message, handler EventHandler) error {
	defer msg.Ack()

	if runID != "" && msg.Metadata.Get(events.RunIDMetadataKey) != runID {
		return nil
	}

	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	event, err := events.Decode(eventType, msg.Payload)
	if err != nil {
		eb.logger.WarnContext(ctx, "Skipping undecodable run event", "message_id", msg.UUID, "error", err)

		return nil
	}

	return handler(ctx, event)
}

func (eb *WatermillEventBus) Close() error {
	return errors.Join(eb.publisher.Close(), eb.subscriber.Close())
}

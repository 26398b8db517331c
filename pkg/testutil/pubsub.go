package testutil

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// OrderedPubSub is an in-memory pub/sub for watch tests. Publish returns only
// after the subscriber acked the message, so one subscriber sees messages in
// publish order. Subscribed is closed once the first subscription exists;
// publish after it, since nothing is replayed.
type OrderedPubSub struct {
	*gochannel.GoChannel

	subscribed chan struct{}
	once       sync.Once
}

func NewOrderedPubSub() *OrderedPubSub {
	return &OrderedPubSub{
		GoChannel: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
		subscribed: make(chan struct{}),
	}
}

func (p *OrderedPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := p.GoChannel.Subscribe(ctx, topic)
	if err == nil {
		p.once.Do(func() {
			close(p.subscribed)
		})
	}

	return messages, err
}

func (p *OrderedPubSub) Subscribed() <-chan struct{} {
	return p.subscribed
}

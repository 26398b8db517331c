// Package eventbus publishes run notifications to external consumers.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/dailyreel/pkg/events"
)

// ErrStopWatching ends Watch without an error when returned by a handler.
var ErrStopWatching = errors.New("stop watching")

type EventPublisher interface {
	// Publish sends event keyed by its run ID.
	Publish(ctx context.Context, event events.Event) error
	GenerateID() string
}

type EventHandler func(ctx context.Context, event events.Event) error

type EventSubscriber interface {
	// Watch delivers events in arrival order until ctx ends or the handler
	// stops it. An empty runID watches every run.
	Watch(ctx context.Context, runID string, handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

package messaging

import (
	"context"

	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
)

// EventPublisher hands a stored event to the event channel. A nil error means the
// channel accepted it and will deliver it at least once.
type EventPublisher interface {
	Publish(ctx context.Context, event eventstore.StoredEvent) error
}

// EventHandler consumes one delivered event. A non-nil error asks for redelivery.
type EventHandler func(ctx context.Context, event eventstore.StoredEvent) error

// EventSubscriber delivers events to handler in per-stream order until ctx is done.
type EventSubscriber interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

// CommandSender queues a command envelope. Commands sharing a session are processed in order.
type CommandSender interface {
	SendCommand(ctx context.Context, sessionID string, env handlers.Envelope) error
}

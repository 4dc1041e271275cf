package messaging

import (
	"context"

	"example.com/backstage/services/giftcard/eventstore"
)

type delivery struct {
	event eventstore.StoredEvent
	ack   chan error
}

// ChannelBus is the in-process event channel. Publish returns only after a
// subscriber handled the event, so a failed projection leaves it in the outbox.
type ChannelBus struct {
	deliveries chan delivery
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{deliveries: make(chan delivery)}
}

func (b *ChannelBus) Publish(ctx context.Context, event eventstore.StoredEvent) error {
	d := delivery{event: event, ack: make(chan error, 1)}
	select {
	case b.deliveries <- d:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-d.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChannelBus) Subscribe(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case d := <-b.deliveries:
			d.ack <- handler(ctx, d.event)
		case <-ctx.Done():
			return nil
		}
	}
}

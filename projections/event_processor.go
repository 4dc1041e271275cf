package projections

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/messaging"
)

// EventProcessor feeds delivered events to the projector
type EventProcessor struct {
	subscriber messaging.EventSubscriber
	projector  *GiftCardProjector
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(subscriber messaging.EventSubscriber, projector *GiftCardProjector) *EventProcessor {
	return &EventProcessor{subscriber: subscriber, projector: projector}
}

// Run consumes until ctx is done
func (p *EventProcessor) Run(ctx context.Context) error {
	log.Info().Msg("Starting projection consumer")
	err := p.subscriber.Subscribe(ctx, p.processEvent)
	log.Info().Msg("Projection consumer stopped")
	return err
}

func (p *EventProcessor) processEvent(ctx context.Context, event eventstore.StoredEvent) error {
	err := p.projector.Project(ctx, event)
	if err == nil {
		return nil
	}

	logger := log.Error()
	if errors.Is(err, ErrSequenceGap) {
		// The predecessor is still in flight; redelivery resolves it.
		logger = log.Warn()
	}
	logger.Err(err).
		Str("giftCardID", event.StreamID.String()).
		Int64("position", event.Position).
		Msg("Failed to process event")
	return err
}

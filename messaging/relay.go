package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/metrics"
)

// Relay moves appended events from the outbox to the event channel in global order.
// An event is marked published only after the channel accepted it, so a crash
// between the two steps republishes it.
type Relay struct {
	outbox         eventstore.Outbox
	publisher      EventPublisher
	interval       time.Duration
	batchSize      int
	publishTimeout time.Duration
	wake           chan struct{}
}

func NewRelay(outbox eventstore.Outbox, publisher EventPublisher, cfg config.EventsConfig) *Relay {
	r := &Relay{
		outbox:         outbox,
		publisher:      publisher,
		interval:       cfg.RelayInterval,
		batchSize:      cfg.BatchSize,
		publishTimeout: cfg.PublishTimeout,
		wake:           make(chan struct{}, 1),
	}
	if r.interval <= 0 {
		r.interval = 250 * time.Millisecond
	}
	if r.batchSize <= 0 {
		r.batchSize = 100
	}
	if r.publishTimeout <= 0 {
		r.publishTimeout = 10 * time.Second
	}
	return r
}

// Notify wakes the relay without waiting for the next tick. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.interval).Msg("Starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to relay events")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush publishes unpublished events until the outbox is empty or a publish fails.
// It stops at the first failure so that later events of the same card never overtake it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	published := 0
	for {
		batch, err := r.outbox.Unpublished(ctx, r.batchSize)
		if err != nil {
			return published, err
		}
		if len(batch) == 0 {
			return published, nil
		}

		for _, event := range batch {
			if err := r.publish(ctx, event); err != nil {
				metrics.RelayFailures.Inc()
				return published, err
			}
			if err := r.outbox.MarkPublished(ctx, event.Position); err != nil {
				return published, err
			}
			metrics.EventsPublished.Inc()
			published++
		}

		if len(batch) < r.batchSize {
			return published, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, event eventstore.StoredEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("giftCardID", event.StreamID.String()).
			Int64("position", event.Position).
			Str("eventType", event.EventType).
			Msg("Failed to publish event")
		return err
	}
	log.Debug().Int64("position", event.Position).Str("eventType", event.EventType).Msg("Event published")
	return nil
}

package projections

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/cache"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/repositories"
)

// Rebuilder recreates the read model from the full event log
type Rebuilder struct {
	store     eventstore.EventStore
	repo      repositories.GiftCardRepository
	cache     cache.Cache
	indexer   Indexer
	projector *GiftCardProjector
}

// NewRebuilder creates a rebuilder. cache and indexer may be nil.
func NewRebuilder(store eventstore.EventStore, repo repositories.GiftCardRepository, c cache.Cache, indexer Indexer) *Rebuilder {
	return &Rebuilder{
		store:     store,
		repo:      repo,
		cache:     c,
		indexer:   indexer,
		projector: NewGiftCardProjector(repo, c, indexer),
	}
}

// Rebuild truncates the read model and replays every event in global order.
// An interrupted rebuild leaves a partial table; running it again starts over.
func (r *Rebuilder) Rebuild(ctx context.Context) (int, error) {
	if err := r.repo.Truncate(ctx); err != nil {
		return 0, err
	}
	if r.indexer != nil {
		if err := r.indexer.Reset(ctx); err != nil {
			return 0, fmt.Errorf("failed to reset search index: %w", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Flush(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush query cache")
		}
	}

	log.Info().Msg("Rebuilding gift card read model")
	count := 0
	for event, err := range r.store.LoadAll(ctx, 0) {
		if err != nil {
			return count, fmt.Errorf("failed to read event log: %w", err)
		}
		if err := r.projector.Project(ctx, event); err != nil {
			return count, fmt.Errorf("failed to project event at position %d: %w", event.Position, err)
		}
		count++
		if count%1000 == 0 {
			log.Info().Int("events", count).Msg("Rebuild progress")
		}
	}
	log.Info().Int("events", count).Msg("Rebuild finished")
	return count, nil
}

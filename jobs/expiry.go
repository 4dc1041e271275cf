package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/clock"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
	"example.com/backstage/services/giftcard/metrics"
	"example.com/backstage/services/giftcard/repositories"
	"example.com/backstage/services/giftcard/tracing"
)

// Expirer is the command path the sweep goes through
type Expirer interface {
	HandleExpireGiftCard(ctx context.Context, cmd handlers.ExpireGiftCardCommand) error
}

// SweepResult counts what one sweep did
type SweepResult struct {
	Expired int
	Skipped int
	Failed  int
}

// ExpirySweeper expires active cards whose expiry passed. The read model only
// nominates candidates; the aggregate decides, so a stale row is harmless.
type ExpirySweeper struct {
	repo      repositories.GiftCardRepository
	expirer   Expirer
	clock     clock.Clock
	batchSize int
	tracer    *tracing.Tracer
}

// NewExpirySweeper creates a sweeper. tracer may be nil.
func NewExpirySweeper(repo repositories.GiftCardRepository, expirer Expirer, clk clock.Clock, batchSize int, tracer *tracing.Tracer) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirySweeper{repo: repo, expirer: expirer, clock: clk, batchSize: batchSize, tracer: tracer}
}

// Sweep handles one batch. Cards it could not expire are picked up again on the next run.
func (s *ExpirySweeper) Sweep(ctx context.Context) (result SweepResult, err error) {
	ctx, txn := s.tracer.StartTransaction(ctx, "expiry-sweep")
	defer func() { s.tracer.EndTransaction(txn, err) }()

	endSegment := tracing.StartSegment(ctx, "list-expirable")
	rows, err := s.repo.ListExpirable(ctx, s.clock.Now(), s.batchSize)
	endSegment()
	if err != nil {
		return result, err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		err := s.expirer.HandleExpireGiftCard(ctx, handlers.ExpireGiftCardCommand{
			TenantScope: handlers.TenantScope{TenantID: row.TenantID},
			GiftCardID:  row.GiftCardID,
		})
		switch {
		case err == nil:
			result.Expired++
			metrics.ExpirySweep.WithLabelValues(metrics.OutcomeOK).Inc()
		case errors.Is(err, eventstore.ErrConcurrencyConflict):
			result.Skipped++
			metrics.ExpirySweep.WithLabelValues(metrics.OutcomeConflict).Inc()
			log.Info().Str("giftCardID", row.GiftCardID).Msg("Card changed during expiry sweep, retrying next run")
		case handlers.IsRejection(err):
			// Usually the row lags a transition the aggregate already made.
			result.Skipped++
			metrics.ExpirySweep.WithLabelValues(metrics.OutcomeRejected).Inc()
			log.Debug().Err(err).Str("giftCardID", row.GiftCardID).Msg("Card not expirable")
		default:
			result.Failed++
			metrics.ExpirySweep.WithLabelValues(metrics.OutcomeError).Inc()
			log.Error().Err(err).Str("giftCardID", row.GiftCardID).Msg("Failed to expire gift card")
		}
	}

	if len(rows) > 0 {
		log.Info().
			Int("expired", result.Expired).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("Expiry sweep finished")
	}
	return result, nil
}

// Run schedules the sweep every interval until ctx is done
func (s *ExpirySweeper) Run(ctx context.Context, interval time.Duration) error {
	log.Info().Dur("interval", interval).Msg("Starting expiry sweep job")

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Expiry sweep failed")
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("expiry-sweep"),
	)
	if err != nil {
		return err
	}

	scheduler.Start()

	<-ctx.Done()

	return scheduler.Shutdown()
}

package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"example.com/backstage/services/giftcard/cache"
	"example.com/backstage/services/giftcard/clock"
	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/database"
	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
	"example.com/backstage/services/giftcard/jobs"
	"example.com/backstage/services/giftcard/messaging"
	"example.com/backstage/services/giftcard/projections"
	"example.com/backstage/services/giftcard/queries"
	"example.com/backstage/services/giftcard/repositories"
	"example.com/backstage/services/giftcard/tracing"
)

const closeTimeout = 10 * time.Second

// app holds every component a command may need. Optional integrations that fail
// to start are logged and left out.
type app struct {
	cfg   config.Config
	clock clock.Clock

	db       *gorm.DB
	readOnly *gorm.DB

	store   eventstore.Store
	repo    repositories.GiftCardRepository
	cache   cache.Cache
	indexer projections.Indexer
	tracer  *tracing.Tracer

	azure      *messaging.AzureClient
	publisher  messaging.EventPublisher
	subscriber messaging.EventSubscriber
	commands   messaging.CommandSender

	relay      *messaging.Relay
	handler    *handlers.GiftCardHandler
	dispatcher *handlers.Dispatcher
	queries    *queries.Service

	closers []func()
}

func newApp(cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, clock: clock.NewSystem()}

	if err := a.initStorage(); err != nil {
		a.close()
		return nil, err
	}
	a.initCache()
	a.initSearch()
	a.initTracer()
	if err := a.initMessaging(); err != nil {
		a.close()
		return nil, err
	}

	a.relay = messaging.NewRelay(a.store, a.publisher, cfg.Events)
	a.handler = handlers.NewGiftCardHandler(a.store, a.clock, domain.RandomCodes{}, a.relay)
	a.dispatcher = handlers.NewDispatcher(a.handler)
	a.queries = queries.NewService(a.repo, a.store, a.cache)
	return a, nil
}

func (a *app) initStorage() error {
	if a.cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory storage, all data is lost on exit")
		a.store = eventstore.NewMemoryEventStore()
		a.repo = repositories.NewMemoryGiftCardRepository()
		return nil
	}

	db, readOnly, err := database.Connect(a.cfg.Database)
	if err != nil {
		return err
	}
	a.db, a.readOnly = db, readOnly
	a.onClose(func() { database.Close(db) })
	if readOnly != db {
		a.onClose(func() { database.Close(readOnly) })
	}

	if a.cfg.EnableMigrations {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	a.store = eventstore.NewGormEventStore(db)
	a.repo = repositories.NewGiftCardRepository(db, readOnly)
	return nil
}

func (a *app) initCache() {
	redisCache, err := cache.NewRedisCache(a.cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		return
	}
	a.cache = redisCache
	a.onClose(func() {
		if err := redisCache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis cache")
		}
	})
}

func (a *app) initSearch() {
	if !a.cfg.Elastic.Enabled {
		return
	}
	client, err := projections.NewElasticsearchClient(a.cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search mirror")
		return
	}
	indexer := projections.NewElasticIndexer(client, a.cfg.Elastic)

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := indexer.EnsureIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create search index, continuing without search mirror")
		return
	}
	a.indexer = indexer
}

func (a *app) initTracer() {
	tracer, err := tracing.NewTracer(a.cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		return
	}
	a.tracer = tracer
	a.onClose(tracer.Close)
}

func (a *app) initMessaging() error {
	if a.cfg.Azure.QueueConnStr != "" {
		azure, err := messaging.NewAzureClient(a.cfg.Azure)
		if err != nil {
			return err
		}
		a.azure = azure
		a.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := azure.Close(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to close Service Bus client")
			}
		})
	}

	switch a.cfg.Events.Transport {
	case config.TransportChannel:
		bus := messaging.NewChannelBus()
		a.publisher, a.subscriber = bus, bus

	case config.TransportServiceBus:
		publisher, err := a.azure.NewEventPublisher(a.cfg.Azure.EventsQueueName)
		if err != nil {
			return err
		}
		a.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = publisher.Close(ctx)
		})
		a.publisher = publisher
		a.subscriber = a.azure.NewEventSubscriber(a.cfg.Azure.EventsQueueName)

	case config.TransportKafka:
		publisher, err := messaging.NewKafkaPublisher(a.cfg.Kafka)
		if err != nil {
			return errors.Wrap(err, "failed to create Kafka publisher")
		}
		a.onClose(func() { _ = publisher.Close() })
		subscriber, err := messaging.NewKafkaSubscriber(a.cfg.Kafka)
		if err != nil {
			return errors.Wrap(err, "failed to create Kafka subscriber")
		}
		a.onClose(func() { _ = subscriber.Close() })
		a.publisher, a.subscriber = publisher, subscriber
	}

	if a.cfg.Commands.RedeemAsync {
		sender, err := a.azure.NewCommandSender(a.cfg.Azure.CommandsQueueName)
		if err != nil {
			return err
		}
		a.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = sender.Close(ctx)
		})
		a.commands = sender
	}
	return nil
}

// startWorker runs the background side of the service on g: the outbox relay,
// the projection consumer, the expiry sweep and the command queue consumer.
func (a *app) startWorker(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		return a.relay.Run(ctx)
	})

	projector := projections.NewGiftCardProjector(a.repo, a.cache, a.indexer)
	processor := projections.NewEventProcessor(a.subscriber, projector)
	g.Go(func() error {
		return processor.Run(ctx)
	})

	if a.cfg.Expiry.Enabled {
		sweeper := jobs.NewExpirySweeper(a.repo, a.handler, a.clock, a.cfg.Expiry.BatchSize, a.tracer)
		g.Go(func() error {
			return sweeper.Run(ctx, a.cfg.Expiry.Interval)
		})
	}

	if a.azure != nil && a.cfg.Commands.RedeemAsync {
		g.Go(func() error {
			log.Info().Str("queue", a.cfg.Azure.CommandsQueueName).Msg("Starting command queue consumer")
			return a.azure.StartCommandConsumers(ctx, a.cfg.Azure.CommandsQueueName, messaging.NewProcessor(a.dispatcher))
		})
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

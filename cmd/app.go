package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/handlers"
	"example.com/backstage/services/provenance/integrity"
	"example.com/backstage/services/provenance/internal/cache"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/database"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/tracing"
	"example.com/backstage/services/provenance/messaging"
	"example.com/backstage/services/provenance/models"
	"example.com/backstage/services/provenance/projections"
	"example.com/backstage/services/provenance/queries"
)

// connectDatabase is replaced in tests to observe the pool newApp opens
var connectDatabase = database.Connect

// app is the wired service shared by the commands
type app struct {
	cfg     config.Config
	db      *gorm.DB
	store   *eventstore.GormEventStore
	metrics *metrics.Metrics
	tracer  tracing.Tracer

	auth         *handlers.AuthorizationHandler
	products     *handlers.ProductHandler
	certificates *handlers.CertificateHandler
	queries      *queries.QueryService
	chain        *integrity.ChainVerifier
	anchorer     *integrity.Anchorer
	auditor      *integrity.Auditor

	cache   *cache.RedisCache
	elastic *projections.ElasticClient
	azure   *messaging.AzureClient
	sender  *messaging.AnchorPublisher
}

// newApp connects the database and every optional backend. Optional backends
// that fail to connect are logged and left out.
func newApp(cfg config.Config) (a *app, err error) {
	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if closeErr := database.Close(db); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close database")
			}
		}
	}()

	if err := models.SetupModels(db); err != nil {
		return nil, err
	}

	a = &app{
		cfg:     cfg,
		db:      db,
		store:   eventstore.NewGormEventStore(db),
		metrics: metrics.NewMetrics(),
	}
	a.metrics.SetHealth("database", true)

	if a.tracer, err = tracing.NewTracer(cfg.Tracing); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		a.tracer = tracing.Noop()
	}

	var readCache cache.Cache
	if redisCache, err := cache.NewRedisCache(cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		a.metrics.SetHealth("redis", false)
	} else {
		a.cache = redisCache
		readCache = redisCache
		if redisCache.Enabled() {
			a.metrics.SetHealth("redis", true)
		}
	}

	var searcher queries.Searcher
	if cfg.Elastic.Enabled {
		elastic, err := projections.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
			a.metrics.SetHealth("elasticsearch", false)
		} else {
			a.elastic = elastic
			searcher = elastic
			a.metrics.SetHealth("elasticsearch", true)
		}
	}

	if cfg.Azure.Enabled {
		azure, azureErr := messaging.NewAzureClient(cfg.Azure)
		if azureErr != nil {
			a.tracer.Close()
			if a.cache != nil {
				if closeErr := a.cache.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("Failed to close Redis cache")
				}
			}
			return nil, azureErr
		}
		a.azure = azure
	}

	clk := clock.System{}
	locks := handlers.NewKeyedMutex()
	a.auth = handlers.NewAuthorizationHandler(db, a.store, clk, locks, a.metrics, cfg.Ledger.Owner)
	a.products = handlers.NewProductHandler(db, a.store, a.auth, clk, locks, a.metrics)
	a.certificates = handlers.NewCertificateHandler(db, a.store, a.auth, clk, locks, a.metrics, cfg.Ledger.MaxBulkIssue)
	a.queries = queries.NewQueryService(db, readCache, searcher, clk)
	a.chain = integrity.NewChainVerifier(db, 0)
	a.auditor = integrity.NewAuditor(db, a.store)

	return a, nil
}

// withAnchorer loads the signing key and, when Service Bus is enabled, the
// anchor publisher
func (a *app) withAnchorer() error {
	keys, err := integrity.LoadSigningKeyPair(a.cfg.Integrity.KeyID, a.cfg.Integrity.KeyDir)
	if err != nil {
		return errors.WithMessage(err, "signing key unavailable, run the keygen command first")
	}

	var publisher integrity.Publisher
	if a.azure != nil {
		a.sender, err = a.azure.Sender(a.cfg.Azure.AnchorsQueueName)
		if err != nil {
			return err
		}
		publisher = a.sender
	}

	a.anchorer = integrity.NewAnchorer(a.db, keys, publisher, clock.System{}, a.metrics, a.cfg.Integrity.MaxAnchorSize)
	return nil
}

// eventProcessor builds the search projection processor, or nil without Elasticsearch
func (a *app) eventProcessor(ctx context.Context) (*projections.EventProcessor, error) {
	if a.elastic == nil {
		return nil, nil
	}
	if err := a.elastic.EnsureIndices(ctx); err != nil {
		return nil, err
	}

	return projections.NewEventProcessor(
		a.store,
		projections.NewLedgerProjector(a.elastic),
		map[string]projections.Projector{
			domain.ProductAggregateType:     projections.NewProductProjector(a.db, a.elastic),
			domain.CertificateAggregateType: projections.NewCertificateProjector(a.db, a.elastic),
		},
		a.metrics,
		a.tracer,
		a.cfg.Projections,
	), nil
}

func (a *app) messageProcessor() *messaging.Processor {
	return messaging.NewProcessor(a.auth, a.products, a.certificates, a.metrics, a.tracer)
}

func (a *app) close() {
	ctx := context.Background()
	if a.sender != nil {
		if err := a.sender.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close anchor sender")
		}
	}
	if a.azure != nil {
		if err := a.azure.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close Service Bus client")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis cache")
		}
	}
	a.tracer.Close()
	if err := database.Close(a.db); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

package projections

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/tracing"
)

const (
	defaultBatchSize = 100
	defaultInterval  = 5 * time.Second
)

// EventProcessor feeds unprocessed ledger entries to the projectors
type EventProcessor struct {
	store      eventstore.EventStore
	ledger     Projector
	projectors map[string]Projector
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
	batchSize  int
	interval   time.Duration

	mutex  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventProcessor creates a processor. ledger sees every event; projectors
// are keyed by aggregate type and only see their own.
func NewEventProcessor(
	store eventstore.EventStore,
	ledger Projector,
	projectors map[string]Projector,
	m *metrics.Metrics,
	tracer tracing.Tracer,
	cfg config.ProjectionsConfig,
) *EventProcessor {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	return &EventProcessor{
		store:      store,
		ledger:     ledger,
		projectors: projectors,
		metrics:    m,
		tracer:     tracer,
		batchSize:  batchSize,
		interval:   interval,
	}
}

// Start runs the processor in the background until Stop
func (p *EventProcessor) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		_ = p.Run(ctx)
	}()
}

// Stop stops a processor started with Start and waits for the current batch
func (p *EventProcessor) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done
	p.cancel = nil
}

// Run processes batches on every tick until ctx is cancelled
func (p *EventProcessor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.interval).Int("batchSize", p.batchSize).Msg("Event processor started")

	for {
		select {
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to process event batch")
			}
		case <-ctx.Done():
			log.Info().Msg("Event processor stopped")
			return nil
		}
	}
}

// ProcessBatch projects one batch of unprocessed events and returns how many
// were marked processed. A failed event keeps its error and is retried on
// the next batch.
func (p *EventProcessor) ProcessBatch(ctx context.Context) (int, error) {
	events, err := p.store.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	log.Debug().Int("count", len(events)).Msg("Processing events")

	ctx, txn := p.tracer.StartTransaction(ctx, "projections/batch")
	defer p.tracer.EndTransaction(txn)
	p.tracer.AddAttribute(txn, "events", len(events))

	processed := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.tracer.RecordError(txn, err)
			log.Error().
				Err(err).
				Uint64("sequence", event.Sequence).
				Str("eventType", event.Type).
				Msg("Failed to project event")
			p.metrics.IncrementCounter("projection_failures")
			if markErr := p.store.MarkEventAsFailed(ctx, event.Sequence, err); markErr != nil {
				return processed, markErr
			}
			continue
		}

		if err := p.store.MarkEventAsProcessed(ctx, event.Sequence); err != nil {
			return processed, errors.Wrapf(err, "sequence %d", event.Sequence)
		}
		processed++
	}

	p.metrics.IncrementCounterBy("events_projected", int64(processed))
	return processed, nil
}

func (p *EventProcessor) processEvent(ctx context.Context, event domain.Event) error {
	defer p.tracer.StartSpan(ctx, event.Type).End()

	if p.ledger != nil {
		if err := p.ledger.Project(ctx, event); err != nil {
			return err
		}
	}

	projector, ok := p.projectors[event.AggregateType]
	if !ok {
		return nil
	}
	return projector.Project(ctx, event)
}

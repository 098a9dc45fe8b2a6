package tracing

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/config"
)

const shutdownTimeout = 10 * time.Second

// Tracer traces the work nrgin cannot see: scheduled integrity jobs,
// projection batches and Service Bus commands. Every method is safe on a
// disabled tracer and on a nil transaction.
type Tracer interface {
	// Application is the agent for the HTTP middleware, nil when disabled
	Application() *newrelic.Application

	// StartTransaction starts a background transaction and returns a
	// context carrying it
	StartTransaction(ctx context.Context, name string) (context.Context, *newrelic.Transaction)

	// StartSpan starts a segment on the transaction carried by ctx
	StartSpan(ctx context.Context, name string) *newrelic.Segment

	RecordError(txn *newrelic.Transaction, err error)
	AddAttribute(txn *newrelic.Transaction, key string, value interface{})
	EndTransaction(txn *newrelic.Transaction)
	Close()
}

// NewRelicTracer implements Tracer using New Relic
type NewRelicTracer struct {
	app *newrelic.Application
}

// Noop returns a disabled tracer
func Noop() Tracer {
	return &NewRelicTracer{}
}

// NewTracer creates a new tracer. Without a license key tracing is disabled.
func NewTracer(cfg config.TracingConfig) (Tracer, error) {
	if cfg.LicenseKey == "" {
		log.Warn().Msg("New Relic license key not provided, tracing will be disabled")
		return Noop(), nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(cfg.DistribTracing),
		newrelic.ConfigAppLogForwardingEnabled(cfg.LogEnabled),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize New Relic")
	}

	return &NewRelicTracer{app: app}, nil
}

func (t *NewRelicTracer) Application() *newrelic.Application {
	return t.app
}

func (t *NewRelicTracer) StartTransaction(ctx context.Context, name string) (context.Context, *newrelic.Transaction) {
	if t.app == nil {
		return ctx, nil
	}
	txn := t.app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn
}

func (t *NewRelicTracer) StartSpan(ctx context.Context, name string) *newrelic.Segment {
	txn := newrelic.FromContext(ctx)
	if t.app == nil || txn == nil {
		return nil
	}
	return txn.StartSegment(name)
}

func (t *NewRelicTracer) RecordError(txn *newrelic.Transaction, err error) {
	if txn == nil || err == nil {
		return
	}
	txn.NoticeError(err)
}

func (t *NewRelicTracer) AddAttribute(txn *newrelic.Transaction, key string, value interface{}) {
	if txn == nil {
		return
	}
	txn.AddAttribute(key, value)
}

func (t *NewRelicTracer) EndTransaction(txn *newrelic.Transaction) {
	if txn == nil {
		return
	}
	txn.End()
}

// Close flushes pending data to New Relic
func (t *NewRelicTracer) Close() {
	if t.app == nil {
		return
	}
	t.app.Shutdown(shutdownTimeout)
	log.Info().Msg("New Relic tracer shutdown")
}

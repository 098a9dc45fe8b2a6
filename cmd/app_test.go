package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/config"
	"example.com/backstage/services/provenance/internal/database"
	"example.com/backstage/services/provenance/internal/tracing"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Source: filepath.Join(t.TempDir(), "ledger.db"),
		},
		Ledger: config.LedgerConfig{Owner: "owner", MaxBulkIssue: 10},
	}
}

func captureDatabase(t *testing.T) **gorm.DB {
	t.Helper()
	var opened *gorm.DB
	connectDatabase = func(cfg config.DatabaseConfig) (*gorm.DB, error) {
		db, err := database.Connect(cfg)
		opened = db
		return db, err
	}
	t.Cleanup(func() { connectDatabase = database.Connect })
	return &opened
}

func TestNewAppClosesDatabaseOnFailure(t *testing.T) {
	opened := captureDatabase(t)

	cfg := testConfig(t)
	cfg.Azure = config.AzureConfig{Enabled: true, QueueConnStr: "not-a-connection-string"}

	a, err := newApp(cfg)
	require.Error(t, err)
	assert.Nil(t, a)

	require.NotNil(t, *opened)
	sqlDB, err := (*opened).DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping(), "the pool must be closed")
}

func TestNewAppWithoutOptionalBackends(t *testing.T) {
	opened := captureDatabase(t)

	a, err := newApp(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, a.tracer)
	assert.Nil(t, a.azure)
	assert.Nil(t, a.elastic)

	processor, err := a.eventProcessor(t.Context())
	require.NoError(t, err)
	assert.Nil(t, processor)
	assert.NotNil(t, a.messageProcessor())

	a.close()

	sqlDB, err := (*opened).DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping())
}

type jobTracer struct {
	tracing.Tracer
	started []string
	errors  []error
	ended   int
}

func (j *jobTracer) StartTransaction(ctx context.Context, name string) (context.Context, *newrelic.Transaction) {
	j.started = append(j.started, name)
	return ctx, nil
}

func (j *jobTracer) RecordError(_ *newrelic.Transaction, err error) {
	j.errors = append(j.errors, err)
}

func (j *jobTracer) EndTransaction(*newrelic.Transaction) {
	j.ended++
}

func TestTracedJobRecordsFailures(t *testing.T) {
	tracer := &jobTracer{Tracer: tracing.Noop()}
	a := &app{tracer: tracer}

	traced(t.Context(), a, "verify", func(context.Context, *newrelic.Transaction) error {
		return nil
	})()
	traced(t.Context(), a, "anchor", func(context.Context, *newrelic.Transaction) error {
		return errors.New("signing key unavailable")
	})()

	assert.Equal(t, []string{"worker/verify", "worker/anchor"}, tracer.started)
	assert.Equal(t, 2, tracer.ended)
	require.Len(t, tracer.errors, 1)
	assert.EqualError(t, tracer.errors[0], "signing key unavailable")
}

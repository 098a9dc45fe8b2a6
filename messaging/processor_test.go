package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/handlers"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/database"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/testdb"
	"example.com/backstage/services/provenance/internal/tracing"
	"example.com/backstage/services/provenance/models"
)

type processorFixture struct {
	ctx       context.Context
	db        *gorm.DB
	metrics   *metrics.Metrics
	processor *Processor
}

type mockTracer struct {
	mock.Mock
}

func (m *mockTracer) Application() *newrelic.Application { return nil }

func (m *mockTracer) StartTransaction(ctx context.Context, name string) (context.Context, *newrelic.Transaction) {
	m.Called(name)
	return ctx, nil
}

func (m *mockTracer) StartSpan(ctx context.Context, name string) *newrelic.Segment {
	m.Called(name)
	return nil
}

func (m *mockTracer) RecordError(txn *newrelic.Transaction, err error) {
	m.Called(err)
}

func (m *mockTracer) AddAttribute(txn *newrelic.Transaction, key string, value interface{}) {
	m.Called(key, value)
}

func (m *mockTracer) EndTransaction(txn *newrelic.Transaction) {
	m.Called()
}

func (m *mockTracer) Close() {}

func newProcessorFixture(t *testing.T) *processorFixture {
	return newTracedProcessorFixture(t, tracing.Noop())
}

func newTracedProcessorFixture(t *testing.T, tracer tracing.Tracer) *processorFixture {
	t.Helper()

	db := testdb.Open(t)
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	store := eventstore.NewGormEventStore(db)
	m := metrics.NewMetrics()
	locks := handlers.NewKeyedMutex()
	auth := handlers.NewAuthorizationHandler(db, store, clk, locks, m, "owner")

	return &processorFixture{
		ctx:     context.Background(),
		db:      db,
		metrics: m,
		processor: NewProcessor(
			auth,
			handlers.NewProductHandler(db, store, auth, clk, locks, m),
			handlers.NewCertificateHandler(db, store, auth, clk, locks, m, 10),
			m,
			tracer,
		),
	}
}

func (f *processorFixture) send(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, f.processor.ProcessMessage(f.ctx, &azservicebus.ReceivedMessage{
		MessageID: "msg",
		Body:      []byte(body),
	}))
}

func (f *processorFixture) counter(name string) int64 {
	return f.metrics.GetAllMetrics().Counters[name]
}

func TestProcessorRoutesProductCommands(t *testing.T) {
	f := newProcessorFixture(t)

	f.send(t, `{"eventType":"GrantRole","actor":"owner","data":{"principal":"maker","role":"manufacturer","is_authorized":true}}`)
	f.send(t, `{"eventType":"RegisterProduct","actor":"maker","data":{"product_id":"PROD-1","product_type":"tea","initial_location":"Estate"}}`)
	f.send(t, `{"eventType":"UpdateLocation","actor":"maker","data":{"product_id":"PROD-1","address":"Warehouse 4"}}`)
	f.send(t, `{"eventType":"TransferCustody","actor":"maker","data":{"product_id":"PROD-1","new_owner":"shop","reason":"sale"}}`)
	f.send(t, `{"eventType":"UpdateStatus","actor":"shop","data":{"product_id":"PROD-1","status":4}}`)

	var product models.Product
	require.NoError(t, f.db.Where("product_id = ?", "PROD-1").Take(&product).Error)
	assert.Equal(t, "shop", product.CurrentOwner)
	assert.Equal(t, "Warehouse 4", product.CurrentLocation)
	assert.Equal(t, uint8(domain.StatusDelivered), product.CurrentStatus)
	assert.Equal(t, uint64(3), product.TotalEvents)

	assert.Equal(t, int64(5), f.counter("messages_processed"))
	assert.Zero(t, f.counter("messages_rejected"))
}

func TestProcessorRoutesCertificateCommands(t *testing.T) {
	f := newProcessorFixture(t)

	f.send(t, `{"eventType":"RegisterAuthority","actor":"owner","data":{"principal":"lab","name":"Lab","level":3}}`)
	f.send(t, `{"eventType":"IssueCertificate","actor":"lab","data":{"certificate_id":"CERT-1","product_id":"PROD-1","certificate_type":1,"valid_until":"2030-01-01T00:00:00Z"}}`)
	f.send(t, `{"eventType":"BulkIssueCertificates","actor":"lab","data":{"certificates":[{"certificate_id":"CERT-2","product_id":"PROD-1","valid_until":"2030-01-01T00:00:00Z"}]}}`)
	f.send(t, `{"eventType":"ValidateCertificate","actor":"buyer","data":{"certificate_id":"CERT-1","method":"qr"}}`)
	f.send(t, `{"eventType":"RevokeCertificate","actor":"lab","data":{"certificate_id":"CERT-2","reason":"recalled"}}`)

	var certificates []models.Certificate
	require.NoError(t, f.db.Order("certificate_id").Find(&certificates).Error)
	require.Len(t, certificates, 2)
	assert.Equal(t, uint64(1), certificates[0].VerificationCount)
	assert.Equal(t, uint8(domain.CertificateFairTrade), certificates[0].CertificateType)
	assert.True(t, certificates[1].IsRevoked)

	f.send(t, `{"eventType":"SetAuthorityActive","actor":"owner","data":{"principal":"lab","is_active":false}}`)
	var authority models.CertificateAuthority
	require.NoError(t, f.db.Where("principal = ?", "lab").Take(&authority).Error)
	assert.False(t, authority.IsActive)
}

func TestProcessorSettlesRejectedCommands(t *testing.T) {
	f := newProcessorFixture(t)

	tests := []struct {
		name string
		body string
		kind domain.Kind
	}{
		{"malformed body", `{not json`, domain.KindValidationFailed},
		{"unknown type", `{"eventType":"Teleport","actor":"owner"}`, domain.KindValidationFailed},
		{"not authorized", `{"eventType":"RegisterProduct","actor":"nobody","data":{"product_id":"PROD-9"}}`, domain.KindNotAuthorized},
		{"missing actor", `{"eventType":"GrantRole","data":{"principal":"x","role":"logistics"}}`, domain.KindValidationFailed},
		{"unknown product", `{"eventType":"UpdateLocation","actor":"owner","data":{"product_id":"NOPE"}}`, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.processor.Dispatch(f.ctx, []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))

			f.send(t, tt.body)
		})
	}

	assert.Equal(t, int64(len(tests)), f.counter("messages_rejected"))
	assert.Zero(t, f.counter("messages_processed"))
}

func TestProcessorAbandonsInfrastructureFailures(t *testing.T) {
	f := newProcessorFixture(t)
	require.NoError(t, database.Close(f.db))

	err := f.processor.ProcessMessage(f.ctx, &azservicebus.ReceivedMessage{
		MessageID: "msg",
		Body:      []byte(`{"eventType":"GrantRole","actor":"owner","data":{"principal":"maker","role":"manufacturer","is_authorized":true}}`),
	})
	require.Error(t, err)
	assert.False(t, domain.IsDomainError(err))
	assert.Equal(t, int64(1), f.counter("messages_failed"))
}

func TestProcessorTracesCommands(t *testing.T) {
	tracer := new(mockTracer)
	f := newTracedProcessorFixture(t, tracer)

	tracer.On("StartTransaction", "servicebus/command").Return()
	tracer.On("AddAttribute", "messageID", "msg").Return()
	tracer.On("StartSpan", GrantRole).Return()
	tracer.On("EndTransaction").Return()

	f.send(t, `{"eventType":"GrantRole","actor":"owner","data":{"principal":"maker","role":"manufacturer","is_authorized":true}}`)
	tracer.AssertNotCalled(t, "RecordError", mock.Anything)

	tracer.On("StartSpan", RegisterProduct).Return()
	tracer.On("RecordError", mock.MatchedBy(func(err error) bool {
		return domain.KindOf(err) == domain.KindNotAuthorized
	})).Return().Once()
	tracer.On("AddAttribute", "code", string(domain.KindNotAuthorized)).Return().Once()

	f.send(t, `{"eventType":"RegisterProduct","actor":"nobody","data":{"product_id":"PROD-9"}}`)

	tracer.AssertExpectations(t)
	tracer.AssertNumberOfCalls(t, "StartTransaction", 2)
	tracer.AssertNumberOfCalls(t, "EndTransaction", 2)
	assert.Equal(t, int64(1), f.counter("messages_rejected"))
}

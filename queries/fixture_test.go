package queries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/handlers"
	"example.com/backstage/services/provenance/internal/cache"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/testdb"
)

const (
	owner     = "owner"
	maker     = "maker"
	carrier   = "carrier"
	authority = "authority-a"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockCache) Close() error {
	return m.Called().Error(0)
}

type fakeSearcher struct {
	index string
	query map[string]interface{}
	hits  []map[string]interface{}
}

func (f *fakeSearcher) Search(_ context.Context, index string, query map[string]interface{}) ([]map[string]interface{}, error) {
	f.index = index
	f.query = query
	return f.hits, nil
}

type fixture struct {
	ctx          context.Context
	db           *gorm.DB
	clock        *clock.Manual
	products     *handlers.ProductHandler
	certificates *handlers.CertificateHandler
}

// newFixture seeds one product that moved to a carrier and one certificate
func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db := testdb.Open(t)
	clk := clock.NewManual(epoch)
	store := eventstore.NewGormEventStore(db)
	m := metrics.NewMetrics()
	locks := handlers.NewKeyedMutex()

	auth := handlers.NewAuthorizationHandler(db, store, clk, locks, m, owner)
	f := &fixture{
		ctx:          ctx,
		db:           db,
		clock:        clk,
		products:     handlers.NewProductHandler(db, store, auth, clk, locks, m),
		certificates: handlers.NewCertificateHandler(db, store, auth, clk, locks, m, 0),
	}

	require.NoError(t, auth.HandleGrantRole(ctx, handlers.GrantRoleCommand{
		Actor: owner, Principal: maker, Role: domain.RoleManufacturer, IsAuthorized: true,
	}))
	_, err := f.products.HandleRegisterProduct(ctx, handlers.RegisterProductCommand{
		Actor: maker, ProductID: "PROD-1", ProductType: "coffee", InitialLocation: "Roastery",
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = f.products.HandleAddQualityCheck(ctx, handlers.AddQualityCheckCommand{
		Actor: maker, ProductID: "PROD-1", CheckType: "moisture", Result: true, Score: 91,
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = f.products.HandleTransferCustody(ctx, handlers.TransferCustodyCommand{
		Actor: maker, ProductID: "PROD-1", NewOwner: carrier, Location: "Port", Reason: "export",
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = f.products.HandleUpdateLocation(ctx, handlers.UpdateLocationCommand{
		Actor: carrier, ProductID: "PROD-1", Address: "At sea",
	})
	require.NoError(t, err)

	require.NoError(t, f.certificates.HandleRegisterAuthority(ctx, handlers.RegisterAuthorityCommand{
		Actor: owner, Principal: authority, Name: "Inspect Co", Level: domain.AuthorityIndustryBody,
	}))
	_, err = f.certificates.HandleIssueCertificate(ctx, handlers.IssueCertificateCommand{
		Actor:         authority,
		CertificateID: "CERT-1",
		ProductID:     "PROD-1",
		Type:          domain.CertificateOrganic,
		ValidUntil:    clk.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) service(c cache.Cache, searcher Searcher) *QueryService {
	return NewQueryService(f.db, c, searcher, f.clock)
}

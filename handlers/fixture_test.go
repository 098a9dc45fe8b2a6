package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/eventstore"
	"example.com/backstage/services/provenance/internal/clock"
	"example.com/backstage/services/provenance/internal/metrics"
	"example.com/backstage/services/provenance/internal/testdb"
	"example.com/backstage/services/provenance/models"
)

const (
	systemOwner  = "owner"
	manufacturer = "manufacturer-m"
	carrier      = "carrier-1"
	inspector    = "inspector-1"
	authorityA   = "authority-a"
	stranger     = "stranger"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx          context.Context
	db           *gorm.DB
	clock        *clock.Manual
	store        *eventstore.GormEventStore
	auth         *AuthorizationHandler
	products     *ProductHandler
	certificates *CertificateHandler
	metrics      *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testdb.Open(t)
	clk := clock.NewManual(epoch)
	store := eventstore.NewGormEventStore(db)
	m := metrics.NewMetrics()
	locks := NewKeyedMutex()

	auth := NewAuthorizationHandler(db, store, clk, locks, m, systemOwner)
	return &fixture{
		ctx:          context.Background(),
		db:           db,
		clock:        clk,
		store:        store,
		auth:         auth,
		products:     NewProductHandler(db, store, auth, clk, locks, m),
		certificates: NewCertificateHandler(db, store, auth, clk, locks, m, 3),
		metrics:      m,
	}
}

func (f *fixture) grant(t *testing.T, principal, role string) {
	t.Helper()
	require.NoError(t, f.auth.HandleGrantRole(f.ctx, GrantRoleCommand{
		Actor:        systemOwner,
		Principal:    principal,
		Role:         role,
		IsAuthorized: true,
	}))
}

func (f *fixture) registerProduct(t *testing.T, id string) {
	t.Helper()
	_, err := f.products.HandleRegisterProduct(f.ctx, RegisterProductCommand{
		Actor:           manufacturer,
		ProductID:       id,
		ProductType:     "coffee",
		BatchID:         "B-7",
		Origin:          "Huila, Colombia",
		InitialLocation: "Roastery 4",
		Metadata:        `{"grade":"AA"}`,
	})
	require.NoError(t, err)
}

func (f *fixture) registerAuthority(t *testing.T, principal string, level domain.AuthorityLevel) {
	t.Helper()
	require.NoError(t, f.certificates.HandleRegisterAuthority(f.ctx, RegisterAuthorityCommand{
		Actor:          systemOwner,
		Principal:      principal,
		Name:           "Inspection Co",
		Level:          level,
		Specialization: "food safety",
		ContactInfo:    "audit@inspection.example",
	}))
}

func (f *fixture) product(t *testing.T, id string) models.Product {
	t.Helper()
	var row models.Product
	require.NoError(t, f.db.Where("product_id = ?", id).Take(&row).Error)
	return row
}

func (f *fixture) certificate(t *testing.T, id string) models.Certificate {
	t.Helper()
	var row models.Certificate
	require.NoError(t, f.db.Where("certificate_id = ?", id).Take(&row).Error)
	return row
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// requireChainIntact walks the whole ledger checking sequences and links
func (f *fixture) requireChainIntact(t *testing.T) {
	t.Helper()

	var entries []models.LedgerEntry
	require.NoError(t, f.db.Order("sequence ASC").Find(&entries).Error)

	previous := eventstore.GenesisHash
	for i, entry := range entries {
		require.Equal(t, uint64(i+1), entry.Sequence)
		require.Equal(t, previous, entry.PreviousHash)
		require.Equal(t, eventstore.ComputeEntryHash(entry), entry.EntryHash)
		previous = entry.EntryHash
	}
}

package integrity

import (
	"context"
	"fmt"
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

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	ctx     context.Context
	db      *gorm.DB
	store   *eventstore.GormEventStore
	clock   *clock.Manual
	keys    *SigningKeyPair
	metrics *metrics.Metrics
	next    int
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	db := testdb.Open(t)
	keys, err := GenerateSigningKeyPair("test-key")
	require.NoError(t, err)

	return &ledgerFixture{
		ctx:     context.Background(),
		db:      db,
		store:   eventstore.NewGormEventStore(db),
		clock:   clock.NewManual(epoch),
		keys:    keys,
		metrics: metrics.NewMetrics(),
	}
}

func (f *ledgerFixture) anchorer(maxSize int) *Anchorer {
	return NewAnchorer(f.db, f.keys, nil, f.clock, f.metrics, maxSize)
}

// appendEntries chains n grant events onto the ledger, one transaction each
func (f *ledgerFixture) appendEntries(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		f.next++
		f.clock.Advance(time.Second)
		principal := fmt.Sprintf("principal-%d", f.next)

		err := f.db.Transaction(func(tx *gorm.DB) error {
			aggregate := domain.NewRecordAggregate(domain.AuthorizationAggregateType, principal+"/"+domain.RoleLogistics)
			if err := aggregate.Apply(domain.RoleGrantedEvent{
				Principal:    principal,
				Role:         domain.RoleLogistics,
				IsAuthorized: true,
				GrantedBy:    "owner",
				Time:         f.clock.Now(),
			}); err != nil {
				return err
			}
			_, err := f.store.Append(tx, aggregate, "owner", f.clock.Now())
			return err
		})
		require.NoError(t, err)
	}
}

func (f *ledgerFixture) entry(t *testing.T, sequence uint64) models.LedgerEntry {
	t.Helper()
	var entry models.LedgerEntry
	require.NoError(t, f.db.Where("sequence = ?", sequence).Take(&entry).Error)
	return entry
}

// tamperPayload rewrites an entry's payload, optionally recomputing its hash
func (f *ledgerFixture) tamperPayload(t *testing.T, sequence uint64, rehash bool) {
	t.Helper()

	entry := f.entry(t, sequence)
	entry.Payload = []byte(`{"principal":"mallory","role":"manufacturer","is_authorized":true}`)
	updates := map[string]interface{}{"payload": entry.Payload}
	if rehash {
		updates["entry_hash"] = eventstore.ComputeEntryHash(entry)
	}
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Where("sequence = ?", sequence).Updates(updates).Error)
}

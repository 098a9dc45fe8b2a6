package integrity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/provenance/domain"
	"example.com/backstage/services/provenance/handlers"
	"example.com/backstage/services/provenance/models"
)

func TestReplayProduct(t *testing.T) {
	f := newLedgerFixture(t)
	locks := handlers.NewKeyedMutex()
	auth := handlers.NewAuthorizationHandler(f.db, f.store, f.clock, locks, f.metrics, "owner")
	products := handlers.NewProductHandler(f.db, f.store, auth, f.clock, locks, f.metrics)

	for principal, role := range map[string]string{"maker": domain.RoleManufacturer, "carrier": domain.RoleLogistics} {
		require.NoError(t, auth.HandleGrantRole(f.ctx, handlers.GrantRoleCommand{
			Actor: "owner", Principal: principal, Role: role, IsAuthorized: true,
		}))
	}

	_, err := products.HandleRegisterProduct(f.ctx, handlers.RegisterProductCommand{
		Actor: "maker", ProductID: "LOT-9", InitialLocation: "Plant 1",
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = products.HandleTransferCustody(f.ctx, handlers.TransferCustodyCommand{
		Actor: "maker", ProductID: "LOT-9", NewOwner: "carrier", Location: "Dock 4",
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = products.HandleUpdateLocation(f.ctx, handlers.UpdateLocationCommand{
		Actor: "carrier", ProductID: "LOT-9", Address: "Rotterdam",
	})
	require.NoError(t, err)

	auditor := NewAuditor(f.db, f.store)
	report, err := auditor.ReplayProduct(f.ctx, "LOT-9")
	require.NoError(t, err)
	assert.True(t, report.Consistent, "%v", report.Mismatches)
	assert.Equal(t, 3, report.Version)

	// A state row edited outside the handlers no longer matches the ledger.
	require.NoError(t, f.db.Model(&models.Product{}).
		Where("product_id = ?", "LOT-9").
		Update("current_owner", "mallory").Error)

	report, err = auditor.ReplayProduct(f.ctx, "LOT-9")
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	require.Len(t, report.Mismatches, 1)
	assert.Contains(t, report.Mismatches[0], "owner")
}

func TestReplayUnknownAggregates(t *testing.T) {
	f := newLedgerFixture(t)
	auditor := NewAuditor(f.db, f.store)

	_, err := auditor.ReplayProduct(f.ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = auditor.ReplayCertificate(f.ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

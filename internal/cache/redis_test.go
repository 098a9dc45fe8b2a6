package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/provenance/config"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, c.Enabled())

	var out string
	require.ErrorIs(t, c.Get(context.Background(), "k", &out), ErrDisabled)
	require.ErrorIs(t, c.Set(context.Background(), "k", "v"), ErrDisabled)
	require.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	require.Equal(t, "product:PROD-1:event:7", ProductEventKey("PROD-1", 7))
	require.Equal(t, "product:PROD-1:check:2", QualityCheckKey("PROD-1", 2))
	require.Equal(t, "product:PROD-1:location:3", LocationUpdateKey("PROD-1", 3))
	require.Equal(t, "product:PROD-1:custody:4", CustodyRecordKey("PROD-1", 4))
	require.Equal(t, "certificate:C-1:verification:5", VerificationRecordKey("C-1", 5))
	require.Equal(t, "ledger:12", LedgerEntryKey(12))
	require.Equal(t, "anchor:12", AnchorKey(12))
}

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/backstage/services/provenance/domain"
)

type sampleCommand struct {
	ID       string `validate:"required,max=64,ledger_id"`
	Actor    string `validate:"required,max=64,principal"`
	Metadata string `validate:"max=512"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sampleCommand{ID: "PROD-1", Actor: "manufacturer-a"}))

	err := ValidateStruct(sampleCommand{ID: strings.Repeat("x", 65), Actor: "m"})
	require.ErrorIs(t, err, domain.ErrValidationFailed)
	require.Contains(t, err.Error(), "ID exceeds 64 characters")

	err = ValidateStruct(sampleCommand{ID: "has space", Actor: "m"})
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	err = ValidateStruct(sampleCommand{ID: "ok", Actor: "m", Metadata: strings.Repeat("m", 513)})
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	require.NoError(t, ValidateStruct(sampleCommand{ID: "ok", Actor: "m", Metadata: strings.Repeat("m", 512)}))
}

func TestIsLedgerID(t *testing.T) {
	require.True(t, IsLedgerID("CERT-1"))
	require.False(t, IsLedgerID(""))
	require.False(t, IsLedgerID("tab\tid"))
	require.False(t, IsLedgerID("ünicode"))
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("id", "PROD-1"))
	require.NoError(t, ValidateID("id", strings.Repeat("x", 64)))

	err := ValidateID("id", strings.Repeat("x", 65))
	require.ErrorIs(t, err, domain.ErrValidationFailed)
	require.Contains(t, err.Error(), "id exceeds 64 characters")

	require.ErrorIs(t, ValidateID("principal", ""), domain.ErrValidationFailed)
	require.ErrorIs(t, ValidateID("principal", "two words"), domain.ErrValidationFailed)
}

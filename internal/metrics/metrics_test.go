package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordLedgerEntry(t *testing.T) {
	before := testutil.ToFloat64(ledgerAmount.WithLabelValues("seller_payout"))
	RecordLedgerEntry("seller_payout", -1940000)
	after := testutil.ToFloat64(ledgerAmount.WithLabelValues("seller_payout"))
	require.Equal(t, float64(1940000), after-before)
}

func TestRegistryGathers(t *testing.T) {
	RecordRelease("released")
	families, err := Registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

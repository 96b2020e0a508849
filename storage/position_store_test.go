package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionStore_SaveGetDeleteAll(t *testing.T) {
	store, err := OpenPositionStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	rec := NewPositionRecord("TXF", "TXFR1", "Buy", 2, 18500, 18400, time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC), "5m")
	require.NoError(t, store.Save("TXFR1", rec))

	got, found, err := store.Get("TXFR1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "TXF", got.Symbol)
	assert.Equal(t, 18500.0, got.EntryPrice)

	_, found, err = store.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete("TXFR1"))
	_, found, err = store.Get("TXFR1")
	require.NoError(t, err)
	assert.False(t, found)
}

// An older, shorter record (no optional fields) must still decode
// cleanly — the whole point of the pointer/omitempty optional fields.
func TestPositionStore_BackwardCompatibleRead(t *testing.T) {
	store, err := OpenPositionStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save("MXFR1", PositionRecord{
		Symbol: "MXF", SubSymbol: "MXFR1", Direction: "Sell", Quantity: 1,
		EntryPrice: 18600, StopLossPrice: 18650,
	}))

	got, found, err := store.Get("MXFR1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, got.TakeProfitPrice)
	assert.Nil(t, got.ActivationPrice)
}

package state

import (
	"path/filepath"
	"testing"

	"lobsim/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.Fill {
	return schema.Fill{Symbol: "BTC-USD", Side: side, Price: price, Qty: qty, Fee: 1}
}

func TestPositionReducer(t *testing.T) {
	r := NewPositionReducer()

	p := r.ApplyFill(fill(schema.OrderSideBuy, 100, 2))
	assert.Equal(t, schema.Quantity(2), p.Qty)
	assert.Equal(t, schema.Notional(200), p.Cost)

	p = r.ApplyFill(fill(schema.OrderSideBuy, 110, 2))
	assert.Equal(t, schema.Quantity(4), p.Qty)
	assert.Equal(t, schema.Price(105), p.AvgEntry())
	assert.Equal(t, schema.Notional(20), p.Unrealized(110))

	// sell through the long: close 4 at 120, open 1 short
	p = r.ApplyFill(fill(schema.OrderSideSell, 120, 5))
	assert.Equal(t, schema.Quantity(-1), p.Qty)
	assert.Equal(t, schema.Notional(60), p.Realized)
	assert.Equal(t, schema.Notional(-120), p.Cost)
	assert.Equal(t, schema.Price(120), p.AvgEntry())

	p = r.ApplyFill(fill(schema.OrderSideBuy, 100, 1))
	assert.Zero(t, p.Qty)
	assert.Zero(t, p.Cost)
	assert.Equal(t, schema.Notional(80), p.Realized)
	assert.Equal(t, schema.Fee(4), p.Fees)
	assert.Equal(t, uint64(4), p.Fills)
	assert.Equal(t, schema.Quantity(10), p.Volume)

	realized, fees := r.Totals()
	assert.Equal(t, schema.Notional(80), realized)
	assert.Equal(t, schema.Fee(4), fees)

	unchanged := r.ApplyFill(schema.Fill{Symbol: "BTC-USD", Side: schema.OrderSideUnknown, Qty: 3})
	assert.Equal(t, p, unchanged)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(fill(schema.OrderSideBuy, 100, 2))
	r.ApplyFill(schema.Fill{Symbol: "ETH-USD", Side: schema.OrderSideSell, Price: 50, Qty: 3})

	snap := r.SnapshotWithMeta(42, 1_000)
	snap.Digest = "abc"
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	require.NoError(t, WriteSnapshot(path, snap))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), loaded.LastSeq)
	require.NoError(t, CompareSnapshots(snap, loaded))

	restored := NewPositionReducer()
	restored.ApplySnapshot(loaded)
	assert.Equal(t, r.Positions(), restored.Positions())
	assert.Equal(t, r.AppendDigest(nil), restored.AppendDigest(nil))

	loaded.Positions[0].Qty++
	require.Error(t, CompareSnapshots(snap, loaded))
	loaded.Digest = "def"
	require.Error(t, CompareSnapshots(snap, loaded))
}

package snapshot

import (
	"testing"

	"lobsim/internal/book"
	"lobsim/internal/oms"
	"lobsim/internal/schema"
	"lobsim/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIsDetachedCopy(t *testing.T) {
	books := book.NewBooks(book.Options{}, "BTC-USD", "ETH-USD")
	orders := oms.New(oms.Config{})
	positions := state.NewPositionReducer()
	b := NewBuilder(books, orders, positions)

	_, err := books.Apply(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: "BTC-USD", Side: schema.OrderSideBuy, Price: 100, Qty: 3})
	require.NoError(t, err)
	h, err := orders.SubmitPlace(schema.Place("BTC-USD", schema.OrderSideSell, 105, 2, "c1"))
	require.NoError(t, err)
	positions.ApplyFill(schema.Fill{Symbol: "ETH-USD", Side: schema.OrderSideSell, Price: 10, Qty: 4})

	snap := b.Build(7, 11, 1_000, false)
	assert.Equal(t, uint64(7), snap.Tick)
	assert.Equal(t, []schema.Symbol{"BTC-USD", "ETH-USD"}, snap.Symbols())
	top, ok := snap.Top("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, schema.Price(100), top.Bid.Price)
	assert.Equal(t, schema.Quantity(-4), snap.Position("ETH-USD"))
	buy, sell := snap.OpenExposure("BTC-USD")
	assert.Zero(t, buy)
	assert.Equal(t, schema.Quantity(2), sell)
	assert.Equal(t, schema.Quantity(6), snap.GrossExposure())

	// later mutations do not leak into the snapshot
	_, err = books.Apply(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: "BTC-USD", Side: schema.OrderSideBuy, Price: 101, Qty: 1})
	require.NoError(t, err)
	_, _, err = orders.ApplyReportStrict(schema.VenueReport{OrderID: h.OrderID, Seq: 1, Type: schema.ReportRejected})
	require.NoError(t, err)
	positions.ApplyFill(schema.Fill{Symbol: "ETH-USD", Side: schema.OrderSideBuy, Price: 10, Qty: 4})

	top, _ = snap.Top("BTC-USD")
	assert.Equal(t, schema.Price(100), top.Bid.Price)
	o, ok := snap.Order("c1")
	require.True(t, ok)
	assert.Equal(t, oms.OrderStateNew, o.State)
	assert.Equal(t, schema.Quantity(-4), snap.Position("ETH-USD"))

	again := b.Build(8, 12, 2_000, true, "ETH-USD")
	assert.Equal(t, []schema.Symbol{"ETH-USD"}, again.Symbols())
	assert.Empty(t, again.OpenOrders("BTC-USD"))
	assert.True(t, again.Halted)
}

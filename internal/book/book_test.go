package book

import (
	"testing"

	"lobsim/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

const btc schema.Symbol = "BTC-USD"

func delta(seq uint64, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.MarketEvent {
	return schema.MarketEvent{
		Kind:      schema.MarketEventL2Delta,
		Symbol:    btc,
		Seq:       seq,
		SymbolSeq: seq,
		Side:      side,
		Price:     price,
		Qty:       qty,
	}
}

func snapshot(seq uint64, bids, asks []schema.Level) schema.MarketEvent {
	return schema.MarketEvent{
		Kind:      schema.MarketEventL2Snapshot,
		Symbol:    btc,
		Seq:       seq,
		SymbolSeq: seq,
		Bids:      bids,
		Asks:      asks,
	}
}

func TestBookDeltaMaintainsBest(t *testing.T) {
	b := New(btc, Options{})

	_, err := b.Apply(delta(1, schema.OrderSideBuy, 100, 5))
	require.NoError(t, err)
	_, err = b.Apply(delta(2, schema.OrderSideBuy, 99, 3))
	require.NoError(t, err)
	change, err := b.Apply(delta(3, schema.OrderSideSell, 102, 4))
	require.NoError(t, err)
	assert.True(t, change.AskChanged)
	assert.False(t, change.BidChanged)
	assert.False(t, change.Crossed)

	top := b.Top()
	assert.Equal(t, schema.Level{Price: 100, Qty: 5}, top.Bid)
	assert.Equal(t, schema.Level{Price: 102, Qty: 4}, top.Ask)
	mid, ok := top.Mid()
	require.True(t, ok)
	assert.Equal(t, schema.Price(101), mid)

	// removing the best bid promotes the next level
	change, err = b.Apply(delta(4, schema.OrderSideBuy, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, schema.Quantity(5), change.PrevQty)
	assert.True(t, change.BidChanged)
	assert.Equal(t, schema.Level{Price: 99, Qty: 3}, b.Top().Bid)

	// a worse level leaves the best untouched
	change, err = b.Apply(delta(5, schema.OrderSideBuy, 90, 7))
	require.NoError(t, err)
	assert.False(t, change.BidChanged)

	bids, asks := b.Depth(0)
	assert.Equal(t, []schema.Level{{Price: 99, Qty: 3}, {Price: 90, Qty: 7}}, bids)
	assert.Equal(t, []schema.Level{{Price: 102, Qty: 4}}, asks)

	// removing an absent level is a no-op
	change, err = b.Apply(delta(6, schema.OrderSideSell, 150, 0))
	require.NoError(t, err)
	assert.Zero(t, change.PrevQty)
	nb, na := b.LevelCount()
	assert.Equal(t, 2, nb)
	assert.Equal(t, 1, na)
}

func TestBookCrossedDetection(t *testing.T) {
	b := New(btc, Options{})
	_, err := b.Apply(delta(1, schema.OrderSideBuy, 100, 5))
	require.NoError(t, err)

	change, err := b.Apply(delta(2, schema.OrderSideSell, 101, 1))
	require.NoError(t, err)
	assert.False(t, change.Crossed)

	change, err = b.Apply(delta(3, schema.OrderSideSell, 100, 1))
	require.NoError(t, err)
	assert.True(t, change.Crossed)
	assert.True(t, change.Top.Crossed())
	assert.Equal(t, schema.Price(100), change.Top.Ask.Price)
}

func TestBookSnapshotIsAtomic(t *testing.T) {
	b := New(btc, Options{})
	_, err := b.Apply(snapshot(1,
		[]schema.Level{{Price: 98, Qty: 1}, {Price: 100, Qty: 2}, {Price: 99, Qty: 0}},
		[]schema.Level{{Price: 103, Qty: 4}, {Price: 101, Qty: 3}},
	))
	require.NoError(t, err)

	bids, asks := b.Depth(0)
	assert.Equal(t, []schema.Level{{Price: 100, Qty: 2}, {Price: 98, Qty: 1}}, bids)
	assert.Equal(t, []schema.Level{{Price: 101, Qty: 3}, {Price: 103, Qty: 4}}, asks)

	testCases := []struct {
		desc string
		bids []schema.Level
		asks []schema.Level
	}{
		{"duplicate bid", []schema.Level{{Price: 100, Qty: 1}, {Price: 100, Qty: 2}}, nil},
		{"negative qty", nil, []schema.Level{{Price: 105, Qty: -1}}},
		{"zero price", []schema.Level{{Price: 0, Qty: 1}}, nil},
	}

	seq := uint64(2)
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := b.Apply(snapshot(seq, tc.bids, tc.asks))
			require.True(t, errors.Is(err, ErrInvalidEvent))
			seq++

			gotBids, gotAsks := b.Depth(0)
			assert.Equal(t, bids, gotBids)
			assert.Equal(t, asks, gotAsks)
		})
	}
}

func TestBookRejectsInvalidDeltas(t *testing.T) {
	testCases := []struct {
		desc string
		ev   schema.MarketEvent
	}{
		{"zero price", delta(1, schema.OrderSideBuy, 0, 1)},
		{"negative price", delta(1, schema.OrderSideBuy, -5, 1)},
		{"negative qty", delta(1, schema.OrderSideSell, 100, -1)},
		{"unknown side", delta(1, schema.OrderSideUnknown, 100, 1)},
		{"unknown kind", schema.MarketEvent{Symbol: btc, SymbolSeq: 1}},
		{"foreign symbol", schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: "ETH-USD", Side: schema.OrderSideBuy, Price: 1, Qty: 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			b := New(btc, Options{})
			_, err := b.Apply(tc.ev)
			require.True(t, errors.Is(err, ErrInvalidEvent))
			nb, na := b.LevelCount()
			assert.Zero(t, nb+na)
		})
	}
}

func TestBookSequence(t *testing.T) {
	b := New(btc, Options{})
	_, err := b.Apply(delta(10, schema.OrderSideBuy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), b.LastSeq())

	_, err = b.Apply(delta(10, schema.OrderSideBuy, 101, 1))
	require.True(t, errors.Is(err, ErrInvalidEvent))

	_, err = b.Apply(delta(12, schema.OrderSideBuy, 101, 1))
	require.True(t, errors.Is(err, ErrSequenceGap))
	assert.False(t, errors.Is(err, ErrInvalidEvent))
	assert.Equal(t, schema.Quantity(0), b.QtyAt(schema.OrderSideBuy, 101))
	assert.Equal(t, uint64(10), b.LastSeq())

	// a malformed payload with a valid sequence still advances it
	_, err = b.Apply(delta(11, schema.OrderSideBuy, -1, 1))
	require.True(t, errors.Is(err, ErrInvalidEvent))
	assert.Equal(t, uint64(11), b.LastSeq())

	b.Resync(20)
	_, err = b.Apply(delta(20, schema.OrderSideBuy, 101, 1))
	require.NoError(t, err)
	assert.Equal(t, schema.Quantity(1), b.QtyAt(schema.OrderSideBuy, 101))
}

func TestBookTradeModes(t *testing.T) {
	levels := []schema.Level{{Price: 101, Qty: 5}}
	trade := schema.MarketEvent{
		Kind:      schema.MarketEventTrade,
		Symbol:    btc,
		SymbolSeq: 2,
		Side:      schema.OrderSideBuy,
		Price:     101,
		Qty:       2,
	}

	info := New(btc, Options{TradeMode: TradeInformational})
	_, err := info.Apply(snapshot(1, nil, levels))
	require.NoError(t, err)
	_, err = info.Apply(trade)
	require.NoError(t, err)
	assert.Equal(t, schema.Quantity(5), info.QtyAt(schema.OrderSideSell, 101))
	top := info.Top()
	require.True(t, top.HasTrade)
	assert.Equal(t, schema.Level{Price: 101, Qty: 2}, top.LastTrade)
	ref, ok := top.Reference()
	require.True(t, ok)
	assert.Equal(t, schema.Price(101), ref)

	deplete := New(btc, Options{TradeMode: TradeDeplete})
	_, err = deplete.Apply(snapshot(1, nil, levels))
	require.NoError(t, err)
	change, err := deplete.Apply(trade)
	require.NoError(t, err)
	assert.Equal(t, schema.Quantity(5), change.PrevQty)
	assert.Equal(t, schema.Quantity(3), deplete.QtyAt(schema.OrderSideSell, 101))

	trade.SymbolSeq = 3
	trade.Qty = 10
	change, err = deplete.Apply(trade)
	require.NoError(t, err)
	assert.True(t, change.AskChanged)
	_, hasAsk := deplete.BestAsk()
	assert.False(t, hasAsk)
}

func TestBooksArena(t *testing.T) {
	bs := NewBooks(Options{}, "ETH-USD", btc)
	assert.Equal(t, []schema.Symbol{btc, "ETH-USD"}, bs.Symbols())

	_, err := bs.Apply(delta(1, schema.OrderSideBuy, 100, 1))
	require.NoError(t, err)
	top, ok := bs.Top(btc)
	require.True(t, ok)
	assert.True(t, top.HasBid)

	_, ok = bs.Top("SOL-USD")
	assert.False(t, ok)

	_, err = bs.Apply(schema.MarketEvent{Kind: schema.MarketEventL2Delta})
	require.True(t, errors.Is(err, ErrInvalidEvent))

	a := bs.AppendDigest(nil)
	other := NewBooks(Options{}, btc, "ETH-USD")
	_, err = other.Apply(delta(1, schema.OrderSideBuy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, a, other.AppendDigest(nil))
}

func BenchmarkBookDelta(b *testing.B) {
	bk := New(btc, Options{})
	for i := range 64 {
		_, _ = bk.Apply(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: btc, Side: schema.OrderSideBuy, Price: schema.Price(1000 - i), Qty: 1})
		_, _ = bk.Apply(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: btc, Side: schema.OrderSideSell, Price: schema.Price(1001 + i), Qty: 1})
	}
	var qty schema.Quantity
	for b.Loop() {
		qty = qty%7 + 1
		_, _ = bk.Apply(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: btc, Side: schema.OrderSideBuy, Price: 1000, Qty: qty})
		_ = bk.Top()
	}
}

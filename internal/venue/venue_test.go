package venue

import (
	"testing"

	"lobsim/internal/book"
	"lobsim/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

const btc schema.Symbol = "BTC-USD"

func top(bid, ask schema.Price) book.Top {
	t := book.Top{Symbol: btc}
	if bid > 0 {
		t.Bid, t.HasBid = schema.Level{Price: bid, Qty: 5}, true
	}
	if ask > 0 {
		t.Ask, t.HasAsk = schema.Level{Price: ask, Qty: 5}, true
	}
	return t
}

func deltaEvent(ts int64) schema.MarketEvent {
	return schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: btc, TsEvent: ts}
}

func limit(id uint64, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.VenueRequest {
	return schema.VenueRequest{
		Kind:        schema.RequestPlace,
		OrderID:     id,
		Symbol:      btc,
		Side:        side,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       price,
		Qty:         qty,
	}
}

func types(reports []schema.VenueReport) []schema.ReportType {
	out := make([]schema.ReportType, len(reports))
	for i, r := range reports {
		out[i] = r.Type
	}
	return out
}

func TestSimVenueTakerFill(t *testing.T) {
	v := NewSimVenue(Config{TakerFeeBps: 10})
	v.OnMarket(deltaEvent(5), top(99, 101))

	ack := v.Submit(limit(1, schema.OrderSideBuy, 101, 4))
	require.True(t, ack.Accepted())
	reports := v.Drain(nil)
	assert.Equal(t, []schema.ReportType{schema.ReportAccepted, schema.ReportFill}, types(reports))
	assert.Equal(t, uint64(1), reports[0].Seq)
	assert.Equal(t, uint64(2), reports[1].Seq)
	assert.Equal(t, "S-1", reports[0].VenueOrderID)
	assert.Equal(t, schema.Quantity(4), reports[1].FilledQtyDelta)
	assert.Equal(t, schema.Price(101), reports[1].FillPrice)
	assert.Equal(t, schema.Fee(0), reports[1].Fee)
	assert.Equal(t, int64(5), reports[1].TsEvent)
	assert.Empty(t, v.Drain(nil))
	assert.Zero(t, v.Resting())

	v.Submit(limit(2, schema.OrderSideSell, 99, 1000))
	reports = v.Drain(nil)
	assert.Equal(t, schema.Fee(99), reports[1].Fee)
}

func TestSimVenueRestingAndPassiveFills(t *testing.T) {
	v := NewSimVenue(Config{MakerFeeBps: -1})
	v.OnMarket(deltaEvent(1), top(99, 110))

	v.Submit(limit(20, schema.OrderSideBuy, 105, 1))
	v.Submit(limit(10, schema.OrderSideBuy, 106, 1))
	reports := v.Drain(nil)
	assert.Equal(t, []schema.ReportType{schema.ReportAccepted, schema.ReportWorking, schema.ReportAccepted, schema.ReportWorking}, types(reports))
	assert.Equal(t, 2, v.Resting())

	v.OnMarket(deltaEvent(2), top(99, 104))
	reports = v.Drain(nil)
	require.Len(t, reports, 2)
	assert.Equal(t, uint64(10), reports[0].OrderID)
	assert.Equal(t, uint64(20), reports[1].OrderID)
	for _, r := range reports {
		assert.Equal(t, schema.ReportFill, r.Type)
		assert.Equal(t, schema.Price(104), r.FillPrice)
		assert.Equal(t, uint64(3), r.Seq)
	}
}

func TestSimVenueTimeInForce(t *testing.T) {
	v := NewSimVenue(Config{})
	v.OnMarket(deltaEvent(1), top(99, 101))

	ioc := limit(1, schema.OrderSideBuy, 100, 1)
	ioc.TimeInForce = schema.TimeInForceIOC
	v.Submit(ioc)
	assert.Equal(t, []schema.ReportType{schema.ReportAccepted, schema.ReportWorking, schema.ReportCanceled}, types(v.Drain(nil)))

	market := schema.VenueRequest{OrderID: 2, Symbol: btc, Side: schema.OrderSideSell, Type: schema.OrderTypeMarket, Qty: 2}
	v.Submit(market)
	reports := v.Drain(nil)
	assert.Equal(t, []schema.ReportType{schema.ReportAccepted, schema.ReportFill}, types(reports))
	assert.Equal(t, schema.Price(99), reports[1].FillPrice)

	gtd := limit(3, schema.OrderSideSell, 120, 1)
	gtd.TimeInForce = schema.TimeInForceGTD
	gtd.ExpireAt = 50
	v.Submit(gtd)
	v.Drain(nil)
	v.OnMarket(schema.MarketEvent{Kind: schema.MarketEventClockTick, TsEvent: 50}, book.Top{})
	assert.Zero(t, v.Resting())
	assert.Empty(t, v.Drain(nil))
	ack := v.Cancel(schema.VenueRequest{OrderID: 3})
	require.True(t, errors.Is(ack.Err, ErrUnknownOrder))
}

func TestSimVenuePartialFillsAreSeeded(t *testing.T) {
	run := func() []schema.VenueReport {
		v := NewSimVenue(Config{PartialFillPct: 100, Seed: 7})
		v.OnMarket(deltaEvent(1), top(99, 101))
		for id := uint64(1); id <= 5; id++ {
			v.Submit(limit(id, schema.OrderSideBuy, 101, 10))
		}
		return v.Drain(nil)
	}

	first := run()
	assert.Equal(t, first, run())
	for i := 0; i < len(first); i += 2 {
		assert.Equal(t, schema.ReportAccepted, first[i].Type)
		require.Equal(t, schema.ReportPartialFill, first[i+1].Type)
		assert.Greater(t, first[i+1].FilledQtyDelta, schema.Quantity(0))
		assert.Less(t, first[i+1].FilledQtyDelta, schema.Quantity(10))
	}

	fok := NewSimVenue(Config{PartialFillPct: 100})
	fok.OnMarket(deltaEvent(1), top(99, 101))
	req := limit(1, schema.OrderSideBuy, 101, 10)
	req.TimeInForce = schema.TimeInForceFOK
	fok.Submit(req)
	assert.Equal(t, []schema.ReportType{schema.ReportAccepted, schema.ReportWorking, schema.ReportCanceled}, types(fok.Drain(nil)))
}

func TestSimVenueCancelReplace(t *testing.T) {
	v := NewSimVenue(Config{})
	v.OnMarket(deltaEvent(1), top(99, 110))
	v.Submit(limit(1, schema.OrderSideBuy, 100, 3))
	v.Drain(nil)

	ack := v.Replace(schema.VenueRequest{OrderID: 1, Price: 101, Qty: 0})
	require.True(t, errors.Is(ack.Err, ErrInvalidRequest))

	ack = v.Replace(schema.VenueRequest{OrderID: 1, Price: 101, Qty: 4})
	require.True(t, ack.Accepted())
	reports := v.Drain(nil)
	require.Len(t, reports, 1)
	assert.Equal(t, schema.ReportReplaced, reports[0].Type)
	assert.Equal(t, schema.Quantity(4), reports[0].NewQty)

	ack = v.Replace(schema.VenueRequest{OrderID: 1, Price: 110, Qty: 4})
	require.True(t, ack.Accepted())
	assert.Equal(t, []schema.ReportType{schema.ReportReplaced, schema.ReportFill}, types(v.Drain(nil)))

	v.Submit(limit(2, schema.OrderSideSell, 120, 1))
	v.Drain(nil)
	require.True(t, v.Cancel(schema.VenueRequest{OrderID: 2}).Accepted())
	assert.Equal(t, []schema.ReportType{schema.ReportCanceled}, types(v.Drain(nil)))

	require.True(t, errors.Is(v.Submit(limit(2, schema.OrderSideSell, 120, 1)).Err, ErrDuplicateOrder))
	require.True(t, errors.Is(v.Submit(limit(3, schema.OrderSideSell, 0, 1)).Err, ErrInvalidRequest))
}

func TestPaperVenueTradeThrough(t *testing.T) {
	v := NewPaperVenue(Config{})
	v.OnMarket(deltaEvent(1), top(99, 101))

	v.Submit(limit(1, schema.OrderSideBuy, 100, 3))
	v.Submit(limit(2, schema.OrderSideBuy, 100, 3))
	assert.Equal(t, []schema.ReportType{schema.ReportAccepted, schema.ReportWorking, schema.ReportAccepted, schema.ReportWorking}, types(v.Drain(nil)))

	trade := schema.MarketEvent{Kind: schema.MarketEventTrade, Symbol: btc, Side: schema.OrderSideSell, Price: 100, Qty: 4}
	v.OnMarket(trade, top(99, 101))
	assert.Empty(t, v.Drain(nil), "a print at the order price does not trade through")

	trade.Price = 99
	v.OnMarket(trade, top(99, 101))
	reports := v.Drain(nil)
	require.Len(t, reports, 2)
	assert.Equal(t, schema.ReportFill, reports[0].Type)
	assert.Equal(t, uint64(1), reports[0].OrderID)
	assert.Equal(t, schema.Price(100), reports[0].FillPrice)
	assert.Equal(t, schema.ReportPartialFill, reports[1].Type)
	assert.Equal(t, schema.Quantity(1), reports[1].FilledQtyDelta)
	assert.Equal(t, 1, v.Resting())
}

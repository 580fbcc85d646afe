package codec

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"lobsim/internal/schema"
	"lobsim/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

const btc schema.Symbol = "BTC-USD"

func TestBinaryPayloads(t *testing.T) {
	t.Run("market event", func(t *testing.T) {
		ev := schema.MarketEvent{
			Kind:      schema.MarketEventL2Snapshot,
			Symbol:    btc,
			Seq:       7,
			SymbolSeq: 3,
			TsEvent:   1_700_000_000,
			Bids:      []schema.Level{{Price: 99, Qty: 2}, {Price: 98, Qty: 1}},
			Asks:      []schema.Level{{Price: 101, Qty: 4}},
		}
		got, ok := DecodeMarketEvent(AppendMarketEvent(nil, ev))
		require.True(t, ok)
		assert.Equal(t, ev, got)
	})

	t.Run("report", func(t *testing.T) {
		rep := schema.VenueReport{OrderID: 1, Seq: 3, Type: schema.ReportFill, VenueOrderID: "sim-1", FilledQtyDelta: 4, FillPrice: 100000, Fee: -2, TsEvent: 9}
		got, ok := DecodeVenueReport(AppendVenueReport(nil, rep))
		require.True(t, ok)
		assert.Equal(t, rep, got)
	})

	t.Run("risk decision", func(t *testing.T) {
		orig := schema.Place(btc, schema.OrderSideBuy, 100, 50, "c1")
		next := orig
		next.Qty = 10
		d := schema.RiskDecision{Action: schema.RiskActionTransform, Reason: schema.RiskReasonMaxQty, Policy: "max_order_size", Original: orig, Intent: next}
		got, ok := DecodeRiskDecision(AppendRiskDecision(nil, d))
		require.True(t, ok)
		assert.Equal(t, d, got)
	})

	t.Run("fill and request", func(t *testing.T) {
		fill := schema.Fill{OrderID: 2, Symbol: btc, Side: schema.OrderSideSell, Price: 10, Qty: 3, Fee: 1, TsEvent: 5}
		gotFill, ok := DecodeFill(AppendFill(nil, fill))
		require.True(t, ok)
		assert.Equal(t, fill, gotFill)

		req := schema.VenueRequest{Kind: schema.RequestReplace, OrderID: 2, ClientID: "c2", VenueOrderID: "sim-2", Symbol: btc, Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit, TimeInForce: schema.TimeInForceGTC, Price: 10, Qty: 3}
		gotReq, ok := DecodeVenueRequest(AppendVenueRequest(nil, req))
		require.True(t, ok)
		assert.Equal(t, req, gotReq)
	})
}

func TestBinaryRejectsTruncation(t *testing.T) {
	payload := AppendIntent(nil, schema.Place(btc, schema.OrderSideBuy, 100, 4, "c1"))
	for _, n := range []int{0, 1, 9, len(payload) - 1} {
		_, ok := DecodeIntent(payload[:n])
		assert.False(t, ok, "len=%d", n)
	}
	_, ok := DecodeIntent(append(payload, 0))
	assert.False(t, ok, "trailing bytes")

	// a level count larger than the remaining payload must not allocate
	ev := AppendMarketEvent(nil, schema.MarketEvent{Kind: schema.MarketEventL2Snapshot, Symbol: btc})
	ev[len(ev)-8] = 0xff
	_, ok = DecodeMarketEvent(ev)
	assert.False(t, ok)
}

func TestIntentEncodingIsStable(t *testing.T) {
	in := schema.Place(btc, schema.OrderSideBuy, 100000, 4, "c1")
	assert.Equal(t, AppendIntent(nil, in), AppendIntent(make([]byte, 0, 8), in))
	assert.NotEqual(t, AppendIntent(nil, in), AppendIntent(nil, schema.Cancel("c1")))
}

func TestDecodeEventJSON(t *testing.T) {
	tests := []struct {
		name string
		line string
		want schema.Event
		err  error
	}{
		{
			name: "delta",
			line: `{"seq":2,"type":"l2_delta","symbol":"BTC-USD","ts":10,"side":"ask","price":101,"qty":0}`,
			want: schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: btc, Seq: 2, TsEvent: 10, Side: schema.OrderSideSell, Price: 101}),
		},
		{
			name: "snapshot",
			line: `{"seq":1,"type":"l2_snapshot","symbol":"BTC-USD","bids":[[99,2]],"asks":[[101,1]]}`,
			want: schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventL2Snapshot, Symbol: btc, Seq: 1, Bids: []schema.Level{{Price: 99, Qty: 2}}, Asks: []schema.Level{{Price: 101, Qty: 1}}}),
		},
		{
			name: "clock",
			line: `{"seq":3,"type":"clock_tick","ts":50}`,
			want: schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventClockTick, Seq: 3, TsEvent: 50}),
		},
		{
			name: "report",
			line: `{"seq":4,"type":"report","ts":60,"report":{"order_id":1,"seq":2,"kind":"fill","filled_qty":4,"fill_price":100000}}`,
			want: schema.ReportInput(4, schema.VenueReport{OrderID: 1, Seq: 2, Type: schema.ReportFill, FilledQtyDelta: 4, FillPrice: 100000, TsEvent: 60}),
		},
		{name: "blank", line: "   ", err: ErrEmptyLine},
		{name: "bad json", line: `{"seq":`, err: ErrInvalidLine},
		{name: "unknown type", line: `{"seq":1,"type":"quote"}`, err: ErrInvalidLine},
		{name: "unknown side", line: `{"seq":1,"type":"l2_delta","side":"up"}`, err: ErrInvalidLine},
		{name: "unknown report", line: `{"seq":1,"type":"report","report":{"kind":"done"}}`, err: ErrInvalidLine},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeEventJSON([]byte(tc.line))
			if tc.err != nil {
				require.True(t, errors.Is(err, tc.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLineWriterReader(t *testing.T) {
	events := []schema.Event{
		schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventL2Snapshot, Symbol: btc, Seq: 1, TsEvent: 1, Bids: []schema.Level{{Price: 99, Qty: 2}}, Asks: []schema.Level{{Price: 101, Qty: 1}}}),
		schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventTrade, Symbol: btc, Seq: 2, TsEvent: 2, Side: schema.OrderSideBuy, Price: 101, Qty: 1}),
		schema.ReportInput(3, schema.VenueReport{OrderID: 1, Seq: 1, Type: schema.ReportAccepted, VenueOrderID: "v1", TsEvent: 3}),
	}
	var buf bytes.Buffer
	w := NewLineWriter(&buf)
	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Flush())

	r := NewLineReader(strings.NewReader(buf.String() + "\n\n"))
	for _, want := range events {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.Next()
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, 5, r.Line())
}

func BenchmarkDecodeEventJSON(b *testing.B) {
	line := []byte(`{"seq":2,"type":"l2_delta","symbol":"BTC-USD","ts":10,"side":"bid","price":101,"qty":3}`)
	for b.Loop() {
		_, _ = DecodeEventJSON(line)
	}
}

func TestAppendEventJSONRejectsOutputs(t *testing.T) {
	_, err := AppendEventJSON(nil, schema.Event{Header: schema.NewHeader(schema.EventFill, 0, 1, 1, 0)})
	assert.True(t, errors.Is(err, exception.ErrTypeUnsupported))
}

package engine

import (
	"context"
	"io"
	"math/rand/v2"
	"testing"

	"lobsim/internal/book"
	"lobsim/internal/codec"
	"lobsim/internal/obs"
	"lobsim/internal/oms"
	"lobsim/internal/risk"
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"
	"lobsim/internal/strategy"
	"lobsim/internal/venue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

const btc schema.Symbol = "BTC-USD"

// scripted emits fixed intents on chosen input sequences and records what it saw.
type scripted struct {
	strategy.Noop
	market  map[uint64][]schema.Intent
	timers  int
	updates []oms.Update
}

func (s *scripted) OnMarket(_ *snapshot.Snapshot, c book.BookChange, dst []schema.Intent) []schema.Intent {
	return append(dst, s.market[c.Seq]...)
}

func (s *scripted) OnReport(_ *snapshot.Snapshot, u oms.Update, dst []schema.Intent) []schema.Intent {
	s.updates = append(s.updates, u)
	return dst
}

func (s *scripted) OnTimer(_ *snapshot.Snapshot, dst []schema.Intent) []schema.Intent {
	s.timers++
	return dst
}

// silentVenue accepts everything and never reports; tests feed reports as inputs.
type silentVenue struct{}

func (silentVenue) Submit(req schema.VenueRequest) venue.Ack  { return venue.Ack{OrderID: req.OrderID} }
func (silentVenue) Cancel(req schema.VenueRequest) venue.Ack  { return venue.Ack{OrderID: req.OrderID} }
func (silentVenue) Replace(req schema.VenueRequest) venue.Ack { return venue.Ack{OrderID: req.OrderID} }
func (silentVenue) Drain(dst []schema.VenueReport) []schema.VenueReport {
	return dst
}

func snapshotEvent(seq uint64, bids, asks []schema.Level) schema.Event {
	return schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventL2Snapshot, Symbol: btc, Seq: seq, TsEvent: int64(seq), Bids: bids, Asks: asks})
}

func deltaEvent(seq uint64, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.Event {
	return schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventL2Delta, Symbol: btc, Seq: seq, TsEvent: int64(seq), Side: side, Price: price, Qty: qty})
}

func clockEvent(seq uint64, ts int64) schema.Event {
	return schema.MarketInput(schema.MarketEvent{Kind: schema.MarketEventClockTick, Seq: seq, TsEvent: ts})
}

func newEngine(t *testing.T, cfg Config, deps Deps) (*Engine, *Collector) {
	t.Helper()
	col := &Collector{}
	deps.Sink = col
	if deps.Venue == nil {
		deps.Venue = venue.NewSimVenue(venue.Config{})
	}
	if cfg.Symbols == nil {
		cfg.Symbols = []schema.Symbol{btc}
	}
	e, err := New(cfg, deps)
	require.NoError(t, err)
	return e, col
}

func process(t *testing.T, e *Engine, events ...schema.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, e.Process(ev))
	}
}

func TestPlaceFillScenario(t *testing.T) {
	strat := &scripted{market: map[uint64][]schema.Intent{
		2: {schema.Place(btc, schema.OrderSideBuy, 100000, 4, "c1")},
	}}
	e, col := newEngine(t, Config{}, Deps{Strategy: strat})

	process(t, e,
		snapshotEvent(1, []schema.Level{{Price: 99990, Qty: 5}}, []schema.Level{{Price: 100000, Qty: 10}}),
		deltaEvent(2, schema.OrderSideBuy, 99980, 1),
	)

	o, ok := e.OrderByClientID("c1")
	require.True(t, ok)
	assert.Equal(t, oms.OrderStateFilled, o.State)
	assert.Equal(t, schema.Quantity(4), o.FilledQty)
	assert.Equal(t, []oms.OrderState{oms.OrderStateNew, oms.OrderStateAccepted, oms.OrderStateFilled}, col.States(o.ID))

	require.Len(t, col.Fills, 1)
	assert.Equal(t, schema.Quantity(4), col.Fills[0].Qty)
	assert.Equal(t, schema.Price(100000), col.Fills[0].Price)

	positions := e.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, schema.Quantity(4), positions[0].Qty)
	assert.Empty(t, col.Errors)
	assert.Len(t, strat.updates, 2)
	assert.Equal(t, 0, e.PendingReports())
}

func TestCrossedBook(t *testing.T) {
	events := []schema.Event{
		snapshotEvent(1, []schema.Level{{Price: 100, Qty: 1}}, []schema.Level{{Price: 102, Qty: 1}}),
		deltaEvent(2, schema.OrderSideSell, 101, 1),
		deltaEvent(3, schema.OrderSideSell, 100, 1),
	}

	t.Run("warn", func(t *testing.T) {
		m := obs.NewMetrics()
		e, col := newEngine(t, Config{}, Deps{Metrics: m})
		process(t, e, events...)
		require.Len(t, col.Warnings, 1)
		assert.True(t, errors.Is(col.Warnings[0], ErrCrossedBook))
		assert.Equal(t, uint64(1), m.Snapshot().Count(obs.CounterCrossedBook))
		assert.False(t, e.Halted())

		top, ok := e.Top(btc)
		require.True(t, ok)
		assert.True(t, top.Crossed())
	})

	t.Run("halt", func(t *testing.T) {
		strat := &scripted{market: map[uint64][]schema.Intent{
			4: {schema.Place(btc, schema.OrderSideBuy, 99, 1, "c1")},
		}}
		e, col := newEngine(t, Config{CrossedPolicy: CrossedHalt}, Deps{Strategy: strat})
		process(t, e, append(events, deltaEvent(4, schema.OrderSideBuy, 98, 1))...)
		assert.True(t, e.Halted())
		require.Len(t, col.Decisions, 1)
		assert.Equal(t, schema.RiskActionReject, col.Decisions[0].Action)
		assert.Equal(t, schema.RiskReasonKillSwitch, col.Decisions[0].Reason)
		assert.Empty(t, col.Requests)
	})

	t.Run("ignore", func(t *testing.T) {
		e, col := newEngine(t, Config{CrossedPolicy: CrossedIgnore}, Deps{})
		process(t, e, events...)
		assert.Empty(t, col.Warnings)
		assert.False(t, e.Halted())
	})
}

func TestCancelUnknownIsWarning(t *testing.T) {
	strat := &scripted{market: map[uint64][]schema.Intent{1: {schema.Cancel("nope")}}}
	e, col := newEngine(t, Config{}, Deps{Strategy: strat})
	process(t, e, snapshotEvent(1, []schema.Level{{Price: 100, Qty: 1}}, []schema.Level{{Price: 101, Qty: 1}}))

	require.Len(t, col.Decisions, 1)
	assert.Equal(t, schema.RiskActionAllow, col.Decisions[0].Action)
	assert.Empty(t, col.Requests)
	assert.Empty(t, col.Errors)
	require.Len(t, col.Warnings, 1)
	assert.True(t, errors.Is(col.Warnings[0], oms.ErrUnknownOrder))
}

func TestMaxOrderSizeClamp(t *testing.T) {
	strat := &scripted{market: map[uint64][]schema.Intent{
		1: {schema.Place(btc, schema.OrderSideBuy, 90, 50, "c1")},
	}}
	chain := risk.NewChain(false, &risk.MaxOrderSize{Default: 10})
	e, col := newEngine(t, Config{}, Deps{Strategy: strat, Chain: chain})
	process(t, e, snapshotEvent(1, []schema.Level{{Price: 100, Qty: 1}}, []schema.Level{{Price: 101, Qty: 1}}))

	require.Len(t, col.Decisions, 1)
	d := col.Decisions[0]
	assert.Equal(t, schema.RiskActionTransform, d.Action)
	assert.Equal(t, schema.Quantity(50), d.Original.Qty)
	assert.Equal(t, schema.Quantity(10), d.Intent.Qty)

	o, ok := e.OrderByClientID("c1")
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(10), o.OriginalQty)
	assert.Equal(t, oms.OrderStateWorking, o.State)
	require.Len(t, col.Requests, 1)
	assert.Equal(t, schema.Quantity(10), col.Requests[0].Qty)
}

func TestSequenceRegressionIsFatal(t *testing.T) {
	e, _ := newEngine(t, Config{}, Deps{})
	process(t, e, snapshotEvent(2, nil, []schema.Level{{Price: 101, Qty: 1}}))
	assert.True(t, errors.Is(e.Process(deltaEvent(2, schema.OrderSideBuy, 100, 1)), ErrSequenceRegression))
	assert.True(t, errors.Is(e.Process(deltaEvent(1, schema.OrderSideBuy, 100, 1)), ErrSequenceRegression))
	assert.Equal(t, uint64(2), e.Seq())

	_, err := New(Config{GapPolicy: "wait"}, Deps{Venue: silentVenue{}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	_, err = New(Config{}, Deps{})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestInvalidEventIsContained(t *testing.T) {
	e, col := newEngine(t, Config{}, Deps{})
	process(t, e,
		deltaEvent(1, schema.OrderSideBuy, -5, 1),
		deltaEvent(2, schema.OrderSideBuy, 100, 1),
	)
	require.Len(t, col.Errors, 1)
	assert.True(t, errors.Is(col.Errors[0], book.ErrInvalidEvent))
	top, _ := e.Top(btc)
	assert.Equal(t, schema.Price(100), top.Bid.Price)
}

func symbolDelta(seq, symbolSeq uint64, price schema.Price) schema.Event {
	ev := deltaEvent(seq, schema.OrderSideBuy, price, 1)
	ev.Market.SymbolSeq = symbolSeq
	return ev
}

func TestGapPolicy(t *testing.T) {
	t.Run("drop", func(t *testing.T) {
		e, col := newEngine(t, Config{GapPolicy: GapDrop}, Deps{})
		process(t, e, symbolDelta(1, 1, 100), symbolDelta(2, 3, 101), symbolDelta(3, 4, 102), symbolDelta(4, 2, 103))
		require.Len(t, col.Warnings, 1)
		assert.True(t, errors.Is(col.Warnings[0], book.ErrSequenceGap))
		assert.Len(t, col.Errors, 1, "stale sequence after resync")

		bids, _ := e.Depth(btc, 0)
		assert.Equal(t, []schema.Level{{Price: 102, Qty: 1}, {Price: 100, Qty: 1}}, bids)
	})

	t.Run("drop resumes feed", func(t *testing.T) {
		m := obs.NewMetrics()
		e, col := newEngine(t, Config{}, Deps{Metrics: m})
		process(t, e, symbolDelta(1, 1, 100), symbolDelta(2, 3, 101), symbolDelta(3, 4, 102), symbolDelta(4, 5, 103))
		require.Len(t, col.Warnings, 1)
		assert.True(t, errors.Is(col.Warnings[0], book.ErrSequenceGap))
		assert.Empty(t, col.Errors)
		assert.Equal(t, uint64(1), m.Snapshot().Count(obs.CounterBookGap))

		top, ok := e.Top(btc)
		require.True(t, ok)
		assert.Equal(t, schema.Price(103), top.Bid.Price)
		b, _ := e.books.Get(btc)
		assert.Equal(t, uint64(5), b.LastSeq())
	})

	t.Run("buffer fills gap", func(t *testing.T) {
		e, col := newEngine(t, Config{GapPolicy: GapBuffer}, Deps{})
		process(t, e, symbolDelta(1, 1, 100), symbolDelta(2, 3, 102), symbolDelta(3, 2, 101))
		assert.Empty(t, col.Errors)

		bids, _ := e.Depth(btc, 0)
		assert.Equal(t, []schema.Level{{Price: 102, Qty: 1}, {Price: 101, Qty: 1}, {Price: 100, Qty: 1}}, bids)
		assert.Empty(t, e.held)
	})

	t.Run("buffer resyncs after max ticks", func(t *testing.T) {
		m := obs.NewMetrics()
		e, _ := newEngine(t, Config{GapPolicy: GapBuffer, MaxGapTicks: 2}, Deps{Metrics: m})
		process(t, e, symbolDelta(1, 1, 100), symbolDelta(2, 3, 102), clockEvent(3, 3))
		bids, _ := e.Depth(btc, 0)
		assert.Len(t, bids, 1)

		process(t, e, clockEvent(4, 4))
		bids, _ = e.Depth(btc, 0)
		assert.Len(t, bids, 2)
		assert.Equal(t, uint64(1), m.Snapshot().Count(obs.CounterBookResync))
	})
}

func reportEvent(seq uint64, r schema.VenueReport) schema.Event {
	return schema.ReportInput(seq, r)
}

func TestReportPolicy(t *testing.T) {
	place := &scripted{market: map[uint64][]schema.Intent{
		1: {schema.Place(btc, schema.OrderSideBuy, 99, 2, "c1")},
	}}
	open := snapshotEvent(1, []schema.Level{{Price: 100, Qty: 1}}, []schema.Level{{Price: 101, Qty: 1}})
	working := schema.VenueReport{OrderID: 1, Seq: 2, Type: schema.ReportWorking}
	accepted := schema.VenueReport{OrderID: 1, Seq: 1, Type: schema.ReportAccepted, VenueOrderID: "v1"}

	t.Run("strict", func(t *testing.T) {
		e, col := newEngine(t, Config{}, Deps{Strategy: place, Venue: silentVenue{}})
		process(t, e, open, reportEvent(2, working), reportEvent(3, accepted))
		require.Len(t, col.Errors, 2)
		assert.True(t, errors.Is(col.Errors[0], oms.ErrInvalidTransition))
		assert.True(t, errors.Is(col.Errors[1], oms.ErrOutOfOrder))
		o, _ := e.Order(1)
		assert.Equal(t, oms.OrderStateNew, o.State)
	})

	t.Run("buffer", func(t *testing.T) {
		m := obs.NewMetrics()
		e, col := newEngine(t, Config{ReportPolicy: ReportBuffer}, Deps{Strategy: &scripted{market: place.market}, Venue: silentVenue{}, Metrics: m})
		process(t, e, open, reportEvent(2, working), reportEvent(3, accepted), reportEvent(4, accepted))
		assert.Empty(t, col.Errors)
		o, _ := e.Order(1)
		assert.Equal(t, oms.OrderStateWorking, o.State)
		assert.Equal(t, "v1", o.VenueOrderID)
		assert.Equal(t, uint64(1), m.Snapshot().Count(obs.CounterBufferedReport))
	})
}

func TestTimers(t *testing.T) {
	t.Run("clock tick", func(t *testing.T) {
		strat := &scripted{}
		e, _ := newEngine(t, Config{}, Deps{Strategy: strat})
		process(t, e, clockEvent(1, 10), clockEvent(2, 20))
		assert.Equal(t, 2, strat.timers)
	})

	t.Run("interval", func(t *testing.T) {
		strat := &scripted{}
		e, col := newEngine(t, Config{TimerIntervalNs: 10}, Deps{Strategy: strat})
		process(t, e, clockEvent(1, 5), clockEvent(2, 15), clockEvent(3, 40))
		assert.Equal(t, 3, strat.timers)
		assert.Equal(t, 6, col.Ticks)
	})
}

func TestGTDExpiry(t *testing.T) {
	gtd := schema.Place(btc, schema.OrderSideBuy, 99, 2, "c1")
	gtd.TimeInForce = schema.TimeInForceGTD
	gtd.ExpireAt = 100
	strat := &scripted{market: map[uint64][]schema.Intent{1: {gtd}}}
	e, _ := newEngine(t, Config{}, Deps{Strategy: strat, Venue: silentVenue{}})

	process(t, e,
		snapshotEvent(1, []schema.Level{{Price: 100, Qty: 1}}, []schema.Level{{Price: 101, Qty: 1}}),
		reportEvent(2, schema.VenueReport{OrderID: 1, Seq: 1, Type: schema.ReportAccepted}),
		reportEvent(3, schema.VenueReport{OrderID: 1, Seq: 2, Type: schema.ReportWorking}),
		clockEvent(4, 99),
	)
	o, _ := e.Order(1)
	assert.Equal(t, oms.OrderStateWorking, o.State)

	process(t, e, clockEvent(5, 100))
	o, _ = e.Order(1)
	assert.Equal(t, oms.OrderStateExpired, o.State)
	last := strat.updates[len(strat.updates)-1]
	assert.Equal(t, schema.ReportExpired, last.Report.Type)
}

func TestChainedTickLimit(t *testing.T) {
	strat := &scripted{market: map[uint64][]schema.Intent{
		1: {schema.Place(btc, schema.OrderSideBuy, 101, 1, "c1"), schema.Place(btc, schema.OrderSideBuy, 101, 1, "c2")},
	}}
	e, _ := newEngine(t, Config{MaxChainedTicks: 1}, Deps{Strategy: strat})
	process(t, e, snapshotEvent(1, []schema.Level{{Price: 100, Qty: 1}}, []schema.Level{{Price: 101, Qty: 5}}))
	assert.Equal(t, 3, e.PendingReports())

	e.Flush()
	assert.Equal(t, 2, e.PendingReports())
	process(t, e, clockEvent(2, 2))
	assert.Equal(t, 1, e.PendingReports())
}

// randomWalk builds a seeded market: a snapshot, then deltas drifting around a mid
// with periodic clock ticks.
func randomWalk(seed uint64, n int) []schema.Event {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	mid := schema.Price(10_000)
	events := []schema.Event{snapshotEvent(1,
		[]schema.Level{{Price: mid - 1, Qty: 5}, {Price: mid - 2, Qty: 5}},
		[]schema.Level{{Price: mid + 1, Qty: 5}, {Price: mid + 2, Qty: 5}},
	)}
	for seq := uint64(2); len(events) < n; seq++ {
		if seq%10 == 0 {
			events = append(events, clockEvent(seq, int64(seq)*1_000))
			continue
		}
		mid += schema.Price(rng.IntN(3) - 1)
		side := schema.OrderSideBuy
		price := mid - schema.Price(1+rng.IntN(5))
		if rng.IntN(2) == 0 {
			side = schema.OrderSideSell
			price = mid + schema.Price(1+rng.IntN(5))
		}
		qty := schema.Quantity(1 + rng.IntN(10))
		if rng.IntN(10) == 0 {
			qty = 0
		}
		ev := deltaEvent(seq, side, price, qty)
		ev.Market.TsEvent = int64(seq) * 1_000
		events = append(events, ev)
	}
	return events
}

type sliceSource struct {
	events []schema.Event
	i      int
}

func (s *sliceSource) Next() (schema.Event, error) {
	if s.i == len(s.events) {
		return schema.Event{}, io.EOF
	}
	s.i++
	return s.events[s.i-1], nil
}

func TestDeterministicReplay(t *testing.T) {
	events := randomWalk(42, 2_000)
	run := func() (Summary, *Collector) {
		chain := risk.NewChain(false, &risk.MaxOrderSize{Default: 5}, &risk.PositionLimit{MaxNet: 20})
		mm := strategy.NewMarketMaker(btc, 2, 3, 1, 15)
		e, col := newEngine(t, Config{}, Deps{
			Strategy: mm,
			Chain:    chain,
			Venue:    venue.NewSimVenue(venue.Config{Seed: 7, PartialFillPct: 30, MakerFeeBps: 1, TakerFeeBps: 5}),
		})
		summary, err := e.Run(context.Background(), &sliceSource{events: events})
		require.NoError(t, err)
		return summary, col
	}

	a, colA := run()
	b, colB := run()
	assert.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, colA.Intents, colB.Intents)
	assert.Equal(t, colA.Fills, colB.Fills)
	assert.NotEmpty(t, colA.Intents)
	assert.Equal(t, uint64(len(events)), a.Inputs)
	assert.Equal(t, a, b)
}

func TestRunStopsOnContext(t *testing.T) {
	e, _ := newEngine(t, Config{}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, &sliceSource{events: randomWalk(1, 10)})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, uint64(0), e.Seq())
}

// stepSource replays a scripted mix of events and read errors.
type stepSource struct {
	steps []func() (schema.Event, error)
}

func (s *stepSource) Next() (schema.Event, error) {
	if len(s.steps) == 0 {
		return schema.Event{}, io.EOF
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next()
}

func TestRunSkipsUndecodableLines(t *testing.T) {
	event := func(ev schema.Event) func() (schema.Event, error) {
		return func() (schema.Event, error) { return ev, nil }
	}
	m := obs.NewMetrics()
	e, _ := newEngine(t, Config{}, Deps{Metrics: m})
	src := &stepSource{steps: []func() (schema.Event, error){
		event(deltaEvent(1, schema.OrderSideBuy, 100, 1)),
		func() (schema.Event, error) { return codec.DecodeEventJSON([]byte(`{"seq":`)) },
		event(deltaEvent(2, schema.OrderSideBuy, 101, 1)),
	}}

	summary, err := e.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), summary.Inputs)
	assert.Equal(t, uint64(2), summary.LastSeq)
	assert.Equal(t, uint64(1), m.Snapshot().Count(obs.CounterInputInvalid))

	top, ok := e.Top(btc)
	require.True(t, ok)
	assert.Equal(t, schema.Price(101), top.Bid.Price)
}

func TestRunFailsOnReadError(t *testing.T) {
	e, _ := newEngine(t, Config{}, Deps{})
	src := &stepSource{steps: []func() (schema.Event, error){
		func() (schema.Event, error) { return schema.Event{}, io.ErrUnexpectedEOF },
	}}
	_, err := e.Run(context.Background(), src)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func BenchmarkEngineReplay(b *testing.B) {
	events := randomWalk(3, 10_000)
	for b.Loop() {
		e, err := New(Config{Symbols: []schema.Symbol{btc}}, Deps{
			Strategy: strategy.NewMarketMaker(btc, 2, 3, 1, 15),
			Venue:    venue.NewSimVenue(venue.Config{Seed: 1}),
		})
		if err != nil {
			b.Fatal(err)
		}
		for _, ev := range events {
			if err := e.Process(ev); err != nil {
				b.Fatal(err)
			}
		}
	}
}

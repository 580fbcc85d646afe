package mdg

import (
	"math/rand/v2"

	"github.com/yanun0323/errors"

	"lobsim/internal/schema"
)

// Config shapes a synthetic feed.
type Config struct {
	Seed       uint64
	Symbols    []schema.Symbol
	Mid        schema.Price
	Depth      int
	ClockEvery int
	TradePct   int
	StartTs    int64
	StepNs     int64
}

// Generator produces a seeded random walk of market events.
// Every symbol opens with a snapshot of Depth levels around Mid. Each later
// event moves one symbol's mid by at most one tick and updates a level 1..5
// ticks from it with qty 1..10; about one update in ten removes its level.
type Generator struct {
	cfg       Config
	rng       *rand.Rand
	mids      []schema.Price
	symbolSeq []uint64
	opened    int
	seq       uint64
	ts        int64
}

// NewGenerator validates cfg and seeds the walk.
func NewGenerator(cfg Config) (*Generator, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("mdg: no symbols")
	}
	if cfg.Mid <= 5 {
		return nil, errors.Errorf("mdg: mid must be > 5: %d", cfg.Mid)
	}
	if cfg.TradePct < 0 || cfg.TradePct > 100 || cfg.ClockEvery < 0 {
		return nil, errors.New("mdg: trade pct or clock interval out of range")
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 1
	}
	if cfg.StepNs <= 0 {
		cfg.StepNs = 1
	}
	g := &Generator{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
		mids:      make([]schema.Price, len(cfg.Symbols)),
		symbolSeq: make([]uint64, len(cfg.Symbols)),
		ts:        cfg.StartTs,
	}
	for i := range g.mids {
		g.mids[i] = cfg.Mid
	}
	return g, nil
}

// Next returns the next event with the next global sequence.
func (g *Generator) Next() schema.Event {
	var ev schema.MarketEvent
	switch {
	case g.opened < len(g.cfg.Symbols):
		ev = g.snapshot(g.opened)
		g.opened++
	case g.cfg.ClockEvery > 0 && (g.seq+1)%uint64(g.cfg.ClockEvery) == 0:
		ev = schema.MarketEvent{Kind: schema.MarketEventClockTick}
	default:
		ev = g.update()
	}
	g.seq++
	g.ts += g.cfg.StepNs
	ev.Seq = g.seq
	ev.TsEvent = g.ts
	return schema.MarketInput(ev)
}

// Seq returns the sequence of the last event produced.
func (g *Generator) Seq() uint64 {
	return g.seq
}

func (g *Generator) snapshot(i int) schema.MarketEvent {
	g.symbolSeq[i]++
	ev := schema.MarketEvent{Kind: schema.MarketEventL2Snapshot, Symbol: g.cfg.Symbols[i], SymbolSeq: g.symbolSeq[i]}
	for d := 1; d <= g.cfg.Depth; d++ {
		ev.Bids = append(ev.Bids, schema.Level{Price: g.mids[i] - schema.Price(d), Qty: g.qty()})
		ev.Asks = append(ev.Asks, schema.Level{Price: g.mids[i] + schema.Price(d), Qty: g.qty()})
	}
	return ev
}

func (g *Generator) update() schema.MarketEvent {
	i := g.rng.IntN(len(g.cfg.Symbols))
	g.mids[i] += schema.Price(g.rng.IntN(3) - 1)
	side := schema.OrderSideBuy
	price := g.mids[i] - schema.Price(1+g.rng.IntN(5))
	if g.rng.IntN(2) == 0 {
		side = schema.OrderSideSell
		price = g.mids[i] + schema.Price(1+g.rng.IntN(5))
	}
	g.symbolSeq[i]++
	ev := schema.MarketEvent{
		Kind: schema.MarketEventL2Delta, Symbol: g.cfg.Symbols[i], SymbolSeq: g.symbolSeq[i],
		Side: side, Price: price, Qty: g.qty(),
	}
	switch {
	case g.cfg.TradePct > 0 && g.rng.IntN(100) < g.cfg.TradePct:
		ev.Kind = schema.MarketEventTrade
	case g.rng.IntN(10) == 0:
		ev.Qty = 0
	}
	return ev
}

func (g *Generator) qty() schema.Quantity {
	return schema.Quantity(1 + g.rng.IntN(10))
}

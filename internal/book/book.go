package book

import (
	"cmp"
	"encoding/binary"
	"slices"

	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrInvalidEvent = errors.New("book: invalid event")
	ErrSequenceGap  = errors.New("book: sequence gap")
)

// TradeMode controls whether Trade events change resting quantity.
type TradeMode uint8

const (
	// TradeInformational records trades for telemetry only.
	TradeInformational TradeMode = iota
	// TradeDeplete also decrements the passive level at the trade price.
	TradeDeplete
)

// Options configures every book created by a Books arena.
type Options struct {
	TradeMode TradeMode
}

// Top is the best bid/ask and last trade of one symbol.
type Top struct {
	Symbol    schema.Symbol
	Bid       schema.Level
	Ask       schema.Level
	HasBid    bool
	HasAsk    bool
	LastTrade schema.Level
	HasTrade  bool
}

// Crossed reports whether best bid is not strictly below best ask.
func (t Top) Crossed() bool {
	return t.HasBid && t.HasAsk && t.Bid.Price >= t.Ask.Price
}

// Mid returns the integer midpoint between best bid and best ask.
func (t Top) Mid() (schema.Price, bool) {
	if !t.HasBid || !t.HasAsk {
		return 0, false
	}
	return (t.Bid.Price + t.Ask.Price) / 2, true
}

// Reference returns the mid, or the last trade when a side is missing.
func (t Top) Reference() (schema.Price, bool) {
	if mid, ok := t.Mid(); ok {
		return mid, true
	}
	if t.HasTrade {
		return t.LastTrade.Price, true
	}
	return 0, false
}

// BookChange describes the effect of one applied market event.
type BookChange struct {
	Symbol     schema.Symbol
	Seq        uint64
	Kind       schema.MarketEventKind
	Side       schema.OrderSide
	Price      schema.Price
	PrevQty    schema.Quantity
	Qty        schema.Quantity
	BidChanged bool
	AskChanged bool
	Crossed    bool
	Top        Top
}

// Book is the aggregated L2 ladder of one symbol.
type Book struct {
	symbol    schema.Symbol
	tradeMode TradeMode
	bids      ladder
	asks      ladder
	lastSeq   uint64
	lastTrade schema.Level
	hasTrade  bool
	trades    uint64
	updates   uint64
}

// New creates an empty book.
func New(symbol schema.Symbol, opts Options) *Book {
	return &Book{
		symbol:    symbol,
		tradeMode: opts.TradeMode,
		bids:      newLadder(true),
		asks:      newLadder(false),
	}
}

// Symbol returns the book's symbol.
func (b *Book) Symbol() schema.Symbol {
	return b.symbol
}

// LastSeq returns the last accepted per-symbol sequence, zero if none.
func (b *Book) LastSeq() uint64 {
	return b.lastSeq
}

// Resync makes seq the next accepted per-symbol sequence.
func (b *Book) Resync(seq uint64) {
	if seq == 0 {
		b.lastSeq = 0
		return
	}
	b.lastSeq = seq - 1
}

// Apply applies a snapshot, delta, or trade.
func (b *Book) Apply(ev schema.MarketEvent) (BookChange, error) {
	if ev.Symbol != b.symbol {
		return BookChange{}, errors.Wrapf(ErrInvalidEvent, "symbol mismatch: book=%s event=%s", b.symbol, ev.Symbol)
	}
	if err := b.checkSeq(ev.SymbolSeq); err != nil {
		return BookChange{}, err
	}

	before := b.Top()
	change := BookChange{
		Symbol: b.symbol,
		Seq:    ev.Seq,
		Kind:   ev.Kind,
		Side:   ev.Side,
		Price:  ev.Price,
		Qty:    ev.Qty,
	}

	var err error
	switch ev.Kind {
	case schema.MarketEventL2Snapshot:
		err = b.applySnapshot(ev)
	case schema.MarketEventL2Delta:
		change.PrevQty, err = b.applyDelta(ev)
	case schema.MarketEventTrade:
		change.PrevQty, err = b.applyTrade(ev)
	default:
		err = errors.Wrapf(ErrInvalidEvent, "unsupported kind: %s", ev.Kind)
	}

	// a malformed payload still consumes its sequence so one bad event does not open a gap
	if ev.SymbolSeq != 0 {
		b.lastSeq = ev.SymbolSeq
	}
	if err != nil {
		return BookChange{}, err
	}
	b.updates++

	after := b.Top()
	change.Top = after
	change.BidChanged = before.HasBid != after.HasBid || before.Bid != after.Bid
	change.AskChanged = before.HasAsk != after.HasAsk || before.Ask != after.Ask
	change.Crossed = after.Crossed()
	return change, nil
}

func (b *Book) checkSeq(seq uint64) error {
	if seq == 0 || b.lastSeq == 0 {
		return nil
	}
	if seq <= b.lastSeq {
		return errors.Wrapf(ErrInvalidEvent, "non-monotonic sequence: symbol=%s last=%d got=%d", b.symbol, b.lastSeq, seq)
	}
	if seq > b.lastSeq+1 {
		return errors.Wrapf(ErrSequenceGap, "symbol=%s expected=%d got=%d", b.symbol, b.lastSeq+1, seq)
	}
	return nil
}

func (b *Book) applySnapshot(ev schema.MarketEvent) error {
	bids, err := buildSide(ev.Bids, true)
	if err != nil {
		return errors.Wrap(err, "snapshot bids")
	}
	asks, err := buildSide(ev.Asks, false)
	if err != nil {
		return errors.Wrap(err, "snapshot asks")
	}
	b.bids.replace(bids)
	b.asks.replace(asks)
	return nil
}

// buildSide validates snapshot levels and orders them best-last. Zero quantities are dropped.
func buildSide(in []schema.Level, bid bool) ([]schema.Level, error) {
	out := make([]schema.Level, 0, len(in))
	for _, lvl := range in {
		if lvl.Price <= 0 {
			return nil, errors.Wrapf(ErrInvalidEvent, "price must be > 0: %d", lvl.Price)
		}
		if lvl.Qty < 0 {
			return nil, errors.Wrapf(ErrInvalidEvent, "qty must be >= 0: %d", lvl.Qty)
		}
		if lvl.Qty == 0 {
			continue
		}
		out = append(out, lvl)
	}
	slices.SortFunc(out, func(a, c schema.Level) int {
		if bid {
			return cmp.Compare(a.Price, c.Price)
		}
		return cmp.Compare(c.Price, a.Price)
	})
	for i := 1; i < len(out); i++ {
		if out[i].Price == out[i-1].Price {
			return nil, errors.Wrapf(ErrInvalidEvent, "duplicate level: %d", out[i].Price)
		}
	}
	return out, nil
}

func (b *Book) applyDelta(ev schema.MarketEvent) (schema.Quantity, error) {
	if ev.Price <= 0 {
		return 0, errors.Wrapf(ErrInvalidEvent, "price must be > 0: %d", ev.Price)
	}
	if ev.Qty < 0 {
		return 0, errors.Wrapf(ErrInvalidEvent, "qty must be >= 0: %d", ev.Qty)
	}
	side := b.ladder(ev.Side)
	if side == nil {
		return 0, errors.Wrapf(ErrInvalidEvent, "unknown side: %d", ev.Side)
	}
	return side.set(ev.Price, ev.Qty), nil
}

func (b *Book) applyTrade(ev schema.MarketEvent) (schema.Quantity, error) {
	if ev.Price <= 0 || ev.Qty <= 0 {
		return 0, errors.Wrapf(ErrInvalidEvent, "trade price and qty must be > 0: price=%d qty=%d", ev.Price, ev.Qty)
	}
	b.lastTrade = schema.Level{Price: ev.Price, Qty: ev.Qty}
	b.hasTrade = true
	b.trades++
	if b.tradeMode != TradeDeplete {
		return 0, nil
	}
	// the aggressor consumes liquidity resting on the opposite side
	passive := b.ladder(ev.Side.Opposite())
	if passive == nil {
		return 0, nil
	}
	prev := passive.qty(ev.Price)
	if prev == 0 {
		return 0, nil
	}
	left := prev - ev.Qty
	if left < 0 {
		left = 0
	}
	passive.set(ev.Price, left)
	return prev, nil
}

func (b *Book) ladder(side schema.OrderSide) *ladder {
	switch side {
	case schema.OrderSideBuy:
		return &b.bids
	case schema.OrderSideSell:
		return &b.asks
	default:
		return nil
	}
}

// Top returns the best bid/ask and last trade.
func (b *Book) Top() Top {
	bid, hasBid := b.bids.top()
	ask, hasAsk := b.asks.top()
	return Top{
		Symbol:    b.symbol,
		Bid:       bid,
		Ask:       ask,
		HasBid:    hasBid,
		HasAsk:    hasAsk,
		LastTrade: b.lastTrade,
		HasTrade:  b.hasTrade,
	}
}

// BestBid returns the best bid level.
func (b *Book) BestBid() (schema.Level, bool) {
	return b.bids.top()
}

// BestAsk returns the best ask level.
func (b *Book) BestAsk() (schema.Level, bool) {
	return b.asks.top()
}

// Depth copies up to n levels per side, best first. n <= 0 means all levels.
func (b *Book) Depth(n int) (bids, asks []schema.Level) {
	return b.bids.depth(n), b.asks.depth(n)
}

// QtyAt returns the resting quantity at a price on a side.
func (b *Book) QtyAt(side schema.OrderSide, price schema.Price) schema.Quantity {
	l := b.ladder(side)
	if l == nil {
		return 0
	}
	return l.qty(price)
}

// LevelCount returns the number of bid and ask levels.
func (b *Book) LevelCount() (bids, asks int) {
	return b.bids.len(), b.asks.len()
}

// Stats returns how many events were applied and how many of them were trades.
func (b *Book) Stats() (updates, trades uint64) {
	return b.updates, b.trades
}

// AppendDigest appends a canonical encoding of the ladder to buf.
func (b *Book) AppendDigest(buf []byte) []byte {
	buf = append(buf, b.symbol...)
	buf = binary.LittleEndian.AppendUint64(buf, b.lastSeq)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(b.bids.levels)))
	for _, lvl := range b.bids.levels {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lvl.Price))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lvl.Qty))
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(b.asks.levels)))
	for _, lvl := range b.asks.levels {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lvl.Price))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(lvl.Qty))
	}
	return buf
}

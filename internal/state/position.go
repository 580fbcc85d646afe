package state

import (
	"cmp"
	"encoding/binary"
	"slices"

	"lobsim/internal/schema"
)

// Position is the running inventory and PnL of one symbol.
// Cost is signed like Qty: the open notional paid (long) or received (short).
type Position struct {
	Symbol   schema.Symbol   `json:"symbol"`
	Qty      schema.Quantity `json:"qty"`
	Cost     schema.Notional `json:"cost"`
	Realized schema.Notional `json:"realized"`
	Fees     schema.Fee      `json:"fees"`
	Volume   schema.Quantity `json:"volume"`
	Fills    uint64          `json:"fills"`
}

// AvgEntry returns the average open price truncated to ticks.
func (p Position) AvgEntry() schema.Price {
	if p.Qty == 0 {
		return 0
	}
	return schema.Price(int64(p.Cost) / int64(p.Qty))
}

// Unrealized returns the mark-to-market PnL of the open quantity.
func (p Position) Unrealized(mark schema.Price) schema.Notional {
	if p.Qty == 0 || mark <= 0 {
		return 0
	}
	return schema.Notional(int64(mark)*int64(p.Qty)) - p.Cost
}

// PositionReducer folds fills into per-symbol positions.
type PositionReducer struct {
	positions map[schema.Symbol]*Position
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{positions: make(map[schema.Symbol]*Position)}
}

// ApplyFill updates the position and returns a copy of it.
func (r *PositionReducer) ApplyFill(fill schema.Fill) Position {
	p, ok := r.positions[fill.Symbol]
	if !ok {
		p = &Position{Symbol: fill.Symbol}
		r.positions[fill.Symbol] = p
	}
	sign := fill.Side.Sign()
	if sign == 0 || fill.Qty <= 0 {
		return *p
	}

	p.Fees += fill.Fee
	p.Volume += fill.Qty
	p.Fills++

	price := int64(fill.Price)
	qty := int64(fill.Qty)
	pos := int64(p.Qty)
	if pos == 0 || (pos > 0) == (sign > 0) {
		p.Qty += schema.Quantity(sign * qty)
		p.Cost += schema.Notional(sign * qty * price)
		return *p
	}

	held := absInt64(pos)
	closed := min(qty, held)
	removed := int64(p.Cost) * closed / held
	posSign := int64(1)
	if pos < 0 {
		posSign = -1
	}
	p.Realized += schema.Notional(posSign*price*closed - removed)
	p.Cost -= schema.Notional(removed)
	p.Qty += schema.Quantity(sign * closed)

	if rest := qty - closed; rest > 0 {
		p.Qty += schema.Quantity(sign * rest)
		p.Cost = schema.Notional(sign * rest * price)
	} else if p.Qty == 0 {
		p.Cost = 0
	}
	return *p
}

// ApplySnapshot replaces positions with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	clear(r.positions)
	for _, entry := range snapshot.Positions {
		p := entry
		r.positions[p.Symbol] = &p
	}
}

// Position returns the position of a symbol.
func (r *PositionReducer) Position(symbol schema.Symbol) Position {
	if p, ok := r.positions[symbol]; ok {
		return *p
	}
	return Position{Symbol: symbol}
}

// Positions returns copies of every position in symbol order.
func (r *PositionReducer) Positions() []Position {
	out := make([]Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Position) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return out
}

// Quantities returns the signed quantity per symbol.
func (r *PositionReducer) Quantities() map[schema.Symbol]schema.Quantity {
	out := make(map[schema.Symbol]schema.Quantity, len(r.positions))
	for sym, p := range r.positions {
		out[sym] = p.Qty
	}
	return out
}

// Count returns the number of tracked symbols.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}

// Totals sums realized PnL and fees across symbols.
func (r *PositionReducer) Totals() (realized schema.Notional, fees schema.Fee) {
	for _, p := range r.positions {
		realized += p.Realized
		fees += p.Fees
	}
	return realized, fees
}

// AppendDigest appends a canonical encoding of every position to buf.
func (r *PositionReducer) AppendDigest(buf []byte) []byte {
	for _, p := range r.Positions() {
		buf = append(buf, p.Symbol...)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Qty))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Cost))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Realized))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Fees))
	}
	return buf
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Package snapshot builds the read-only view strategies and risk policies observe.
package snapshot

import (
	"slices"

	"lobsim/internal/book"
	"lobsim/internal/oms"
	"lobsim/internal/schema"
	"lobsim/internal/state"
)

// Snapshot is an immutable deep copy of engine state at one tick.
type Snapshot struct {
	Tick      uint64
	Seq       uint64
	TsEvent   int64
	Tops      map[schema.Symbol]book.Top
	Positions map[schema.Symbol]state.Position
	Orders    map[schema.Symbol][]oms.Order
	Halted    bool
}

// Top returns the top of book of symbol.
func (s *Snapshot) Top(symbol schema.Symbol) (book.Top, bool) {
	t, ok := s.Tops[symbol]
	return t, ok
}

// Position returns the signed position quantity of symbol.
func (s *Snapshot) Position(symbol schema.Symbol) schema.Quantity {
	return s.Positions[symbol].Qty
}

// OpenOrders returns the open orders of symbol in ascending order id.
// The returned slice is shared; callers must not modify it.
func (s *Snapshot) OpenOrders(symbol schema.Symbol) []oms.Order {
	return s.Orders[symbol]
}

// Order finds an open order by client id.
func (s *Snapshot) Order(clientID string) (oms.Order, bool) {
	for _, orders := range s.Orders {
		for _, o := range orders {
			if o.ClientID == clientID {
				return o, true
			}
		}
	}
	return oms.Order{}, false
}

// OpenExposure returns the remaining quantity of open orders on each side of symbol.
func (s *Snapshot) OpenExposure(symbol schema.Symbol) (buy, sell schema.Quantity) {
	for _, o := range s.Orders[symbol] {
		switch o.Side {
		case schema.OrderSideBuy:
			buy += o.RemainingQty
		case schema.OrderSideSell:
			sell += o.RemainingQty
		}
	}
	return buy, sell
}

// GrossExposure sums absolute positions and open remaining quantity over every symbol.
func (s *Snapshot) GrossExposure() schema.Quantity {
	var gross schema.Quantity
	for _, p := range s.Positions {
		if p.Qty < 0 {
			gross -= p.Qty
		} else {
			gross += p.Qty
		}
	}
	for _, orders := range s.Orders {
		for _, o := range orders {
			gross += o.RemainingQty
		}
	}
	return gross
}

// Symbols returns the symbols with a top of book, ascending.
func (s *Snapshot) Symbols() []schema.Symbol {
	out := make([]schema.Symbol, 0, len(s.Tops))
	for sym := range s.Tops {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Builder assembles snapshots from engine-owned state.
type Builder struct {
	books     *book.Books
	orders    *oms.OMS
	positions *state.PositionReducer
}

// NewBuilder creates a builder over the engine's books, OMS, and positions.
func NewBuilder(books *book.Books, orders *oms.OMS, positions *state.PositionReducer) *Builder {
	return &Builder{books: books, orders: orders, positions: positions}
}

// Build returns a snapshot at tick. An empty scope includes every known symbol.
// Positions always cover every symbol so exposure checks see the whole portfolio.
func (b *Builder) Build(tick, seq uint64, ts int64, halted bool, scope ...schema.Symbol) *Snapshot {
	if len(scope) == 0 {
		scope = b.books.Symbols()
	}
	snap := &Snapshot{
		Tick:      tick,
		Seq:       seq,
		TsEvent:   ts,
		Halted:    halted,
		Tops:      make(map[schema.Symbol]book.Top, len(scope)),
		Positions: make(map[schema.Symbol]state.Position),
		Orders:    make(map[schema.Symbol][]oms.Order),
	}
	for _, sym := range scope {
		if top, ok := b.books.Top(sym); ok {
			snap.Tops[sym] = top
		}
	}
	for _, p := range b.positions.Positions() {
		snap.Positions[p.Symbol] = p
	}
	for _, o := range b.orders.OpenOrders("") {
		snap.Orders[o.Symbol] = append(snap.Orders[o.Symbol], o)
	}
	return snap
}

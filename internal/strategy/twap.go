package strategy

import (
	"lobsim/internal/book"
	"lobsim/internal/oms"
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"
)

// Twap works a signed target quantity in slices, one IOC order per timer tick,
// priced at the opposite touch.
type Twap struct {
	symbol schema.Symbol
	side   schema.OrderSide
	target schema.Quantity
	slice  schema.Quantity
	filled schema.Quantity
	live   string
	ids    clientIDs
}

// NewTwap creates a TWAP; a positive target buys, a negative one sells.
func NewTwap(symbol schema.Symbol, target, slice schema.Quantity) *Twap {
	side := schema.OrderSideBuy
	if target < 0 {
		side = schema.OrderSideSell
		target = -target
	}
	if slice <= 0 {
		slice = 1
	}
	return &Twap{symbol: symbol, side: side, target: target, slice: slice, ids: clientIDs{prefix: "twap-"}}
}

func (s *Twap) Name() string { return TwapName }

// Remaining returns the quantity still to execute.
func (s *Twap) Remaining() schema.Quantity {
	return s.target - s.filled
}

func (s *Twap) OnMarket(_ *snapshot.Snapshot, _ book.BookChange, dst []schema.Intent) []schema.Intent {
	return dst
}

func (s *Twap) OnReport(_ *snapshot.Snapshot, u oms.Update, dst []schema.Intent) []schema.Intent {
	if u.Order.ClientID != s.live {
		return dst
	}
	if u.Report.Type.IsFill() {
		s.filled += u.Report.FilledQtyDelta
	}
	if u.Order.State.IsTerminal() {
		s.live = ""
	}
	return dst
}

func (s *Twap) OnTimer(snap *snapshot.Snapshot, dst []schema.Intent) []schema.Intent {
	if s.live != "" {
		if _, open := snap.Order(s.live); open {
			return dst
		}
		s.live = ""
	}
	if s.Remaining() <= 0 {
		return dst
	}
	top, ok := snap.Top(s.symbol)
	if !ok {
		return dst
	}
	var price schema.Price
	if s.side == schema.OrderSideBuy {
		if !top.HasAsk {
			return dst
		}
		price = top.Ask.Price
	} else {
		if !top.HasBid {
			return dst
		}
		price = top.Bid.Price
	}
	qty := min(s.slice, s.Remaining())
	s.live = s.ids.issue()
	intent := schema.Place(s.symbol, s.side, price, qty, s.live)
	intent.TimeInForce = schema.TimeInForceIOC
	return append(dst, intent)
}

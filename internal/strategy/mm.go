package strategy

import (
	"lobsim/internal/book"
	"lobsim/internal/oms"
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"
)

// MarketMaker quotes both sides around the mid, shifting quotes against inventory.
// A side stops quoting once inventory reaches maxInventory in that direction.
type MarketMaker struct {
	symbol       schema.Symbol
	halfSpread   schema.Price
	qty          schema.Quantity
	skewPerLot   schema.Price
	maxInventory schema.Quantity
	bid          string
	ask          string
	ids          clientIDs
}

// NewMarketMaker creates a two-sided quoter. maxInventory <= 0 disables the inventory cap.
func NewMarketMaker(symbol schema.Symbol, halfSpread schema.Price, qty schema.Quantity, skewPerLot schema.Price, maxInventory schema.Quantity) *MarketMaker {
	if halfSpread <= 0 {
		halfSpread = 1
	}
	return &MarketMaker{
		symbol:       symbol,
		halfSpread:   halfSpread,
		qty:          qty,
		skewPerLot:   skewPerLot,
		maxInventory: maxInventory,
		ids:          clientIDs{prefix: "mm-"},
	}
}

func (s *MarketMaker) Name() string { return MMName }

func (s *MarketMaker) OnMarket(snap *snapshot.Snapshot, change book.BookChange, dst []schema.Intent) []schema.Intent {
	if change.Symbol != s.symbol || change.Crossed || (!change.BidChanged && !change.AskChanged) {
		return dst
	}
	return s.quote(snap, dst)
}

func (s *MarketMaker) OnReport(snap *snapshot.Snapshot, u oms.Update, dst []schema.Intent) []schema.Intent {
	id := u.Order.ClientID
	if id != s.bid && id != s.ask {
		return dst
	}
	if !u.Order.State.IsTerminal() {
		return dst
	}
	if id == s.bid {
		s.bid = ""
	} else {
		s.ask = ""
	}
	return s.quote(snap, dst)
}

func (s *MarketMaker) OnTimer(snap *snapshot.Snapshot, dst []schema.Intent) []schema.Intent {
	return s.quote(snap, dst)
}

func (s *MarketMaker) quote(snap *snapshot.Snapshot, dst []schema.Intent) []schema.Intent {
	top, ok := snap.Top(s.symbol)
	if !ok {
		return dst
	}
	mid, ok := top.Mid()
	if !ok || top.Crossed() {
		return dst
	}
	inventory := snap.Position(s.symbol)
	skew := s.skewPerLot * schema.Price(inventory)
	bidPx := mid - s.halfSpread - skew
	askPx := mid + s.halfSpread - skew
	if askPx <= bidPx {
		askPx = bidPx + 1
	}

	quoteBid := s.maxInventory <= 0 || inventory < s.maxInventory
	quoteAsk := s.maxInventory <= 0 || inventory > -s.maxInventory
	dst = s.side(snap, &s.bid, schema.OrderSideBuy, bidPx, quoteBid, dst)
	dst = s.side(snap, &s.ask, schema.OrderSideSell, askPx, quoteAsk, dst)
	return dst
}

func (s *MarketMaker) side(snap *snapshot.Snapshot, live *string, side schema.OrderSide, price schema.Price, enabled bool, dst []schema.Intent) []schema.Intent {
	if *live != "" {
		o, open := snap.Order(*live)
		switch {
		case !open:
			// never reached the OMS, typically rejected by risk
			*live = ""
		case !enabled:
			return append(dst, schema.Cancel(*live))
		case o.CancelPending:
			return dst
		case o.Price != price && price > 0:
			return append(dst, schema.Modify(*live, price, 0))
		default:
			return dst
		}
	}
	if *live != "" || !enabled || price <= 0 {
		return dst
	}
	*live = s.ids.issue()
	return append(dst, schema.Place(s.symbol, side, price, s.qty, *live))
}

package venue

import (
	"lobsim/internal/book"
	"lobsim/internal/schema"
)

// PaperVenue never takes displayed liquidity. Orders rest until a market trade prints
// through their price; market orders fill at the next trade print.
type PaperVenue struct {
	ledger
}

var (
	_ Port           = (*PaperVenue)(nil)
	_ MarketObserver = (*PaperVenue)(nil)
)

// NewPaperVenue creates a paper venue.
func NewPaperVenue(cfg Config) *PaperVenue {
	return &PaperVenue{ledger: newLedger(cfg.withDefaults("P-"))}
}

func (v *PaperVenue) Submit(req schema.VenueRequest) Ack {
	o, err := v.accept(req)
	if err != nil {
		return Ack{OrderID: req.OrderID, Err: err}
	}
	v.emit(schema.VenueReport{OrderID: req.OrderID, Type: schema.ReportWorking, VenueOrderID: o.venueID})
	switch req.TimeInForce {
	case schema.TimeInForceIOC, schema.TimeInForceFOK:
		v.kill(o, schema.ReportCanceled, "ioc remainder")
	default:
		v.rest(o)
	}
	return Ack{OrderID: req.OrderID}
}

func (v *PaperVenue) Cancel(req schema.VenueRequest) Ack {
	return v.cancel(req)
}

func (v *PaperVenue) Replace(req schema.VenueRequest) Ack {
	if _, err := v.replace(req); err != nil {
		return Ack{OrderID: req.OrderID, Err: err}
	}
	return Ack{OrderID: req.OrderID}
}

func (v *PaperVenue) Drain(dst []schema.VenueReport) []schema.VenueReport {
	return v.drain(dst)
}

// OnMarket fills resting orders a trade printed through, in ascending order id.
// Each trade's quantity is consumed by the orders it fills.
func (v *PaperVenue) OnMarket(ev schema.MarketEvent, top book.Top) {
	v.observe(ev, top)
	switch ev.Kind {
	case schema.MarketEventClockTick:
		v.expire(ev.TsEvent)
		return
	case schema.MarketEventTrade:
	default:
		return
	}

	left := ev.Qty
	fills := 0
	for _, id := range v.restingIDs(ev.Symbol) {
		if left <= 0 || fills >= v.cfg.MaxPassiveFills {
			break
		}
		o := v.orders[id]
		price, ok := tradeThrough(o, ev.Price)
		if !ok {
			continue
		}
		qty := min(left, o.remaining)
		left -= qty
		fills++
		if v.fill(o, price, qty, v.cfg.MakerFeeBps) {
			delete(v.orders, id)
		}
	}
}

func tradeThrough(o *resting, trade schema.Price) (schema.Price, bool) {
	if o.req.Type == schema.OrderTypeMarket {
		return trade, true
	}
	switch o.req.Side {
	case schema.OrderSideBuy:
		return o.req.Price, trade < o.req.Price
	case schema.OrderSideSell:
		return o.req.Price, trade > o.req.Price
	}
	return 0, false
}

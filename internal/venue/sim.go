package venue

import (
	"math/rand/v2"

	"lobsim/internal/book"
	"lobsim/internal/schema"
)

// SimVenue fills orders against the top of book it observes.
// Marketable orders take liquidity immediately, optionally split into a seeded partial fill;
// resting limit orders fill in full once the opposite touch reaches them.
type SimVenue struct {
	ledger
	rng *rand.Rand
}

var (
	_ Port           = (*SimVenue)(nil)
	_ MarketObserver = (*SimVenue)(nil)
)

// NewSimVenue creates a simulated venue. The same seed always yields the same fills.
func NewSimVenue(cfg Config) *SimVenue {
	cfg = cfg.withDefaults("S-")
	return &SimVenue{
		ledger: newLedger(cfg),
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

func (v *SimVenue) Submit(req schema.VenueRequest) Ack {
	o, err := v.accept(req)
	if err != nil {
		return Ack{OrderID: req.OrderID, Err: err}
	}
	v.take(o)
	return Ack{OrderID: req.OrderID}
}

// take crosses o against the touch and settles what is left per time in force.
func (v *SimVenue) take(o *resting) {
	tif := o.req.TimeInForce
	price, _, crosses := crossPrice(o.req.Side, o.req.Type, o.req.Price, v.tops[o.req.Symbol])
	if crosses {
		qty := o.remaining
		if partial := v.partial(qty); partial > 0 {
			if tif == schema.TimeInForceFOK {
				v.emitWorking(o)
				v.kill(o, schema.ReportCanceled, "fok not filled")
				return
			}
			qty = partial
		}
		if v.fill(o, price, qty, v.cfg.TakerFeeBps) {
			delete(v.orders, o.req.OrderID)
			return
		}
	} else {
		v.emitWorking(o)
	}

	switch {
	case o.req.Type == schema.OrderTypeMarket:
		v.kill(o, schema.ReportCanceled, "no liquidity")
	case tif == schema.TimeInForceIOC || tif == schema.TimeInForceFOK:
		v.kill(o, schema.ReportCanceled, "ioc remainder")
	default:
		v.rest(o)
	}
}

func (v *SimVenue) emitWorking(o *resting) {
	if o.filled == 0 {
		v.emit(schema.VenueReport{OrderID: o.req.OrderID, Type: schema.ReportWorking, VenueOrderID: o.venueID})
	}
}

// partial returns a seeded partial quantity, or zero for a full fill.
func (v *SimVenue) partial(qty schema.Quantity) schema.Quantity {
	if v.cfg.PartialFillPct == 0 || qty < 2 {
		return 0
	}
	if v.rng.IntN(100) >= v.cfg.PartialFillPct {
		return 0
	}
	return 1 + schema.Quantity(v.rng.Int64N(int64(qty)-1))
}

func (v *SimVenue) Cancel(req schema.VenueRequest) Ack {
	return v.cancel(req)
}

func (v *SimVenue) Replace(req schema.VenueRequest) Ack {
	o, err := v.replace(req)
	if err != nil {
		return Ack{OrderID: req.OrderID, Err: err}
	}
	if price, _, crosses := crossPrice(o.req.Side, o.req.Type, o.req.Price, v.tops[o.req.Symbol]); crosses {
		if v.fill(o, price, o.remaining, v.cfg.TakerFeeBps) {
			delete(v.orders, o.req.OrderID)
		}
	}
	return Ack{OrderID: req.OrderID}
}

func (v *SimVenue) Drain(dst []schema.VenueReport) []schema.VenueReport {
	return v.drain(dst)
}

// OnMarket records the new top and fills resting orders it crosses, in ascending order id.
func (v *SimVenue) OnMarket(ev schema.MarketEvent, top book.Top) {
	v.observe(ev, top)
	if ev.Kind == schema.MarketEventClockTick {
		v.expire(ev.TsEvent)
		return
	}
	if ev.Kind == schema.MarketEventTrade {
		return
	}
	fills := 0
	for _, id := range v.restingIDs(ev.Symbol) {
		if fills >= v.cfg.MaxPassiveFills {
			break
		}
		o := v.orders[id]
		if o.req.Type != schema.OrderTypeLimit {
			continue
		}
		price, _, crosses := crossPrice(o.req.Side, o.req.Type, o.req.Price, top)
		if !crosses {
			continue
		}
		fills++
		if v.fill(o, price, o.remaining, v.cfg.MakerFeeBps) {
			delete(v.orders, id)
		}
	}
}

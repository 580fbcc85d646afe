package venue

import (
	"slices"
	"strconv"

	"lobsim/internal/book"
	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrInvalidRequest = errors.New("venue: invalid request")
	ErrUnknownOrder   = errors.New("venue: order not resting")
	ErrDuplicateOrder = errors.New("venue: order already submitted")
)

const defaultMaxPassiveFills = 1024

// Ack is the synchronous answer to a venue call. Err is nil when accepted.
// Everything else about the order arrives later as reports.
type Ack struct {
	OrderID uint64
	Err     error
}

// Accepted reports whether the request was taken.
func (a Ack) Accepted() bool {
	return a.Err == nil
}

// Port is the boundary between the engine and an execution model.
type Port interface {
	Submit(req schema.VenueRequest) Ack
	Cancel(req schema.VenueRequest) Ack
	Replace(req schema.VenueRequest) Ack
	// Drain appends and clears queued reports, in emission order.
	Drain(dst []schema.VenueReport) []schema.VenueReport
}

// MarketObserver is implemented by ports that react to market data.
type MarketObserver interface {
	OnMarket(ev schema.MarketEvent, top book.Top)
}

// Config controls fees and the fill model.
type Config struct {
	MakerFeeBps     int64  `json:"makerFeeBps" yaml:"maker_fee_bps"`
	TakerFeeBps     int64  `json:"takerFeeBps" yaml:"taker_fee_bps"`
	PartialFillPct  int    `json:"partialFillPct" yaml:"partial_fill_pct"`
	Seed            uint64 `json:"seed" yaml:"seed"`
	MaxPassiveFills int    `json:"maxPassiveFills" yaml:"max_passive_fills"`
	IDPrefix        string `json:"idPrefix" yaml:"id_prefix"`
}

func (c Config) withDefaults(prefix string) Config {
	if c.MaxPassiveFills <= 0 {
		c.MaxPassiveFills = defaultMaxPassiveFills
	}
	if c.IDPrefix == "" {
		c.IDPrefix = prefix
	}
	c.PartialFillPct = min(max(c.PartialFillPct, 0), 100)
	return c
}

type resting struct {
	req       schema.VenueRequest
	venueID   string
	filled    schema.Quantity
	remaining schema.Quantity
}

// ledger is the order and report bookkeeping shared by every execution model.
type ledger struct {
	cfg     Config
	orders  map[uint64]*resting
	seqs    map[uint64]uint64
	reports []schema.VenueReport
	tops    map[schema.Symbol]book.Top
	now     int64
	nextID  uint64
	scratch []uint64
}

func newLedger(cfg Config) ledger {
	return ledger{
		cfg:    cfg,
		orders: make(map[uint64]*resting),
		seqs:   make(map[uint64]uint64),
		tops:   make(map[schema.Symbol]book.Top),
	}
}

func validate(req schema.VenueRequest) error {
	switch {
	case req.OrderID == 0:
		return errors.Wrap(ErrInvalidRequest, "zero order id")
	case req.Qty <= 0:
		return errors.Wrapf(ErrInvalidRequest, "order=%d qty=%d", req.OrderID, req.Qty)
	case req.Side != schema.OrderSideBuy && req.Side != schema.OrderSideSell:
		return errors.Wrapf(ErrInvalidRequest, "order=%d side=%s", req.OrderID, req.Side)
	case req.Type == schema.OrderTypeLimit && req.Price <= 0:
		return errors.Wrapf(ErrInvalidRequest, "order=%d price=%d", req.OrderID, req.Price)
	case req.Type != schema.OrderTypeLimit && req.Type != schema.OrderTypeMarket:
		return errors.Wrapf(ErrInvalidRequest, "order=%d type=%d", req.OrderID, req.Type)
	}
	return nil
}

func (l *ledger) emit(r schema.VenueReport) {
	l.seqs[r.OrderID]++
	r.Seq = l.seqs[r.OrderID]
	r.TsEvent = l.now
	l.reports = append(l.reports, r)
}

func (l *ledger) accept(req schema.VenueRequest) (*resting, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if _, ok := l.seqs[req.OrderID]; ok {
		return nil, errors.Wrapf(ErrDuplicateOrder, "order=%d", req.OrderID)
	}
	l.nextID++
	o := &resting{req: req, venueID: l.cfg.IDPrefix + strconv.FormatUint(l.nextID, 10), remaining: req.Qty}
	l.emit(schema.VenueReport{OrderID: req.OrderID, Type: schema.ReportAccepted, VenueOrderID: o.venueID})
	return o, nil
}

// fill emits a fill for qty at price and reports whether the order is done.
func (l *ledger) fill(o *resting, price schema.Price, qty schema.Quantity, feeBps int64) bool {
	qty = min(qty, o.remaining)
	o.filled += qty
	o.remaining -= qty
	typ := schema.ReportPartialFill
	if o.remaining == 0 {
		typ = schema.ReportFill
	}
	l.emit(schema.VenueReport{
		OrderID:        o.req.OrderID,
		Type:           typ,
		VenueOrderID:   o.venueID,
		FilledQtyDelta: qty,
		FillPrice:      price,
		Fee:            fee(price, qty, feeBps),
	})
	return o.remaining == 0
}

func (l *ledger) rest(o *resting) {
	l.orders[o.req.OrderID] = o
}

func (l *ledger) kill(o *resting, typ schema.ReportType, reason string) {
	delete(l.orders, o.req.OrderID)
	l.emit(schema.VenueReport{OrderID: o.req.OrderID, Type: typ, VenueOrderID: o.venueID, Reason: reason})
}

func (l *ledger) cancel(req schema.VenueRequest) Ack {
	o, ok := l.orders[req.OrderID]
	if !ok {
		return Ack{OrderID: req.OrderID, Err: errors.Wrapf(ErrUnknownOrder, "order=%d", req.OrderID)}
	}
	l.kill(o, schema.ReportCanceled, "canceled")
	return Ack{OrderID: req.OrderID}
}

// replace applies new terms to a resting order and returns it.
func (l *ledger) replace(req schema.VenueRequest) (*resting, error) {
	o, ok := l.orders[req.OrderID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOrder, "order=%d", req.OrderID)
	}
	if req.Qty <= o.filled || (o.req.Type == schema.OrderTypeLimit && req.Price <= 0) {
		return nil, errors.Wrapf(ErrInvalidRequest, "order=%d replace price=%d qty=%d filled=%d", req.OrderID, req.Price, req.Qty, o.filled)
	}
	o.req.Price = req.Price
	o.req.Qty = req.Qty
	o.remaining = req.Qty - o.filled
	l.emit(schema.VenueReport{OrderID: o.req.OrderID, Type: schema.ReportReplaced, VenueOrderID: o.venueID, NewPrice: req.Price, NewQty: req.Qty})
	return o, nil
}

// expire drops GTD orders at their deadline without a report; the OMS expires them on the same clock.
func (l *ledger) expire(ts int64) {
	for id, o := range l.orders {
		if o.req.TimeInForce == schema.TimeInForceGTD && o.req.ExpireAt > 0 && ts >= o.req.ExpireAt {
			delete(l.orders, id)
		}
	}
}

// restingIDs returns the resting order ids of symbol in ascending order.
func (l *ledger) restingIDs(symbol schema.Symbol) []uint64 {
	l.scratch = l.scratch[:0]
	for id, o := range l.orders {
		if o.req.Symbol == symbol {
			l.scratch = append(l.scratch, id)
		}
	}
	slices.Sort(l.scratch)
	return l.scratch
}

func (l *ledger) observe(ev schema.MarketEvent, top book.Top) {
	if ev.TsEvent > l.now {
		l.now = ev.TsEvent
	}
	if ev.Symbol != "" && ev.Kind != schema.MarketEventClockTick {
		l.tops[ev.Symbol] = top
	}
}

func (l *ledger) drain(dst []schema.VenueReport) []schema.VenueReport {
	dst = append(dst, l.reports...)
	l.reports = l.reports[:0]
	return dst
}

// Resting returns the number of resting orders.
func (l *ledger) Resting() int {
	return len(l.orders)
}

// crossPrice returns the touch price a request would trade at, if it crosses.
func crossPrice(side schema.OrderSide, typ schema.OrderType, limit schema.Price, top book.Top) (schema.Price, schema.Quantity, bool) {
	switch side {
	case schema.OrderSideBuy:
		if top.HasAsk && (typ == schema.OrderTypeMarket || limit >= top.Ask.Price) {
			return top.Ask.Price, top.Ask.Qty, true
		}
	case schema.OrderSideSell:
		if top.HasBid && (typ == schema.OrderTypeMarket || limit <= top.Bid.Price) {
			return top.Bid.Price, top.Bid.Qty, true
		}
	}
	return 0, 0, false
}

func fee(price schema.Price, qty schema.Quantity, bps int64) schema.Fee {
	if bps == 0 {
		return 0
	}
	return schema.Fee(int64(price) * int64(qty) * bps / 10_000)
}

package oms

import (
	"encoding/binary"
	"slices"

	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

const defaultMaxPendingPerOrder = 64

// Config controls report buffering.
type Config struct {
	MaxPendingPerOrder int
}

func (c Config) withDefaults() Config {
	if c.MaxPendingPerOrder <= 0 {
		c.MaxPendingPerOrder = defaultMaxPendingPerOrder
	}
	return c
}

// Handle identifies an order created by SubmitPlace and carries its venue request.
type Handle struct {
	OrderID  uint64
	ClientID string
	Request  schema.VenueRequest
}

// Ack is the outcome of a cancel or modify submission.
// HasRequest is false for no-op acks; Warning is set for harmless conditions.
type Ack struct {
	OrderID    uint64
	Request    schema.VenueRequest
	HasRequest bool
	Warning    error
}

// AuditEntry records a rejected report or local decision for later inspection.
type AuditEntry struct {
	OrderID uint64
	Seq     uint64
	Type    schema.ReportType
	Err     string
}

type pendingReport struct {
	report schema.VenueReport
	tick   uint64
}

type entry struct {
	order   Order
	seen    map[uint64]struct{}
	pending map[uint64]pendingReport
}

// OMS owns every order and applies venue reports to them.
type OMS struct {
	cfg      Config
	entries  []*entry
	active   map[string]uint64
	byVenue  map[string]uint64
	open     map[uint64]struct{}
	buffered map[uint64]struct{}
	audit    []AuditEntry
}

// New creates an empty OMS.
func New(cfg Config) *OMS {
	return &OMS{
		cfg:      cfg.withDefaults(),
		active:   make(map[string]uint64),
		byVenue:  make(map[string]uint64),
		open:     make(map[uint64]struct{}),
		buffered: make(map[uint64]struct{}),
	}
}

// SubmitPlace creates a New order and returns the place request for the venue.
func (m *OMS) SubmitPlace(intent schema.Intent) (Handle, error) {
	if err := validatePlace(intent); err != nil {
		return Handle{}, err
	}
	if id, ok := m.active[intent.ClientID]; ok {
		return Handle{}, errors.Wrapf(ErrDuplicateClientID, "client=%s order=%d", intent.ClientID, id)
	}

	id := uint64(len(m.entries)) + 1
	tif := intent.TimeInForce
	if tif == schema.TimeInForceUnknown {
		tif = schema.TimeInForceGTC
	}
	e := &entry{order: Order{
		ID:           id,
		ClientID:     intent.ClientID,
		Symbol:       intent.Symbol,
		Side:         intent.Side,
		Type:         intent.Type,
		TimeInForce:  tif,
		ExpireAt:     intent.ExpireAt,
		Price:        intent.Price,
		OriginalQty:  intent.Qty,
		RemainingQty: intent.Qty,
		State:        OrderStateNew,
	}}
	m.entries = append(m.entries, e)
	m.active[intent.ClientID] = id
	m.open[id] = struct{}{}

	return Handle{
		OrderID:  id,
		ClientID: intent.ClientID,
		Request: schema.VenueRequest{
			Kind:        schema.RequestPlace,
			OrderID:     id,
			ClientID:    intent.ClientID,
			Symbol:      intent.Symbol,
			Side:        intent.Side,
			Type:        intent.Type,
			TimeInForce: tif,
			ExpireAt:    intent.ExpireAt,
			Price:       intent.Price,
			Qty:         intent.Qty,
		},
	}, nil
}

func validatePlace(intent schema.Intent) error {
	switch {
	case intent.Kind != schema.IntentPlace:
		return errors.Wrapf(ErrInvalidIntent, "kind=%s", intent.Kind)
	case intent.ClientID == "":
		return errors.Wrap(ErrInvalidIntent, "empty client id")
	case intent.Symbol == "":
		return errors.Wrap(ErrInvalidIntent, "empty symbol")
	case intent.Side != schema.OrderSideBuy && intent.Side != schema.OrderSideSell:
		return errors.Wrapf(ErrInvalidIntent, "side=%s", intent.Side)
	case intent.Qty <= 0:
		return errors.Wrapf(ErrInvalidIntent, "qty=%d", intent.Qty)
	case intent.Type == schema.OrderTypeMarket:
		return nil
	case intent.Type != schema.OrderTypeLimit:
		return errors.Wrapf(ErrInvalidIntent, "type=%d", intent.Type)
	case intent.Price <= 0:
		return errors.Wrapf(ErrInvalidIntent, "price=%d", intent.Price)
	case intent.TimeInForce == schema.TimeInForceGTD && intent.ExpireAt <= 0:
		return errors.Wrap(ErrInvalidIntent, "gtd without expire time")
	}
	return nil
}

// SubmitCancel requests cancellation of an open order.
// Unknown and terminal targets succeed as no-ops with a warning.
func (m *OMS) SubmitCancel(intent schema.Intent) (Ack, error) {
	e, err := m.target(intent)
	if err != nil {
		return Ack{Warning: err}, nil
	}
	o := &e.order
	if o.State.IsTerminal() {
		return Ack{OrderID: o.ID, Warning: errors.Wrapf(ErrTerminalState, "order=%d state=%s", o.ID, o.State)}, nil
	}
	if o.CancelPending {
		return Ack{OrderID: o.ID, Warning: errors.Wrapf(ErrCancelPending, "order=%d", o.ID)}, nil
	}
	o.CancelPending = true
	return Ack{
		OrderID:    o.ID,
		HasRequest: true,
		Request: schema.VenueRequest{
			Kind:         schema.RequestCancel,
			OrderID:      o.ID,
			ClientID:     o.ClientID,
			VenueOrderID: o.VenueOrderID,
			Symbol:       o.Symbol,
			Side:         o.Side,
		},
	}, nil
}

// SubmitModify requests a price and/or quantity change of an open order.
// The order itself changes only when the venue reports Replaced.
func (m *OMS) SubmitModify(intent schema.Intent) (Ack, error) {
	e, err := m.target(intent)
	if err != nil {
		return Ack{}, err
	}
	o := &e.order
	if o.State.IsTerminal() {
		return Ack{}, errors.Wrapf(ErrTerminalState, "order=%d state=%s", o.ID, o.State)
	}
	if intent.NewPrice < 0 || intent.NewQty < 0 {
		return Ack{}, errors.Wrapf(ErrInvalidIntent, "new price=%d new qty=%d", intent.NewPrice, intent.NewQty)
	}
	if intent.NewQty != 0 && intent.NewQty <= o.FilledQty {
		return Ack{}, errors.Wrapf(ErrInvariantViolation, "order=%d new qty=%d filled=%d", o.ID, intent.NewQty, o.FilledQty)
	}
	price, qty := intent.NewPrice, intent.NewQty
	if price == 0 {
		price = o.Price
	}
	if qty == 0 {
		qty = o.OriginalQty
	}
	return Ack{
		OrderID:    o.ID,
		HasRequest: true,
		Request: schema.VenueRequest{
			Kind:         schema.RequestReplace,
			OrderID:      o.ID,
			ClientID:     o.ClientID,
			VenueOrderID: o.VenueOrderID,
			Symbol:       o.Symbol,
			Side:         o.Side,
			Type:         o.Type,
			TimeInForce:  o.TimeInForce,
			ExpireAt:     o.ExpireAt,
			Price:        price,
			Qty:          qty,
		},
	}, nil
}

// target resolves an intent's order by client id, falling back to venue order id.
// Active client ids win over terminal ones that share the same id.
func (m *OMS) target(intent schema.Intent) (*entry, error) {
	if intent.ClientID != "" {
		if id, ok := m.active[intent.ClientID]; ok {
			return m.entries[id-1], nil
		}
		for i := len(m.entries) - 1; i >= 0; i-- {
			if m.entries[i].order.ClientID == intent.ClientID {
				return m.entries[i], nil
			}
		}
		return nil, errors.Wrapf(ErrUnknownOrder, "client=%s", intent.ClientID)
	}
	if intent.VenueOrderID != "" {
		if id, ok := m.byVenue[intent.VenueOrderID]; ok {
			return m.entries[id-1], nil
		}
		return nil, errors.Wrapf(ErrUnknownOrder, "venue order=%s", intent.VenueOrderID)
	}
	return nil, errors.Wrap(ErrUnknownOrder, "empty target")
}

// RejectLocal rejects a New order that the venue port refused synchronously.
func (m *OMS) RejectLocal(orderID uint64, reason string) (Order, error) {
	e, ok := m.entry(orderID)
	if !ok {
		return Order{}, errors.Wrapf(ErrUnknownOrder, "order=%d", orderID)
	}
	if e.order.State != OrderStateNew {
		return e.order, errors.Wrapf(ErrInvalidTransition, "order=%d state=%s local reject", orderID, e.order.State)
	}
	e.order.State = OrderStateRejected
	e.order.Reason = reason
	m.settle(e)
	return e.order, nil
}

// ClearCancelPending re-arms cancellation after the venue refused a cancel.
func (m *OMS) ClearCancelPending(orderID uint64) {
	if e, ok := m.entry(orderID); ok {
		e.order.CancelPending = false
	}
}

// ExpireOrders expires open GTD orders whose deadline is at or before ts.
func (m *OMS) ExpireOrders(ts int64, dst []Update) []Update {
	for _, id := range m.openIDs() {
		e := m.entries[id-1]
		o := &e.order
		if o.TimeInForce != schema.TimeInForceGTD || o.ExpireAt <= 0 || ts < o.ExpireAt {
			continue
		}
		if o.State != OrderStateWorking && o.State != OrderStatePartiallyFilled {
			continue
		}
		prev := o.State
		o.State = OrderStateExpired
		o.CancelPending = false
		o.UpdatedAt = ts
		o.Reason = "gtd expired"
		m.settle(e)
		dst = append(dst, Update{
			Report: schema.VenueReport{OrderID: o.ID, Type: schema.ReportExpired, TsEvent: ts, Reason: o.Reason},
			Order:  *o,
			Prev:   prev,
		})
	}
	return dst
}

func (m *OMS) settle(e *entry) {
	if !e.order.State.IsTerminal() {
		return
	}
	delete(m.open, e.order.ID)
	if id, ok := m.active[e.order.ClientID]; ok && id == e.order.ID {
		delete(m.active, e.order.ClientID)
	}
}

func (m *OMS) entry(id uint64) (*entry, bool) {
	if id == 0 || id > uint64(len(m.entries)) {
		return nil, false
	}
	return m.entries[id-1], true
}

func (m *OMS) openIDs() []uint64 {
	ids := make([]uint64, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *OMS) record(r schema.VenueReport, err error) {
	m.audit = append(m.audit, AuditEntry{OrderID: r.OrderID, Seq: r.Seq, Type: r.Type, Err: err.Error()})
}

// Order returns a copy of the order.
func (m *OMS) Order(id uint64) (Order, bool) {
	e, ok := m.entry(id)
	if !ok {
		return Order{}, false
	}
	return e.order, true
}

// ByClientID returns the active order for a client id, or its latest terminal order.
func (m *OMS) ByClientID(clientID string) (Order, bool) {
	e, err := m.target(schema.Intent{ClientID: clientID})
	if err != nil {
		return Order{}, false
	}
	return e.order, true
}

// OpenOrders returns copies of the open orders of symbol, or of every symbol when symbol is empty,
// in ascending order id.
func (m *OMS) OpenOrders(symbol schema.Symbol) []Order {
	out := make([]Order, 0, len(m.open))
	for _, id := range m.openIDs() {
		o := m.entries[id-1].order
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// Orders returns copies of every order, terminal ones included.
func (m *OMS) Orders() []Order {
	out := make([]Order, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.order
	}
	return out
}

// Audit returns the recorded violations.
func (m *OMS) Audit() []AuditEntry {
	return slices.Clone(m.audit)
}

// OpenCount returns the number of open orders.
func (m *OMS) OpenCount() int {
	return len(m.open)
}

// PendingCount returns the number of buffered out-of-order reports.
func (m *OMS) PendingCount() int {
	n := 0
	for id := range m.buffered {
		n += len(m.entries[id-1].pending)
	}
	return n
}

// AppendDigest appends a canonical encoding of every order to buf.
func (m *OMS) AppendDigest(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(m.entries)))
	for _, e := range m.entries {
		o := &e.order
		buf = binary.LittleEndian.AppendUint64(buf, o.ID)
		buf = append(buf, o.ClientID...)
		buf = append(buf, 0)
		buf = append(buf, o.VenueOrderID...)
		buf = append(buf, 0)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(o.State))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.Price))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.OriginalQty))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.FilledQty))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.RemainingQty))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.FilledNotional))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.Fees))
		buf = binary.LittleEndian.AppendUint64(buf, o.LastSeq)
	}
	return buf
}

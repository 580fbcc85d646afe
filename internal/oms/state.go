package oms

import (
	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

var (
	ErrDuplicateClientID  = errors.New("oms: client id already active")
	ErrUnknownOrder       = errors.New("oms: order not found")
	ErrTerminalState      = errors.New("oms: order is terminal")
	ErrInvalidTransition  = errors.New("oms: invalid order state transition")
	ErrInvariantViolation = errors.New("oms: quantity invariant violation")
	ErrOutOfOrder         = errors.New("oms: report out of order")
	ErrInvalidIntent      = errors.New("oms: invalid intent")
	ErrCancelPending      = errors.New("oms: cancel already pending")
	ErrPendingFull        = errors.New("oms: pending report buffer full")
)

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateNew
	OrderStateAccepted
	OrderStateWorking
	OrderStatePartiallyFilled
	OrderStateFilled
	OrderStateCanceled
	OrderStateRejected
	OrderStateExpired
)

func (s OrderState) String() string {
	switch s {
	case OrderStateNew:
		return "new"
	case OrderStateAccepted:
		return "accepted"
	case OrderStateWorking:
		return "working"
	case OrderStatePartiallyFilled:
		return "partially_filled"
	case OrderStateFilled:
		return "filled"
	case OrderStateCanceled:
		return "canceled"
	case OrderStateRejected:
		return "rejected"
	case OrderStateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateExpired:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the order may still trade.
func (s OrderState) IsOpen() bool {
	return s != OrderStateUnknown && !s.IsTerminal()
}

// Order is the OMS view of one order.
type Order struct {
	ID             uint64
	ClientID       string
	VenueOrderID   string
	Symbol         schema.Symbol
	Side           schema.OrderSide
	Type           schema.OrderType
	TimeInForce    schema.TimeInForce
	ExpireAt       int64
	Price          schema.Price
	OriginalQty    schema.Quantity
	FilledQty      schema.Quantity
	RemainingQty   schema.Quantity
	FilledNotional schema.Notional
	Fees           schema.Fee
	State          OrderState
	CancelPending  bool
	LastSeq        uint64
	UpdatedAt      int64
	Reason         string
}

// AvgFillPrice returns the volume-weighted fill price truncated to ticks.
func (o Order) AvgFillPrice() schema.Price {
	if o.FilledQty == 0 {
		return 0
	}
	return schema.Price(int64(o.FilledNotional) / int64(o.FilledQty))
}

func (o Order) balanced() bool {
	return o.RemainingQty >= 0 && o.FilledQty+o.RemainingQty == o.OriginalQty
}

// transition applies one report to an order copy. o is unchanged on error.
func transition(o *Order, r schema.VenueReport) error {
	if o.State.IsTerminal() {
		return errors.Wrapf(ErrTerminalState, "order=%d state=%s report=%s", o.ID, o.State, r.Type)
	}

	next := *o
	switch r.Type {
	case schema.ReportAccepted:
		if o.State != OrderStateNew {
			return invalid(o, r)
		}
		next.State = OrderStateAccepted
		if r.VenueOrderID != "" {
			next.VenueOrderID = r.VenueOrderID
		}
	case schema.ReportRejected:
		if o.State != OrderStateNew {
			return invalid(o, r)
		}
		next.State = OrderStateRejected
		next.Reason = r.Reason
	case schema.ReportWorking:
		if o.State != OrderStateAccepted {
			return invalid(o, r)
		}
		next.State = OrderStateWorking
	case schema.ReportPartialFill, schema.ReportFill:
		switch o.State {
		case OrderStateAccepted, OrderStateWorking, OrderStatePartiallyFilled:
		default:
			return invalid(o, r)
		}
		d := r.FilledQtyDelta
		if d <= 0 || d > o.RemainingQty {
			return errors.Wrapf(ErrInvariantViolation, "order=%d delta=%d remaining=%d", o.ID, d, o.RemainingQty)
		}
		if r.Type == schema.ReportFill && d != o.RemainingQty {
			return errors.Wrapf(ErrInvariantViolation, "order=%d fill delta=%d leaves=%d", o.ID, d, o.RemainingQty-d)
		}
		if r.Type == schema.ReportPartialFill && d == o.RemainingQty {
			return errors.Wrapf(ErrInvariantViolation, "order=%d partial fill exhausts remaining=%d", o.ID, d)
		}
		next.FilledQty += d
		next.RemainingQty -= d
		next.FilledNotional += schema.Notional(int64(r.FillPrice) * int64(d))
		next.Fees += r.Fee
		if next.RemainingQty == 0 {
			next.State = OrderStateFilled
		} else {
			next.State = OrderStatePartiallyFilled
		}
	case schema.ReportCanceled, schema.ReportExpired:
		if o.State != OrderStateWorking && o.State != OrderStatePartiallyFilled {
			return invalid(o, r)
		}
		if r.Type == schema.ReportCanceled {
			next.State = OrderStateCanceled
		} else {
			next.State = OrderStateExpired
		}
		next.Reason = r.Reason
	case schema.ReportReplaced:
		switch o.State {
		case OrderStateAccepted, OrderStateWorking, OrderStatePartiallyFilled:
		default:
			return invalid(o, r)
		}
		if r.NewPrice != 0 {
			next.Price = r.NewPrice
		}
		if r.NewQty != 0 {
			if r.NewQty < o.FilledQty {
				return errors.Wrapf(ErrInvariantViolation, "order=%d new qty=%d below filled=%d", o.ID, r.NewQty, o.FilledQty)
			}
			next.OriginalQty = r.NewQty
			next.RemainingQty = r.NewQty - o.FilledQty
		}
		switch {
		case next.RemainingQty == 0:
			next.State = OrderStateFilled
		case next.FilledQty > 0:
			next.State = OrderStatePartiallyFilled
		default:
			next.State = OrderStateWorking
		}
	default:
		return invalid(o, r)
	}

	if !next.balanced() {
		return errors.Wrapf(ErrInvariantViolation, "order=%d filled=%d remaining=%d original=%d", o.ID, next.FilledQty, next.RemainingQty, next.OriginalQty)
	}
	if next.State.IsTerminal() {
		next.CancelPending = false
	}
	if r.TsEvent != 0 {
		next.UpdatedAt = r.TsEvent
	}
	*o = next
	return nil
}

func invalid(o *Order, r schema.VenueReport) error {
	return errors.Wrapf(ErrInvalidTransition, "order=%d state=%s report=%s", o.ID, o.State, r.Type)
}

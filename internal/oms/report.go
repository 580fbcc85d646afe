package oms

import (
	"slices"

	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

// Update is one report applied to an order.
type Update struct {
	Report schema.VenueReport
	Order  Order
	Prev   OrderState
}

// ApplyReportStrict applies a report immediately.
// Duplicate (OrderID, Seq) pairs are ignored and return ok=false with a nil error.
// A report older than the last applied one that was never seen fails with ErrOutOfOrder.
// Sequence gaps are accepted; skipped sequences become stale.
func (m *OMS) ApplyReportStrict(r schema.VenueReport) (Update, bool, error) {
	e, ok := m.entry(r.OrderID)
	if !ok {
		err := errors.Wrapf(ErrUnknownOrder, "order=%d seq=%d", r.OrderID, r.Seq)
		m.record(r, err)
		return Update{}, false, err
	}
	if e.hasSeen(r.Seq) {
		return Update{}, false, nil
	}
	if r.Seq <= e.order.LastSeq {
		err := errors.Wrapf(ErrOutOfOrder, "order=%d seq=%d last=%d", r.OrderID, r.Seq, e.order.LastSeq)
		m.record(r, err)
		return Update{}, false, err
	}
	u, err := m.apply(e, r)
	return u, err == nil, err
}

// ApplyReportBuffered applies a report in per-order sequence order.
// Reports ahead of the next expected sequence are held, with tick recorded for ExpireGaps,
// and released once the gap fills. Applied updates are appended to dst.
func (m *OMS) ApplyReportBuffered(r schema.VenueReport, tick uint64, dst []Update) ([]Update, error) {
	e, ok := m.entry(r.OrderID)
	if !ok {
		err := errors.Wrapf(ErrUnknownOrder, "order=%d seq=%d", r.OrderID, r.Seq)
		m.record(r, err)
		return dst, err
	}
	if e.hasSeen(r.Seq) {
		return dst, nil
	}
	if _, held := e.pending[r.Seq]; held {
		return dst, nil
	}
	expected := e.order.LastSeq + 1
	switch {
	case r.Seq < expected:
		err := errors.Wrapf(ErrOutOfOrder, "order=%d seq=%d expected=%d", r.OrderID, r.Seq, expected)
		m.record(r, err)
		return dst, err
	case r.Seq > expected:
		if len(e.pending) >= m.cfg.MaxPendingPerOrder {
			err := errors.Wrapf(ErrPendingFull, "order=%d seq=%d held=%d", r.OrderID, r.Seq, len(e.pending))
			m.record(r, err)
			return dst, err
		}
		if e.pending == nil {
			e.pending = make(map[uint64]pendingReport)
		}
		e.pending[r.Seq] = pendingReport{report: r, tick: tick}
		m.buffered[e.order.ID] = struct{}{}
		return dst, nil
	}

	u, err := m.apply(e, r)
	if err == nil {
		dst = append(dst, u)
	}
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	dst, errs = m.flush(e, dst, errs)
	return dst, errors.Join(errs...)
}

// ExpireGaps treats gaps whose oldest held report arrived more than maxTicks ago as permanently
// dropped: the missing sequences are skipped and the held reports applied in order.
func (m *OMS) ExpireGaps(tick, maxTicks uint64, dst []Update) ([]Update, error) {
	if len(m.buffered) == 0 {
		return dst, nil
	}
	ids := make([]uint64, 0, len(m.buffered))
	for id := range m.buffered {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		e := m.entries[id-1]
		first, oldest := e.oldestPending()
		if tick < oldest+maxTicks {
			continue
		}
		e.order.LastSeq = first - 1
		dst, errs = m.flush(e, dst, errs)
	}
	return dst, errors.Join(errs...)
}

// flush applies held reports while the next expected sequence is present.
func (m *OMS) flush(e *entry, dst []Update, errs []error) ([]Update, []error) {
	for {
		p, ok := e.pending[e.order.LastSeq+1]
		if !ok {
			break
		}
		delete(e.pending, p.report.Seq)
		u, err := m.apply(e, p.report)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dst = append(dst, u)
	}
	if len(e.pending) == 0 {
		delete(m.buffered, e.order.ID)
	}
	return dst, errs
}

// apply runs the transition and consumes the report sequence whether or not it succeeds,
// so replaying the same report is always a no-op.
func (m *OMS) apply(e *entry, r schema.VenueReport) (Update, error) {
	e.markSeen(r.Seq)
	if r.Seq > e.order.LastSeq {
		e.order.LastSeq = r.Seq
	}
	prev := e.order.State
	if err := transition(&e.order, r); err != nil {
		m.record(r, err)
		return Update{}, err
	}
	if e.order.VenueOrderID != "" {
		m.byVenue[e.order.VenueOrderID] = e.order.ID
	}
	m.settle(e)
	return Update{Report: r, Order: e.order, Prev: prev}, nil
}

func (e *entry) hasSeen(seq uint64) bool {
	_, ok := e.seen[seq]
	return ok
}

func (e *entry) markSeen(seq uint64) {
	if e.seen == nil {
		e.seen = make(map[uint64]struct{}, 4)
	}
	e.seen[seq] = struct{}{}
}

func (e *entry) oldestPending() (first uint64, tick uint64) {
	first, tick = ^uint64(0), ^uint64(0)
	for seq, p := range e.pending {
		first = min(first, seq)
		tick = min(tick, p.tick)
	}
	return first, tick
}

package engine

import (
	"slices"

	"lobsim/internal/book"
	"lobsim/internal/codec"
	"lobsim/internal/oms"
	"lobsim/internal/schema"
)

// TickSource tells an input tick from a report tick chained after it.
type TickSource uint8

const (
	SourceInput TickSource = iota + 1
	SourceChained
	SourceTimer
)

func (s TickSource) String() string {
	switch s {
	case SourceInput:
		return "input"
	case SourceChained:
		return "chained"
	case SourceTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// TickResult is everything one tick produced.
// Slices are reused by the engine after Sink.OnTick returns.
type TickResult struct {
	Tick    uint64
	Seq     uint64
	TsEvent int64
	Source  TickSource
	Type    schema.EventType
	Symbol  schema.Symbol

	Changes   []book.BookChange
	Updates   []oms.Update
	Fills     []schema.Fill
	Decisions []schema.RiskDecision
	Requests  []schema.VenueRequest
	Warnings  []error
	Errors    []error
}

func (r *TickResult) reset(tick, seq uint64, ts int64, src TickSource, typ schema.EventType, symbol schema.Symbol) {
	r.Tick = tick
	r.Seq = seq
	r.TsEvent = ts
	r.Source = src
	r.Type = typ
	r.Symbol = symbol
	r.Changes = r.Changes[:0]
	r.Updates = r.Updates[:0]
	r.Fills = r.Fills[:0]
	r.Decisions = r.Decisions[:0]
	r.Requests = r.Requests[:0]
	r.Warnings = r.Warnings[:0]
	r.Errors = r.Errors[:0]
}

// Empty reports whether the tick produced nothing observable.
func (r *TickResult) Empty() bool {
	return len(r.Changes) == 0 && len(r.Updates) == 0 && len(r.Fills) == 0 &&
		len(r.Decisions) == 0 && len(r.Requests) == 0 && len(r.Warnings) == 0 && len(r.Errors) == 0
}

// Sink receives every tick result in order.
type Sink interface {
	OnTick(r *TickResult)
}

// Sinks fans a tick out to several sinks in order.
type Sinks []Sink

func (s Sinks) OnTick(r *TickResult) {
	for _, sink := range s {
		sink.OnTick(r)
	}
}

// Collector is a Sink that keeps copies of decisions, requests, fills, and
// the binary encoding of every intent that reached the chain.
type Collector struct {
	Ticks     int
	Decisions []schema.RiskDecision
	Requests  []schema.VenueRequest
	Fills     []schema.Fill
	Updates   []oms.Update
	Warnings  []error
	Errors    []error
	Intents   []byte
}

func (c *Collector) OnTick(r *TickResult) {
	c.Ticks++
	c.Decisions = append(c.Decisions, r.Decisions...)
	c.Requests = append(c.Requests, r.Requests...)
	c.Fills = append(c.Fills, r.Fills...)
	c.Updates = append(c.Updates, r.Updates...)
	c.Warnings = append(c.Warnings, r.Warnings...)
	c.Errors = append(c.Errors, r.Errors...)
	for _, d := range r.Decisions {
		c.Intents = codec.AppendIntent(c.Intents, d.Original)
	}
}

// States returns the order states an order passed through, in report order.
func (c *Collector) States(orderID uint64) []oms.OrderState {
	var out []oms.OrderState
	for _, u := range c.Updates {
		if u.Order.ID != orderID {
			continue
		}
		if len(out) == 0 {
			out = append(out, u.Prev)
		}
		out = append(out, u.Order.State)
	}
	return slices.Clip(out)
}

package engine

import (
	"context"
	"io"

	"lobsim/internal/codec"
	"lobsim/internal/obs"
	"lobsim/internal/schema"
	"lobsim/internal/state"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Source yields inputs in order and io.EOF at the end.
type Source interface {
	Next() (schema.Event, error)
}

// Summary describes a finished or interrupted run.
type Summary struct {
	Inputs       uint64           `json:"inputs"`
	Ticks        uint64           `json:"ticks"`
	ChainedTicks uint64           `json:"chainedTicks"`
	LastSeq      uint64           `json:"lastSeq"`
	LastEventTs  int64            `json:"lastEventTs"`
	Orders       int              `json:"orders"`
	OpenOrders   int              `json:"openOrders"`
	Fills        uint64           `json:"fills"`
	Realized     schema.Notional  `json:"realized"`
	Fees         schema.Fee       `json:"fees"`
	Halted       bool             `json:"halted"`
	Digest       string           `json:"digest"`
	Positions    []state.Position `json:"positions"`
}

// Run feeds src through the engine until EOF, a fatal error, or ctx is done.
// Lines the source cannot decode are counted and skipped.
func (e *Engine) Run(ctx context.Context, src Source) (Summary, error) {
	for {
		if err := ctx.Err(); err != nil {
			return e.Summary(), err
		}
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, codec.ErrInvalidLine) {
			e.metrics.Inc(obs.CounterInputInvalid)
			logs.Errorf("skip input: %s", err)
			continue
		}
		if err != nil {
			return e.Summary(), errors.Wrap(err, "read input")
		}
		if err := e.Process(ev); err != nil {
			return e.Summary(), err
		}
	}
	e.Flush()
	return e.Summary(), nil
}

// Summary reports the current run totals.
func (e *Engine) Summary() Summary {
	realized, fees := e.positions.Totals()
	return Summary{
		Inputs:       e.inputs,
		Ticks:        e.tick,
		ChainedTicks: e.chained,
		LastSeq:      e.seq,
		LastEventTs:  e.ts,
		Orders:       len(e.orders.Orders()),
		OpenOrders:   e.orders.OpenCount(),
		Fills:        e.fills,
		Realized:     realized,
		Fees:         fees,
		Halted:       e.chain.Engaged(),
		Digest:       e.DigestHex(),
		Positions:    e.positions.Positions(),
	}
}

package chaos

import (
	"math/rand/v2"
	"slices"

	"github.com/yanun0323/errors"

	"lobsim/internal/book"
	"lobsim/internal/schema"
	"lobsim/internal/venue"
	"lobsim/pkg/exception"
)

// Config controls report fault injection. The same seed always yields the same faults.
type Config struct {
	Seed          uint64  `json:"seed" yaml:"seed"`
	DropRate      float64 `json:"drop_rate" yaml:"drop_rate"`
	DuplicateRate float64 `json:"duplicate_rate" yaml:"duplicate_rate"`
	ReorderWindow int     `json:"reorder_window" yaml:"reorder_window"`
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Errorf("chaos: drop rate must be between 0 and 1: %v", c.DropRate)
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Errorf("chaos: duplicate rate must be between 0 and 1: %v", c.DuplicateRate)
	}
	if c.ReorderWindow < 0 {
		return errors.Errorf("chaos: reorder window must be >= 0: %d", c.ReorderWindow)
	}
	return nil
}

// Stats counts injected faults.
type Stats struct {
	Dropped    uint64
	Duplicated uint64
	Reordered  uint64
}

// Venue wraps a port and perturbs the reports it drains: some are dropped,
// some delivered twice, and up to ReorderWindow are held and released shuffled.
// Requests pass through untouched.
type Venue struct {
	inner    venue.Port
	observer venue.MarketObserver
	cfg      Config
	rng      *rand.Rand

	pending []schema.VenueReport
	scratch []schema.VenueReport
	stats   Stats
}

var (
	_ venue.Port           = (*Venue)(nil)
	_ venue.MarketObserver = (*Venue)(nil)
)

// Wrap returns inner perturbed by cfg.
func Wrap(inner venue.Port, cfg Config) (*Venue, error) {
	if inner == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "chaos: venue")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReorderWindow == 0 {
		cfg.ReorderWindow = 1
	}
	v := &Venue{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xda942042e4dd58b5)),
	}
	v.observer, _ = inner.(venue.MarketObserver)
	return v, nil
}

func (v *Venue) Submit(req schema.VenueRequest) venue.Ack  { return v.inner.Submit(req) }
func (v *Venue) Cancel(req schema.VenueRequest) venue.Ack  { return v.inner.Cancel(req) }
func (v *Venue) Replace(req schema.VenueRequest) venue.Ack { return v.inner.Replace(req) }

func (v *Venue) OnMarket(ev schema.MarketEvent, top book.Top) {
	if v.observer != nil {
		v.observer.OnMarket(ev, top)
	}
}

// Drain applies faults to the inner venue's reports. When the inner venue has
// nothing new, every held report is released so nothing waits forever.
func (v *Venue) Drain(dst []schema.VenueReport) []schema.VenueReport {
	v.scratch = v.inner.Drain(v.scratch[:0])
	if len(v.scratch) == 0 {
		for len(v.pending) > 0 {
			dst = v.release(dst)
		}
		return dst
	}
	for _, r := range v.scratch {
		if v.cfg.DropRate > 0 && v.rng.Float64() < v.cfg.DropRate {
			v.stats.Dropped++
			continue
		}
		v.pending = append(v.pending, r)
		if len(v.pending) >= v.cfg.ReorderWindow {
			dst = v.release(dst)
		}
	}
	return dst
}

// Pending returns how many reports are held back.
func (v *Venue) Pending() int {
	return len(v.pending)
}

// Stats returns the faults injected so far.
func (v *Venue) Stats() Stats {
	return v.stats
}

func (v *Venue) release(dst []schema.VenueReport) []schema.VenueReport {
	idx := 0
	if len(v.pending) > 1 {
		idx = v.rng.IntN(len(v.pending))
		if idx != 0 {
			v.stats.Reordered++
		}
	}
	r := v.pending[idx]
	v.pending = slices.Delete(v.pending, idx, idx+1)
	dst = append(dst, r)
	if v.cfg.DuplicateRate > 0 && v.rng.Float64() < v.cfg.DuplicateRate {
		v.stats.Duplicated++
		dst = append(dst, r)
	}
	return dst
}

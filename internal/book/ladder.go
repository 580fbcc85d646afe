package book

import (
	"cmp"
	"slices"

	"lobsim/internal/schema"
)

// ladder keeps one side of a book ordered so that the best level is the last element.
// Bids are stored ascending, asks descending; most updates land near the touch,
// which keeps inserts and removals at the tail.
type ladder struct {
	levels []schema.Level
	bid    bool

	best   schema.Level
	cached bool
}

func newLadder(bid bool) ladder {
	return ladder{bid: bid, cached: true}
}

func (l *ladder) compare(level schema.Level, price schema.Price) int {
	if l.bid {
		return cmp.Compare(level.Price, price)
	}
	return cmp.Compare(price, level.Price)
}

func (l *ladder) find(price schema.Price) (int, bool) {
	return slices.BinarySearchFunc(l.levels, price, l.compare)
}

// qty returns the resting quantity at price.
func (l *ladder) qty(price schema.Price) schema.Quantity {
	if i, ok := l.find(price); ok {
		return l.levels[i].Qty
	}
	return 0
}

// set upserts a level, removing it when qty is zero. It returns the previous quantity.
func (l *ladder) set(price schema.Price, qty schema.Quantity) schema.Quantity {
	i, ok := l.find(price)
	var prev schema.Quantity
	switch {
	case qty == 0:
		if !ok {
			return 0
		}
		prev = l.levels[i].Qty
		l.levels = slices.Delete(l.levels, i, i+1)
	case ok:
		prev = l.levels[i].Qty
		l.levels[i].Qty = qty
	default:
		l.levels = slices.Insert(l.levels, i, schema.Level{Price: price, Qty: qty})
	}
	l.invalidate(price)
	return prev
}

// invalidate drops the cached best only when price is at or through the cached extreme.
func (l *ladder) invalidate(price schema.Price) {
	if !l.cached {
		return
	}
	if len(l.levels) == 0 || l.best.Qty == 0 {
		l.cached = false
		return
	}
	if l.bid && price >= l.best.Price {
		l.cached = false
		return
	}
	if !l.bid && price <= l.best.Price {
		l.cached = false
	}
}

// replace swaps in a pre-validated, correctly ordered level slice.
func (l *ladder) replace(levels []schema.Level) {
	l.levels = levels
	l.cached = false
}

// top returns the best level.
func (l *ladder) top() (schema.Level, bool) {
	if !l.cached {
		if n := len(l.levels); n > 0 {
			l.best = l.levels[n-1]
		} else {
			l.best = schema.Level{}
		}
		l.cached = true
	}
	return l.best, l.best.Qty > 0
}

// depth copies up to n levels starting from the best.
func (l *ladder) depth(n int) []schema.Level {
	if n <= 0 || n > len(l.levels) {
		n = len(l.levels)
	}
	out := make([]schema.Level, 0, n)
	for i := len(l.levels) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.levels[i])
	}
	return out
}

func (l *ladder) len() int {
	return len(l.levels)
}

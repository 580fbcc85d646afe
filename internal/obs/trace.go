package obs

import "sync/atomic"

// TraceGenerator creates monotonically increasing trace IDs.
// The sequence depends only on the seed, so replays reproduce the same ids.
type TraceGenerator struct {
	next uint64
}

// NewTraceGenerator returns a generator seeded with the given value.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	return &TraceGenerator{next: seed << 20}
}

// Next returns the next trace ID.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}

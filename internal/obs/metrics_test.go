package obs

import (
	"testing"
	"time"

	"lobsim/internal/schema"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(schema.EventMarketData)
	m.ObserveEvent(schema.EventMarketData)
	m.ObserveEvent(schema.EventFill)
	m.IncRiskReason(schema.RiskReasonMaxQty)
	m.Inc(CounterCrossedBook)
	m.Inc(counterCount)
	m.ObserveTick(3 * time.Microsecond)
	m.ObserveTick(time.Microsecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.EventCounts[schema.EventMarketData])
	assert.Equal(t, uint64(1), snap.EventCounts[schema.EventFill])
	assert.Equal(t, uint64(1), snap.RiskReasonCounts[schema.RiskReasonMaxQty])
	assert.Equal(t, uint64(1), snap.Count(CounterCrossedBook))
	assert.Len(t, snap.Counters, 1)
	assert.Equal(t, LatencySnapshot{Count: 2, Min: time.Microsecond, Max: 3 * time.Microsecond, Avg: 2 * time.Microsecond}, snap.TickLatency)

	var nilMetrics *Metrics
	nilMetrics.Inc(CounterFill)
	assert.Empty(t, nilMetrics.Snapshot().Counters)
}

func TestTraceGeneratorIsReproducible(t *testing.T) {
	a, b := NewTraceGenerator(9), NewTraceGenerator(9)
	for range 3 {
		assert.Equal(t, a.Next(), b.Next())
	}
	assert.NotEqual(t, NewTraceGenerator(1).Next(), NewTraceGenerator(2).Next())
}

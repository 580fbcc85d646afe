package obs

import (
	"sync/atomic"
	"time"

	"lobsim/internal/schema"
)

const (
	maxEventType  = int(schema.EventFill)
	maxRiskReason = int(schema.RiskReasonInvalidIntent)
)

// Counter names a contained per-event condition.
type Counter uint8

const (
	CounterBookInvalid Counter = iota
	CounterBookGap
	CounterBookResync
	CounterCrossedBook
	CounterOMSError
	CounterOMSWarning
	CounterDuplicateReport
	CounterBufferedReport
	CounterVenueReject
	CounterIntent
	CounterTransform
	CounterFill
	CounterChainedTickOverflow
	CounterInputInvalid
	counterCount
)

func (c Counter) String() string {
	switch c {
	case CounterBookInvalid:
		return "book_invalid"
	case CounterBookGap:
		return "book_gap"
	case CounterBookResync:
		return "book_resync"
	case CounterCrossedBook:
		return "crossed_book"
	case CounterOMSError:
		return "oms_error"
	case CounterOMSWarning:
		return "oms_warning"
	case CounterDuplicateReport:
		return "duplicate_report"
	case CounterBufferedReport:
		return "buffered_report"
	case CounterVenueReject:
		return "venue_reject"
	case CounterIntent:
		return "intent"
	case CounterTransform:
		return "risk_transform"
	case CounterFill:
		return "fill"
	case CounterChainedTickOverflow:
		return "chained_tick_overflow"
	case CounterInputInvalid:
		return "input_invalid"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts      [maxEventType + 1]uint64
	riskReasonCounts [maxRiskReason + 1]uint64
	counters         [counterCount]uint64

	tickLatency     LatencyStats
	riskEvalLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	RiskReasonCounts map[schema.RiskReason]uint64
	Counters         map[Counter]uint64
	TickLatency      LatencySnapshot
	RiskEvalLatency  LatencySnapshot
}

// Count returns one counter value.
func (s Snapshot) Count(c Counter) uint64 {
	return s.Counters[c]
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts an event by type.
func (m *Metrics) ObserveEvent(eventType schema.EventType) {
	if m == nil {
		return
	}
	idx := int(eventType)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncRiskReason increments the risk reason counter.
func (m *Metrics) IncRiskReason(reason schema.RiskReason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// Inc increments a condition counter.
func (m *Metrics) Inc(c Counter) {
	if m == nil || c >= counterCount {
		return
	}
	atomic.AddUint64(&m.counters[c], 1)
}

// ObserveTick measures the wall time spent processing one engine input.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickLatency.Observe(d)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	riskCounts := make(map[schema.RiskReason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[schema.RiskReason(i)] = v
		}
	}
	counters := make(map[Counter]uint64)
	for i := range m.counters {
		if v := atomic.LoadUint64(&m.counters[i]); v > 0 {
			counters[Counter(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		RiskReasonCounts: riskCounts,
		Counters:         counters,
		TickLatency:      m.tickLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}

package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventType defines the category of an event stored in the journal.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketData
	EventVenueReport
	EventIntent
	EventRiskDecision
	EventVenueRequest
	EventFill
)

func (t EventType) String() string {
	switch t {
	case EventMarketData:
		return "MarketData"
	case EventVenueReport:
		return "VenueReport"
	case EventIntent:
		return "Intent"
	case EventRiskDecision:
		return "RiskDecision"
	case EventVenueRequest:
		return "VenueRequest"
	case EventFill:
		return "Fill"
	default:
		return "Unknown"
	}
}

// EventHeader is the common metadata attached to every event.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// Event is one engine input. Exactly one of Market or Report is meaningful,
// selected by Header.Type.
type Event struct {
	Header EventHeader
	Market MarketEvent
	Report VenueReport
}

// MarketInput wraps a market event into an engine input.
func MarketInput(ev MarketEvent) Event {
	return Event{
		Header: NewHeader(EventMarketData, 0, ev.Seq, ev.TsEvent, 0),
		Market: ev,
	}
}

// ReportInput wraps a venue report into an engine input with the given global sequence.
func ReportInput(seq uint64, report VenueReport) Event {
	return Event{
		Header: NewHeader(EventVenueReport, 0, seq, report.TsEvent, 0),
		Report: report,
	}
}

package recorder

import (
	"github.com/yanun0323/logs"

	"lobsim/internal/codec"
	"lobsim/internal/engine"
	"lobsim/internal/obs"
	"lobsim/internal/schema"
)

// Journal records engine inputs and the outputs of every tick.
// Inputs are tagged SourceInput and carry their global sequence; outputs are
// tagged SourceEngine, carry the tick number as Seq and the tick source in Flags.
// Records belonging to one input tick share a trace id.
type Journal struct {
	w     *Writer
	trace *obs.TraceGenerator
	buf   []byte

	current uint64
	err     error
}

// NewJournal wraps w. A nil trace generator leaves trace ids at zero.
func NewJournal(w *Writer, trace *obs.TraceGenerator) *Journal {
	return &Journal{w: w, trace: trace}
}

// RecordInput writes an input before the engine processes it.
func (j *Journal) RecordInput(ev schema.Event) error {
	if j.err != nil {
		return j.err
	}
	j.current = j.trace.Next()
	header := ev.Header
	header.Source = SourceInput
	header.TraceID = j.current

	j.buf = j.buf[:0]
	switch ev.Header.Type {
	case schema.EventMarketData:
		j.buf = codec.AppendMarketEvent(j.buf, ev.Market)
	case schema.EventVenueReport:
		j.buf = codec.AppendVenueReport(j.buf, ev.Report)
	default:
		// Unknown inputs are kept so a replay reproduces the same rejection.
	}
	return j.append(header)
}

// OnTick implements engine.Sink.
func (j *Journal) OnTick(r *engine.TickResult) {
	if j.err != nil {
		return
	}
	trace := j.current
	if r.Source != engine.SourceInput {
		trace = j.trace.Next()
	}
	header := func(typ schema.EventType) schema.EventHeader {
		h := schema.NewHeader(typ, SourceEngine, r.Tick, r.TsEvent, 0)
		h.Flags = uint16(r.Source)
		h.TraceID = trace
		return h
	}

	for i := range r.Decisions {
		j.buf = codec.AppendRiskDecision(j.buf[:0], r.Decisions[i])
		if j.append(header(schema.EventRiskDecision)) != nil {
			return
		}
	}
	for i := range r.Requests {
		j.buf = codec.AppendVenueRequest(j.buf[:0], r.Requests[i])
		if j.append(header(schema.EventVenueRequest)) != nil {
			return
		}
	}
	for i := range r.Updates {
		j.buf = codec.AppendVenueReport(j.buf[:0], r.Updates[i].Report)
		if j.append(header(schema.EventVenueReport)) != nil {
			return
		}
	}
	for i := range r.Fills {
		j.buf = codec.AppendFill(j.buf[:0], r.Fills[i])
		if j.append(header(schema.EventFill)) != nil {
			return
		}
	}
}

// Err returns the first write failure. Once set, the journal stops writing.
func (j *Journal) Err() error {
	return j.err
}

func (j *Journal) append(header schema.EventHeader) error {
	if err := j.w.Append(header, j.buf); err != nil {
		j.err = err
		logs.Errorf("journal append %s seq %d, err: %+v", header.Type, header.Seq, err)
		return err
	}
	return nil
}

// Tee returns a source that records every event it hands out.
func (j *Journal) Tee(src engine.Source) engine.Source {
	return &teeSource{src: src, j: j}
}

type teeSource struct {
	src engine.Source
	j   *Journal
}

func (t *teeSource) Next() (schema.Event, error) {
	ev, err := t.src.Next()
	if err != nil {
		return ev, err
	}
	if err := t.j.RecordInput(ev); err != nil {
		return schema.Event{}, err
	}
	return ev, nil
}

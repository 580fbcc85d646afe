package codec

import (
	"bufio"
	"bytes"
	"io"

	"lobsim/internal/schema"
	"lobsim/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

var (
	ErrEmptyLine   = errors.New("codec: empty line")
	ErrInvalidLine = errors.New("codec: invalid event line")
)

const maxLineSize = 16 << 20

// Line type tags.
const (
	TypeSnapshot = "l2_snapshot"
	TypeDelta    = "l2_delta"
	TypeTrade    = "trade"
	TypeClock    = "clock_tick"
	TypeReport   = "report"
)

type eventLine struct {
	Seq       uint64      `json:"seq"`
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	SymbolSeq uint64      `json:"symbol_seq,omitempty"`
	Ts        int64       `json:"ts,omitempty"`
	Side      string      `json:"side,omitempty"`
	Price     int64       `json:"price,omitempty"`
	Qty       int64       `json:"qty,omitempty"`
	Bids      [][2]int64  `json:"bids,omitempty"`
	Asks      [][2]int64  `json:"asks,omitempty"`
	Report    *reportLine `json:"report,omitempty"`
}

type reportLine struct {
	OrderID      uint64 `json:"order_id"`
	Seq          uint64 `json:"seq"`
	Kind         string `json:"kind"`
	VenueOrderID string `json:"venue_order_id,omitempty"`
	FilledQty    int64  `json:"filled_qty,omitempty"`
	FillPrice    int64  `json:"fill_price,omitempty"`
	Fee          int64  `json:"fee,omitempty"`
	NewPrice     int64  `json:"new_price,omitempty"`
	NewQty       int64  `json:"new_qty,omitempty"`
	Ts           int64  `json:"ts,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

var kindByType = map[string]schema.MarketEventKind{
	TypeSnapshot: schema.MarketEventL2Snapshot,
	TypeDelta:    schema.MarketEventL2Delta,
	TypeTrade:    schema.MarketEventTrade,
	TypeClock:    schema.MarketEventClockTick,
}

var reportTypes = map[string]schema.ReportType{
	"accepted":     schema.ReportAccepted,
	"working":      schema.ReportWorking,
	"rejected":     schema.ReportRejected,
	"partial_fill": schema.ReportPartialFill,
	"fill":         schema.ReportFill,
	"canceled":     schema.ReportCanceled,
	"expired":      schema.ReportExpired,
	"replaced":     schema.ReportReplaced,
}

// ParseSide accepts book sides (bid/ask) and order sides (buy/sell).
func ParseSide(v string) (schema.OrderSide, bool) {
	switch v {
	case "bid", "buy":
		return schema.OrderSideBuy, true
	case "ask", "sell":
		return schema.OrderSideSell, true
	default:
		return schema.OrderSideUnknown, false
	}
}

func bookSide(s schema.OrderSide) string {
	switch s {
	case schema.OrderSideBuy:
		return "bid"
	case schema.OrderSideSell:
		return "ask"
	default:
		return ""
	}
}

// AppendEventJSON appends ev as one JSON line, newline included.
func AppendEventJSON(dst []byte, ev schema.Event) ([]byte, error) {
	line := eventLine{Seq: ev.Header.Seq}
	switch ev.Header.Type {
	case schema.EventVenueReport:
		r := ev.Report
		line.Type = TypeReport
		line.Ts = ev.Header.TsEvent
		line.Report = &reportLine{
			OrderID:      r.OrderID,
			Seq:          r.Seq,
			Kind:         r.Type.String(),
			VenueOrderID: r.VenueOrderID,
			FilledQty:    int64(r.FilledQtyDelta),
			FillPrice:    int64(r.FillPrice),
			Fee:          int64(r.Fee),
			NewPrice:     int64(r.NewPrice),
			NewQty:       int64(r.NewQty),
			Ts:           r.TsEvent,
			Reason:       r.Reason,
		}
	case schema.EventMarketData:
		m := ev.Market
		line.Type = m.Kind.String()
		line.Symbol = string(m.Symbol)
		line.SymbolSeq = m.SymbolSeq
		line.Ts = m.TsEvent
		line.Price = int64(m.Price)
		line.Qty = int64(m.Qty)
		switch m.Kind {
		case schema.MarketEventL2Delta:
			line.Side = bookSide(m.Side)
		case schema.MarketEventTrade:
			if m.Side != schema.OrderSideUnknown {
				line.Side = m.Side.String()
			}
		}
		line.Bids = levelPairs(m.Bids)
		line.Asks = levelPairs(m.Asks)
	default:
		return dst, errors.Wrapf(exception.ErrTypeUnsupported, "event type %s", ev.Header.Type)
	}

	payload, err := sonic.ConfigFastest.Marshal(&line)
	if err != nil {
		return dst, errors.Wrap(err, "marshal event line")
	}
	dst = append(dst, payload...)
	return append(dst, '\n'), nil
}

// DecodeEventJSON parses one JSON line.
func DecodeEventJSON(line []byte) (schema.Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return schema.Event{}, ErrEmptyLine
	}
	var in eventLine
	if err := sonic.ConfigFastest.Unmarshal(line, &in); err != nil {
		return schema.Event{}, errors.Wrapf(ErrInvalidLine, "decode: %s", err.Error())
	}

	if in.Type == TypeReport {
		if in.Report == nil {
			return schema.Event{}, errors.Wrap(ErrInvalidLine, "report line without report")
		}
		typ, ok := reportTypes[in.Report.Kind]
		if !ok {
			return schema.Event{}, errors.Wrapf(ErrInvalidLine, "unknown report kind: %s", in.Report.Kind)
		}
		r := in.Report
		rep := schema.VenueReport{
			OrderID:        r.OrderID,
			Seq:            r.Seq,
			Type:           typ,
			VenueOrderID:   r.VenueOrderID,
			FilledQtyDelta: schema.Quantity(r.FilledQty),
			FillPrice:      schema.Price(r.FillPrice),
			Fee:            schema.Fee(r.Fee),
			NewPrice:       schema.Price(r.NewPrice),
			NewQty:         schema.Quantity(r.NewQty),
			TsEvent:        r.Ts,
			Reason:         r.Reason,
		}
		if rep.TsEvent == 0 {
			rep.TsEvent = in.Ts
		}
		return schema.ReportInput(in.Seq, rep), nil
	}

	kind, ok := kindByType[in.Type]
	if !ok {
		return schema.Event{}, errors.Wrapf(ErrInvalidLine, "unknown type: %q", in.Type)
	}
	ev := schema.MarketEvent{
		Kind:      kind,
		Symbol:    schema.Symbol(in.Symbol),
		Seq:       in.Seq,
		SymbolSeq: in.SymbolSeq,
		TsEvent:   in.Ts,
		Price:     schema.Price(in.Price),
		Qty:       schema.Quantity(in.Qty),
		Bids:      levels(in.Bids),
		Asks:      levels(in.Asks),
	}
	if in.Side != "" {
		side, ok := ParseSide(in.Side)
		if !ok {
			return schema.Event{}, errors.Wrapf(ErrInvalidLine, "unknown side: %q", in.Side)
		}
		ev.Side = side
	}
	return schema.MarketInput(ev), nil
}

func levelPairs(levels []schema.Level) [][2]int64 {
	if len(levels) == 0 {
		return nil
	}
	out := make([][2]int64, len(levels))
	for i, l := range levels {
		out[i] = [2]int64{int64(l.Price), int64(l.Qty)}
	}
	return out
}

func levels(pairs [][2]int64) []schema.Level {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]schema.Level, len(pairs))
	for i, p := range pairs {
		out[i] = schema.Level{Price: schema.Price(p[0]), Qty: schema.Quantity(p[1])}
	}
	return out
}

// LineReader decodes JSON lines from r, skipping blank lines.
type LineReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &LineReader{scanner: sc}
}

// Next returns the next event, or io.EOF at the end of input.
func (lr *LineReader) Next() (schema.Event, error) {
	for lr.scanner.Scan() {
		lr.line++
		ev, err := DecodeEventJSON(lr.scanner.Bytes())
		if errors.Is(err, ErrEmptyLine) {
			continue
		}
		if err != nil {
			return schema.Event{}, errors.Wrapf(err, "line %d", lr.line)
		}
		return ev, nil
	}
	if err := lr.scanner.Err(); err != nil {
		return schema.Event{}, errors.Wrap(err, "scan input")
	}
	return schema.Event{}, io.EOF
}

// Line returns the number of the last line read.
func (lr *LineReader) Line() int {
	return lr.line
}

// LineWriter encodes events as JSON lines.
type LineWriter struct {
	w   *bufio.Writer
	buf []byte
}

// NewLineWriter wraps w. Call Flush when done.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

// Write encodes one event.
func (lw *LineWriter) Write(ev schema.Event) error {
	var err error
	lw.buf, err = AppendEventJSON(lw.buf[:0], ev)
	if err != nil {
		return err
	}
	_, err = lw.w.Write(lw.buf)
	return err
}

// Flush writes buffered lines.
func (lw *LineWriter) Flush() error {
	return lw.w.Flush()
}

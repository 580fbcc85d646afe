package codec

import "lobsim/internal/schema"

const levelSize = 16

// AppendMarketEvent serializes a market event onto dst.
func AppendMarketEvent(dst []byte, ev schema.MarketEvent) []byte {
	dst = appendU16(dst, uint16(ev.Kind))
	dst = appendU16(dst, uint16(ev.Side))
	dst = appendString(dst, string(ev.Symbol))
	dst = appendU64(dst, ev.Seq)
	dst = appendU64(dst, ev.SymbolSeq)
	dst = appendI64(dst, ev.TsEvent)
	dst = appendI64(dst, int64(ev.Price))
	dst = appendI64(dst, int64(ev.Qty))
	dst = appendLevels(dst, ev.Bids)
	return appendLevels(dst, ev.Asks)
}

func appendLevels(dst []byte, levels []schema.Level) []byte {
	dst = appendU32(dst, uint32(len(levels)))
	for _, l := range levels {
		dst = appendI64(dst, int64(l.Price))
		dst = appendI64(dst, int64(l.Qty))
	}
	return dst
}

// DecodeMarketEvent parses a payload written by AppendMarketEvent.
func DecodeMarketEvent(src []byte) (schema.MarketEvent, bool) {
	r := reader{src: src}
	ev := schema.MarketEvent{
		Kind:      schema.MarketEventKind(r.u16()),
		Side:      schema.OrderSide(r.u16()),
		Symbol:    schema.Symbol(r.str()),
		Seq:       r.u64(),
		SymbolSeq: r.u64(),
		TsEvent:   r.i64(),
		Price:     schema.Price(r.i64()),
		Qty:       schema.Quantity(r.i64()),
	}
	ev.Bids = readLevels(&r)
	ev.Asks = readLevels(&r)
	if !r.ok() {
		return schema.MarketEvent{}, false
	}
	return ev, true
}

func readLevels(r *reader) []schema.Level {
	n := int(r.u32())
	if n == 0 || r.short {
		return nil
	}
	if n > (len(r.src)-r.off)/levelSize {
		r.short = true
		return nil
	}
	levels := make([]schema.Level, n)
	for i := range levels {
		levels[i] = schema.Level{Price: schema.Price(r.i64()), Qty: schema.Quantity(r.i64())}
	}
	return levels
}

package codec

import "lobsim/internal/schema"

// AppendFill serializes a fill onto dst.
func AppendFill(dst []byte, fill schema.Fill) []byte {
	dst = appendU64(dst, fill.OrderID)
	dst = appendString(dst, string(fill.Symbol))
	dst = appendU16(dst, uint16(fill.Side))
	dst = appendI64(dst, int64(fill.Price))
	dst = appendI64(dst, int64(fill.Qty))
	dst = appendI64(dst, int64(fill.Fee))
	return appendI64(dst, fill.TsEvent)
}

// DecodeFill parses a payload written by AppendFill.
func DecodeFill(src []byte) (schema.Fill, bool) {
	r := reader{src: src}
	fill := schema.Fill{
		OrderID: r.u64(),
		Symbol:  schema.Symbol(r.str()),
		Side:    schema.OrderSide(r.u16()),
		Price:   schema.Price(r.i64()),
		Qty:     schema.Quantity(r.i64()),
		Fee:     schema.Fee(r.i64()),
		TsEvent: r.i64(),
	}
	if !r.ok() {
		return schema.Fill{}, false
	}
	return fill, true
}

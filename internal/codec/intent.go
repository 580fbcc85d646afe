package codec

import "lobsim/internal/schema"

// AppendIntent serializes an intent onto dst.
// Replays compare these bytes, so the layout must stay stable.
func AppendIntent(dst []byte, in schema.Intent) []byte {
	dst = appendU16(dst, uint16(in.Kind))
	dst = appendU16(dst, uint16(in.Side))
	dst = appendU16(dst, uint16(in.Type))
	dst = appendU16(dst, uint16(in.TimeInForce))
	dst = appendString(dst, string(in.Symbol))
	dst = appendString(dst, in.ClientID)
	dst = appendString(dst, in.VenueOrderID)
	dst = appendI64(dst, int64(in.Price))
	dst = appendI64(dst, int64(in.Qty))
	dst = appendI64(dst, in.ExpireAt)
	dst = appendI64(dst, int64(in.NewPrice))
	return appendI64(dst, int64(in.NewQty))
}

func readIntent(r *reader) schema.Intent {
	return schema.Intent{
		Kind:         schema.IntentKind(r.u16()),
		Side:         schema.OrderSide(r.u16()),
		Type:         schema.OrderType(r.u16()),
		TimeInForce:  schema.TimeInForce(r.u16()),
		Symbol:       schema.Symbol(r.str()),
		ClientID:     r.str(),
		VenueOrderID: r.str(),
		Price:        schema.Price(r.i64()),
		Qty:          schema.Quantity(r.i64()),
		ExpireAt:     r.i64(),
		NewPrice:     schema.Price(r.i64()),
		NewQty:       schema.Quantity(r.i64()),
	}
}

// DecodeIntent parses a payload written by AppendIntent.
func DecodeIntent(src []byte) (schema.Intent, bool) {
	r := reader{src: src}
	in := readIntent(&r)
	if !r.ok() {
		return schema.Intent{}, false
	}
	return in, true
}

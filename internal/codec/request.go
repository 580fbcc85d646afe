package codec

import "lobsim/internal/schema"

// AppendVenueRequest serializes an OMS-issued venue request onto dst.
func AppendVenueRequest(dst []byte, req schema.VenueRequest) []byte {
	dst = appendU16(dst, uint16(req.Kind))
	dst = appendU16(dst, uint16(req.Side))
	dst = appendU16(dst, uint16(req.Type))
	dst = appendU16(dst, uint16(req.TimeInForce))
	dst = appendU64(dst, req.OrderID)
	dst = appendString(dst, req.ClientID)
	dst = appendString(dst, req.VenueOrderID)
	dst = appendString(dst, string(req.Symbol))
	dst = appendI64(dst, req.ExpireAt)
	dst = appendI64(dst, int64(req.Price))
	return appendI64(dst, int64(req.Qty))
}

// DecodeVenueRequest parses a payload written by AppendVenueRequest.
func DecodeVenueRequest(src []byte) (schema.VenueRequest, bool) {
	r := reader{src: src}
	req := schema.VenueRequest{
		Kind:         schema.RequestKind(r.u16()),
		Side:         schema.OrderSide(r.u16()),
		Type:         schema.OrderType(r.u16()),
		TimeInForce:  schema.TimeInForce(r.u16()),
		OrderID:      r.u64(),
		ClientID:     r.str(),
		VenueOrderID: r.str(),
		Symbol:       schema.Symbol(r.str()),
		ExpireAt:     r.i64(),
		Price:        schema.Price(r.i64()),
		Qty:          schema.Quantity(r.i64()),
	}
	if !r.ok() {
		return schema.VenueRequest{}, false
	}
	return req, true
}

package codec

import "lobsim/internal/schema"

// AppendVenueReport serializes a venue report onto dst.
func AppendVenueReport(dst []byte, rep schema.VenueReport) []byte {
	dst = appendU16(dst, uint16(rep.Type))
	dst = appendU64(dst, rep.OrderID)
	dst = appendU64(dst, rep.Seq)
	dst = appendString(dst, rep.VenueOrderID)
	dst = appendI64(dst, int64(rep.FilledQtyDelta))
	dst = appendI64(dst, int64(rep.FillPrice))
	dst = appendI64(dst, int64(rep.Fee))
	dst = appendI64(dst, int64(rep.NewPrice))
	dst = appendI64(dst, int64(rep.NewQty))
	dst = appendI64(dst, rep.TsEvent)
	return appendString(dst, rep.Reason)
}

// DecodeVenueReport parses a payload written by AppendVenueReport.
func DecodeVenueReport(src []byte) (schema.VenueReport, bool) {
	r := reader{src: src}
	rep := schema.VenueReport{
		Type:           schema.ReportType(r.u16()),
		OrderID:        r.u64(),
		Seq:            r.u64(),
		VenueOrderID:   r.str(),
		FilledQtyDelta: schema.Quantity(r.i64()),
		FillPrice:      schema.Price(r.i64()),
		Fee:            schema.Fee(r.i64()),
		NewPrice:       schema.Price(r.i64()),
		NewQty:         schema.Quantity(r.i64()),
		TsEvent:        r.i64(),
		Reason:         r.str(),
	}
	if !r.ok() {
		return schema.VenueReport{}, false
	}
	return rep, true
}

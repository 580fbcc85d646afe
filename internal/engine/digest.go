package engine

import (
	"crypto/sha256"
	"encoding/binary"

	"lobsim/internal/book"
	"lobsim/internal/codec"
)

// digestTick folds the tick's outputs into the running hash chain:
// next = sha256(prev || tick || seq || outputs).
func (e *Engine) digestTick() {
	r := &e.res
	buf := append(e.hashBuf[:0], e.hash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, r.Tick)
	buf = binary.LittleEndian.AppendUint64(buf, r.Seq)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.TsEvent))
	buf = append(buf, byte(r.Source))
	for _, c := range r.Changes {
		buf = appendChange(buf, c)
	}
	for _, d := range r.Decisions {
		buf = codec.AppendRiskDecision(buf, d)
	}
	for _, req := range r.Requests {
		buf = codec.AppendVenueRequest(buf, req)
	}
	for _, u := range r.Updates {
		buf = codec.AppendVenueReport(buf, u.Report)
		buf = append(buf, byte(u.Order.State))
	}
	for _, f := range r.Fills {
		buf = codec.AppendFill(buf, f)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Errors)))
	e.hash = sha256.Sum256(buf)
	e.hashBuf = buf
}

func appendChange(buf []byte, c book.BookChange) []byte {
	buf = append(buf, c.Symbol...)
	buf = append(buf, 0, byte(c.Kind), byte(c.Side))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Price))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Qty))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Top.Bid.Price))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Top.Bid.Qty))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Top.Ask.Price))
	return binary.LittleEndian.AppendUint64(buf, uint64(c.Top.Ask.Qty))
}

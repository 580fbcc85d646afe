package codec

import (
	"encoding/binary"
	"math"
)

// Payload layouts are little-endian. Strings carry a uint16 length prefix and
// level lists a uint32 count; everything else is fixed width.

func appendU16(dst []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(dst, v) }
func appendU32(dst []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(dst, v) }
func appendU64(dst []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(dst, v) }
func appendI64(dst []byte, v int64) []byte  { return binary.LittleEndian.AppendUint64(dst, uint64(v)) }

func appendString(dst []byte, s string) []byte {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	dst = appendU16(dst, uint16(len(s)))
	return append(dst, s...)
}

// reader walks a payload and latches the first short read.
type reader struct {
	src   []byte
	off   int
	short bool
}

func (r *reader) take(n int) []byte {
	if r.short || len(r.src)-r.off < n {
		r.short = true
		return nil
	}
	b := r.src[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) str() string {
	n := int(r.u16())
	if b := r.take(n); b != nil {
		return string(b)
	}
	return ""
}

// ok reports whether every read succeeded and the payload was fully consumed.
func (r *reader) ok() bool {
	return !r.short && r.off == len(r.src)
}

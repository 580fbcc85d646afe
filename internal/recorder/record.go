package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/yanun0323/errors"

	"lobsim/internal/schema"
)

// Record layout: a fixed 56-byte header, the payload, then a CRC32C over both.
const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 56
	recordChecksumSize        = 4

	maxPayloadLen = uint64(^uint32(0))
)

// Record sources stored in EventHeader.Source.
const (
	// SourceInput marks an event fed to the engine. Only these are replayed.
	SourceInput uint16 = 1
	// SourceEngine marks an output derived by the engine.
	SourceEngine uint16 = 2
)

var (
	recordMagic = [4]byte{'L', 'O', 'B', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("journal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("journal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("journal invalid header size")
	ErrChecksumMismatch        = errors.New("journal checksum mismatch")
	ErrPayloadTooLarge         = errors.New("journal payload too large")
	ErrClosed                  = errors.New("journal writer closed")
	ErrDirNotEmpty             = errors.New("journal dir already holds segments")
	ErrUndecodable             = errors.New("journal record undecodable")
)

// appendRecord appends one framed record to dst.
func appendRecord(dst []byte, header schema.EventHeader, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, recordMagic[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, recordVersion)
	dst = binary.LittleEndian.AppendUint16(dst, recordHeaderSize)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(header.Type))
	dst = binary.LittleEndian.AppendUint16(dst, header.Version)
	dst = binary.LittleEndian.AppendUint16(dst, header.Source)
	dst = binary.LittleEndian.AppendUint16(dst, header.Flags)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = binary.LittleEndian.AppendUint64(dst, header.Seq)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(header.TsEvent))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(header.TsRecv))
	dst = binary.LittleEndian.AppendUint64(dst, header.TraceID)
	dst = binary.LittleEndian.AppendUint32(dst, 0)
	dst = append(dst, payload...)
	sum := checksum(dst[start:start+recordHeaderSize], payload)
	return binary.LittleEndian.AppendUint32(dst, sum)
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.EventHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.EventHeader{}, 0, ErrUnsupportedRecordVer
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	h := schema.EventHeader{
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[8:10])),
		Version: binary.LittleEndian.Uint16(src[10:12]),
		Source:  binary.LittleEndian.Uint16(src[12:14]),
		Flags:   binary.LittleEndian.Uint16(src[14:16]),
		Seq:     binary.LittleEndian.Uint64(src[20:28]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[28:36])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[36:44])),
		TraceID: binary.LittleEndian.Uint64(src[44:52]),
	}
	return h, binary.LittleEndian.Uint32(src[16:20]), nil
}

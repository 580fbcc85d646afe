package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yanun0323/errors"

	"lobsim/internal/schema"
)

// Writer appends records to numbered journal segments.
// It is not safe for concurrent use; the engine drives it from its own goroutine.
// Segment names carry only a counter, so the same run always yields the same files.
type Writer struct {
	cfg   Config
	seg   *segmentWriter
	segID uint64
	buf   []byte

	records uint64
	bytes   int64
	closed  bool
	err     error
}

// NewWriter creates a journal writer. The directory is created if missing and
// must not already hold segments with the configured prefix.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}
	existing, err := segmentFiles(cfg.Dir, cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.Wrapf(ErrDirNotEmpty, "%s", cfg.Dir)
	}
	return &Writer{cfg: cfg}, nil
}

// Append writes one record. The payload is copied into the segment buffer.
func (w *Writer) Append(header schema.EventHeader, payload []byte) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}

	size := int64(recordHeaderSize + len(payload) + recordChecksumSize)
	if w.shouldRotate(size) {
		if err := w.rotate(); err != nil {
			w.err = err
			return err
		}
	}

	w.buf = appendRecord(w.buf[:0], header, payload)
	if _, err := w.seg.buf.Write(w.buf); err != nil {
		w.err = errors.Wrap(err, "write record")
		return w.err
	}
	w.seg.size += size
	w.bytes += size
	w.records++
	return nil
}

// Flush pushes buffered records to the current segment file.
func (w *Writer) Flush() error {
	if w.seg == nil || w.closed {
		return w.err
	}
	if err := w.seg.buf.Flush(); err != nil {
		w.err = errors.Wrap(err, "flush segment")
	}
	return w.err
}

// Close flushes, syncs and closes the current segment. It is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if err := w.closeSegment(true); err != nil && w.err == nil {
		w.err = err
	}
	return w.err
}

// Records returns the number of records appended.
func (w *Writer) Records() uint64 {
	return w.records
}

// Bytes returns the number of bytes appended across all segments.
func (w *Writer) Bytes() int64 {
	return w.bytes
}

// Segments returns how many segments have been opened.
func (w *Writer) Segments() uint64 {
	return w.segID
}

func (w *Writer) shouldRotate(next int64) bool {
	if w.seg == nil {
		return true
	}
	// A record larger than a segment still gets a segment of its own.
	return w.seg.size > 0 && w.seg.size+next > w.cfg.SegmentMaxBytes
}

func (w *Writer) rotate() error {
	if err := w.closeSegment(w.cfg.SyncOnRotate); err != nil {
		return err
	}
	w.segID++
	path := filepath.Join(w.cfg.Dir, segmentName(w.cfg.FilePrefix, w.segID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, "open segment")
	}
	w.seg = &segmentWriter{
		file: file,
		buf:  bufio.NewWriterSize(file, w.cfg.BufferSize),
	}
	return nil
}

func (w *Writer) closeSegment(sync bool) error {
	seg := w.seg
	if seg == nil {
		return nil
	}
	w.seg = nil
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return errors.Wrap(err, "flush segment")
	}
	if sync {
		if err := seg.file.Sync(); err != nil {
			_ = seg.file.Close()
			return errors.Wrap(err, "sync segment")
		}
	}
	return seg.file.Close()
}

func segmentName(prefix string, id uint64) string {
	return fmt.Sprintf("%s-%06d.wal", prefix, id)
}

type segmentWriter struct {
	file *os.File
	buf  *bufio.Writer
	size int64
}

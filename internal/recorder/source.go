package recorder

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/yanun0323/errors"

	"lobsim/internal/codec"
	"lobsim/internal/schema"
)

// Source reads every segment of a journal directory in order.
// Next yields only the recorded engine inputs, so a journal can drive a replay.
type Source struct {
	files []string
	idx   int
	file  *os.File
	rd    *Reader
	opts  ReaderOptions
}

// OpenDir lists the segments under dir. An empty prefix selects the default one.
func OpenDir(dir, prefix string, opts ReaderOptions) (*Source, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if prefix == "" {
		prefix = defaultFilePrefix
	}
	files, err := segmentFiles(dir, prefix)
	if err != nil {
		return nil, err
	}
	return &Source{files: files, opts: opts}, nil
}

// Files returns the segment paths in read order.
func (s *Source) Files() []string {
	return s.files
}

// NextRecord returns the next raw record across segment boundaries.
// The payload is only valid until the next call.
func (s *Source) NextRecord() (schema.EventHeader, []byte, error) {
	for {
		if s.rd == nil {
			if s.idx >= len(s.files) {
				return schema.EventHeader{}, nil, io.EOF
			}
			f, err := os.Open(s.files[s.idx])
			if err != nil {
				return schema.EventHeader{}, nil, errors.Wrap(err, "open segment")
			}
			s.idx++
			s.file = f
			s.rd = NewReader(f, s.opts)
		}
		header, payload, err := s.rd.Next()
		if errors.Is(err, io.EOF) {
			if err := s.closeFile(); err != nil {
				return header, nil, err
			}
			continue
		}
		if err != nil {
			return header, nil, errors.Wrapf(err, "segment %s", filepath.Base(s.files[s.idx-1]))
		}
		return header, payload, nil
	}
}

// Next returns the next recorded input as an engine event, skipping engine outputs.
func (s *Source) Next() (schema.Event, error) {
	for {
		header, payload, err := s.NextRecord()
		if err != nil {
			return schema.Event{}, err
		}
		if header.Source != SourceInput {
			continue
		}
		return DecodeInput(header, payload)
	}
}

// Close releases the open segment, if any.
func (s *Source) Close() error {
	s.idx = len(s.files)
	return s.closeFile()
}

func (s *Source) closeFile() error {
	s.rd = nil
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	return f.Close()
}

// DecodeInput rebuilds an engine input from a journal record.
func DecodeInput(header schema.EventHeader, payload []byte) (schema.Event, error) {
	ev := schema.Event{Header: header}
	ok := false
	switch header.Type {
	case schema.EventMarketData:
		ev.Market, ok = codec.DecodeMarketEvent(payload)
	case schema.EventVenueReport:
		ev.Report, ok = codec.DecodeVenueReport(payload)
	}
	if !ok {
		return schema.Event{}, errors.Wrapf(ErrUndecodable, "type=%s seq=%d", header.Type, header.Seq)
	}
	return ev, nil
}

func segmentFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read journal dir")
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".wal") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	// Zero-padded counters sort lexically.
	slices.Sort(files)
	return files, nil
}

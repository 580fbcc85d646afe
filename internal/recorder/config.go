package recorder

import (
	"github.com/yanun0323/errors"
)

const (
	defaultSegmentMaxBytes int64 = 256 << 20
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "journal"
)

// Config controls the journal writer.
type Config struct {
	Dir             string
	SegmentMaxBytes int64
	BufferSize      int
	FilePrefix      string
	// SyncOnRotate fsyncs a segment before it is closed.
	SyncOnRotate bool
}

// DefaultConfig returns a baseline configuration for the journal writer.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		SegmentMaxBytes: defaultSegmentMaxBytes,
		BufferSize:      defaultBufferSize,
		FilePrefix:      defaultFilePrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("journal dir is required")
	}
	if c.SegmentMaxBytes < recordHeaderSize+recordChecksumSize {
		return errors.Errorf("segment max bytes too small: %d", c.SegmentMaxBytes)
	}
	if c.BufferSize < 0 {
		return errors.Errorf("buffer size must be >= 0: %d", c.BufferSize)
	}
	return nil
}

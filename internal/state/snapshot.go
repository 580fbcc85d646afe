package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Snapshot captures portfolio state at a point in time.
type Snapshot struct {
	Timestamp   int64      `json:"timestamp"`
	LastSeq     uint64     `json:"lastSeq"`
	LastEventTs int64      `json:"lastEventTs"`
	Digest      string     `json:"digest,omitempty"`
	Positions   []Position `json:"positions"`
}

// Snapshot builds a snapshot from current positions.
func (r *PositionReducer) Snapshot() Snapshot {
	return r.SnapshotWithMeta(0, 0)
}

// SnapshotWithMeta builds a snapshot with event metadata.
func (r *PositionReducer) SnapshotWithMeta(lastSeq uint64, lastEventTs int64) Snapshot {
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		Positions:   r.Positions(),
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots describe the same portfolio.
// Timestamps are ignored; digests are compared when both are present.
func CompareSnapshots(expected, actual Snapshot) error {
	if expected.Digest != "" && actual.Digest != "" && expected.Digest != actual.Digest {
		return errors.Errorf("snapshot digest mismatch: expected=%s actual=%s", expected.Digest, actual.Digest)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return errors.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]Position, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[string(entry.Symbol)] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[string(entry.Symbol)]
		if !ok {
			return errors.Errorf("snapshot missing symbol: %s", entry.Symbol)
		}
		if want.Qty != entry.Qty {
			return errors.Errorf("snapshot qty mismatch: symbol=%s expected=%d actual=%d", entry.Symbol, want.Qty, entry.Qty)
		}
		if want.Cost != entry.Cost || want.Realized != entry.Realized || want.Fees != entry.Fees {
			return errors.Errorf("snapshot pnl mismatch: symbol=%s expected=%+v actual=%+v", entry.Symbol, want, entry)
		}
	}
	return nil
}

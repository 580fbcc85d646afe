package recorder

import (
	"context"
	"io"

	"github.com/yanun0323/errors"

	"lobsim/internal/codec"
	"lobsim/internal/schema"
	"lobsim/internal/state"
)

// RecoverConfig controls snapshot plus journal recovery.
type RecoverConfig struct {
	Dir             string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
}

// RecoverResult contains recovered positions and the input they reach.
type RecoverResult struct {
	Positions   *state.PositionReducer
	LastSeq     uint64
	LastEventTs int64
	Fills       int
}

// RecoverPositions loads an optional snapshot and replays the journal's fill
// records on top of it. A fill belongs to the last input recorded before it;
// fills of inputs already covered by the snapshot are skipped.
func RecoverPositions(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	positions := state.NewPositionReducer()
	res := RecoverResult{Positions: positions}

	if cfg.SnapshotPath != "" {
		snap, err := state.ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		positions.ApplySnapshot(snap)
		res.LastSeq = snap.LastSeq
		res.LastEventTs = snap.LastEventTs
	}
	covered := res.LastSeq

	src, err := OpenDir(cfg.Dir, cfg.FilePrefix, ReaderOptions{
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}
	defer src.Close()

	var inputSeq uint64
	for {
		if err := ctx.Err(); err != nil {
			return RecoverResult{}, err
		}
		header, payload, err := src.NextRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RecoverResult{}, err
		}
		if header.Source == SourceInput {
			inputSeq = header.Seq
			if inputSeq > res.LastSeq {
				res.LastSeq = inputSeq
			}
			if header.TsEvent > res.LastEventTs {
				res.LastEventTs = header.TsEvent
			}
			continue
		}
		if header.Type != schema.EventFill || inputSeq <= covered {
			continue
		}
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			return RecoverResult{}, errors.Wrapf(ErrUndecodable, "fill at tick %d", header.Seq)
		}
		positions.ApplyFill(fill)
		res.Fills++
	}
	return res, nil
}

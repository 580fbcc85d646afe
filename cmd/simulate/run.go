package main

import (
	"context"
	"io"
	"os"
	"slices"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"lobsim/internal/chaos"
	"lobsim/internal/codec"
	"lobsim/internal/engine"
	"lobsim/internal/obs"
	"lobsim/internal/ops"
	"lobsim/internal/recorder"
	"lobsim/internal/state"
	"lobsim/internal/store"
	"lobsim/pkg/conn"
)

type options struct {
	ConfigPath      string
	InputPath       string
	InputJournal    string
	JournalDir      string
	JournalMaxBytes int64
	SnapshotOut     string
	VerifySnapshot  string
	RestoreSnapshot string
	PostgresDSN     string
}

type result struct {
	RunID   string
	Summary engine.Summary
	Metrics obs.Snapshot
}

func simulate(ctx context.Context, opt options) (result, error) {
	started := time.Now()
	loaded, err := ops.Load(opt.ConfigPath)
	if err != nil {
		return result{}, err
	}
	chain, err := loaded.NewChain()
	if err != nil {
		return result{}, err
	}
	strat, err := loaded.NewStrategy()
	if err != nil {
		return result{}, err
	}

	src, closeSrc, err := openInput(opt)
	if err != nil {
		return result{}, err
	}
	defer closeSrc()

	port, err := loaded.NewVenue()
	if err != nil {
		return result{}, err
	}
	metrics := obs.NewMetrics()
	deps := engine.Deps{
		Chain:    chain,
		Strategy: strat,
		Venue:    port,
		Metrics:  metrics,
	}

	var (
		journal *recorder.Journal
		writer  *recorder.Writer
	)
	if opt.JournalDir != "" {
		cfg := recorder.DefaultConfig(opt.JournalDir)
		if opt.JournalMaxBytes > 0 {
			cfg.SegmentMaxBytes = opt.JournalMaxBytes
		}
		writer, err = recorder.NewWriter(cfg)
		if err != nil {
			return result{}, err
		}
		defer writer.Close()
		journal = recorder.NewJournal(writer, obs.NewTraceGenerator(loaded.Seed))
		deps.Sink = journal
		src = journal.Tee(src)
	}

	eng, err := engine.New(loaded.Engine, deps)
	if err != nil {
		return result{}, err
	}
	if opt.RestoreSnapshot != "" {
		snap, err := state.ReadSnapshot(opt.RestoreSnapshot)
		if err != nil {
			return result{}, err
		}
		eng.RestorePositions(snap)
		logs.Infof("restored %d positions from %s", len(snap.Positions), opt.RestoreSnapshot)
	}

	logs.Infof("simulate start: strategy=%s venue=%s seed=%d symbols=%d",
		loaded.Strategy, loaded.VenueMode, loaded.Seed, loaded.Registry.Len())
	summary, runErr := eng.Run(ctx, src)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return result{}, runErr
	}

	if writer != nil {
		if err := journal.Err(); err != nil {
			return result{}, err
		}
		if err := writer.Close(); err != nil {
			return result{}, err
		}
		logs.Infof("journal: %d records, %d bytes, %d segments in %s",
			writer.Records(), writer.Bytes(), writer.Segments(), opt.JournalDir)
	}

	final := eng.StateSnapshot()
	if opt.SnapshotOut != "" {
		if err := state.WriteSnapshot(opt.SnapshotOut, final); err != nil {
			return result{}, err
		}
	}
	if opt.VerifySnapshot != "" {
		expected, err := state.ReadSnapshot(opt.VerifySnapshot)
		if err != nil {
			return result{}, err
		}
		if err := state.CompareSnapshots(expected, final); err != nil {
			return result{}, errors.Wrap(err, "snapshot verification")
		}
		logs.Infof("snapshot verified against %s", opt.VerifySnapshot)
	}

	res := result{Summary: summary, Metrics: metrics.Snapshot()}
	logSummary(res)
	if faulty, ok := port.(*chaos.Venue); ok {
		st := faulty.Stats()
		logs.Infof("chaos: dropped=%d duplicated=%d reordered=%d", st.Dropped, st.Duplicated, st.Reordered)
	}

	if opt.PostgresDSN != "" {
		st, client, err := store.Open(conn.Option{ConnString: opt.PostgresDSN}, loaded.Registry)
		if err != nil {
			return result{}, err
		}
		defer client.Close()
		res.RunID, err = st.SaveRun(ctx, store.Run{
			ConfigPath: opt.ConfigPath,
			InputPath:  inputName(opt),
			Seed:       loaded.Seed,
			VenueMode:  loaded.VenueMode,
			Strategy:   loaded.Strategy,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Summary:    summary,
		})
		if err != nil {
			return result{}, err
		}
	}
	return res, runErr
}

func openInput(opt options) (engine.Source, func(), error) {
	if opt.InputJournal != "" {
		src, err := recorder.OpenDir(opt.InputJournal, "", recorder.ReaderOptions{})
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	}
	var r io.ReadCloser = os.Stdin
	if opt.InputPath != "-" {
		f, err := os.Open(opt.InputPath)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open input %s", opt.InputPath)
		}
		r = f
	}
	return codec.NewLineReader(r), func() { _ = r.Close() }, nil
}

func inputName(opt options) string {
	if opt.InputJournal != "" {
		return opt.InputJournal
	}
	return opt.InputPath
}

func logSummary(res result) {
	s := res.Summary
	logs.Infof("simulate done: inputs=%d ticks=%d chained=%d last_seq=%d orders=%d open=%d fills=%d realized=%d fees=%d halted=%v",
		s.Inputs, s.Ticks, s.ChainedTicks, s.LastSeq, s.Orders, s.OpenOrders, s.Fills, s.Realized, s.Fees, s.Halted)
	logs.Infof("digest %s", s.Digest)
	for _, p := range s.Positions {
		logs.Infof("position %s qty=%d avg=%d realized=%d fees=%d fills=%d", p.Symbol, p.Qty, p.AvgEntry(), p.Realized, p.Fees, p.Fills)
	}

	m := res.Metrics
	names := make([]string, 0, len(m.Counters))
	byName := make(map[string]uint64, len(m.Counters))
	for c, v := range m.Counters {
		names = append(names, c.String())
		byName[c.String()] = v
	}
	slices.Sort(names)
	for _, name := range names {
		logs.Infof("counter %s=%d", name, byName[name])
	}
	for reason, v := range m.RiskReasonCounts {
		logs.Infof("risk %s=%d", reason, v)
	}
	if lat := m.TickLatency; lat.Count > 0 {
		logs.Infof("tick latency count=%d min=%s avg=%s max=%s", lat.Count, lat.Min, lat.Avg, lat.Max)
	}
}

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "Path to run config (JSON, or YAML by .yaml/.yml extension)")
	inputPath := flag.String("input", "", "JSONL event file (- for stdin)")
	inputJournal := flag.String("input-journal", "", "Journal directory to replay instead of -input")
	journalDir := flag.String("journal", "", "Record inputs and tick outputs to this directory")
	journalMaxBytes := flag.Int64("journal-segment-bytes", 0, "Journal segment size (0=default)")
	snapshotOut := flag.String("snapshot", "", "Write the final state snapshot to this path")
	verifySnapshot := flag.String("verify-snapshot", "", "Compare the final state against this snapshot")
	restoreSnapshot := flag.String("restore-snapshot", "", "Seed positions from this snapshot before the run")
	summaryJSON := flag.Bool("summary-json", false, "Print the run summary as JSON on stdout")
	pgDSN := flag.String("pg-dsn", "", "Persist the run to PostgreSQL (optional)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address for continuous profiling (optional)")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("-config is required")
	}
	if (*inputPath == "") == (*inputJournal == "") {
		log.Fatalf("exactly one of -input or -input-journal is required")
	}

	if *pyroscopeAddr != "" {
		stop, err := startProfiler(*pyroscopeAddr)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Infof("shutdown requested, stopping after the current event")
		cancel()
	}()

	res, err := simulate(ctx, options{
		ConfigPath:      *configPath,
		InputPath:       *inputPath,
		InputJournal:    *inputJournal,
		JournalDir:      *journalDir,
		JournalMaxBytes: *journalMaxBytes,
		SnapshotOut:     *snapshotOut,
		VerifySnapshot:  *verifySnapshot,
		RestoreSnapshot: *restoreSnapshot,
		PostgresDSN:     *pgDSN,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("simulate failed: %v", err)
	}

	if *summaryJSON {
		data, err := sonic.ConfigStd.MarshalIndent(res.Summary, "", "  ")
		if err != nil {
			log.Fatalf("encode summary failed: %v", err)
		}
		_, _ = os.Stdout.Write(append(data, '\n'))
	}
}

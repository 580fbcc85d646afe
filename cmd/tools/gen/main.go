package main

import (
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"github.com/yanun0323/logs"

	"lobsim/internal/codec"
	"lobsim/internal/mdg"
	"lobsim/internal/schema"
)

func main() {
	seed := flag.Uint64("seed", 1, "Generator seed")
	events := flag.Int("n", 10_000, "Number of events")
	symbols := flag.String("symbols", "BTC-USD", "Comma separated symbols")
	mid := flag.Int64("mid", 10_000, "Starting mid price in ticks")
	depth := flag.Int("depth", 5, "Levels per side in the opening snapshot")
	clockEvery := flag.Int("clock-every", 50, "Emit a clock tick every N events (0=never)")
	tradePct := flag.Int("trade-pct", 0, "Percent of updates that are trades")
	startTs := flag.Int64("start-ts", 1_700_000_000_000_000_000, "Timestamp of the first event in ns")
	step := flag.Int64("step-ns", 1_000_000, "Event time step in ns")
	out := flag.String("out", "-", "Output JSONL path (- for stdout)")
	flag.Parse()

	if *events <= 0 {
		log.Fatalf("n must be > 0")
	}
	cfg := mdg.Config{
		Seed:       *seed,
		Mid:        schema.Price(*mid),
		Depth:      *depth,
		ClockEvery: *clockEvery,
		TradePct:   *tradePct,
		StartTs:    *startTs,
		StepNs:     *step,
	}
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, schema.Symbol(s))
		}
	}
	gen, err := mdg.NewGenerator(cfg)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create output failed: %v", err)
		}
		defer f.Close()
		w = f
	}
	lw := codec.NewLineWriter(w)
	for range *events {
		if err := lw.Write(gen.Next()); err != nil {
			log.Fatalf("write failed: %v", err)
		}
	}
	if err := lw.Flush(); err != nil {
		log.Fatalf("flush failed: %v", err)
	}
	logs.Infof("generated %d events, seed %d, symbols %v", gen.Seq(), cfg.Seed, cfg.Symbols)
}

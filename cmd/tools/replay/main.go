package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"lobsim/internal/codec"
	"lobsim/internal/recorder"
	"lobsim/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: journal)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode payloads")
	inputsOnly := flag.Bool("inputs", false, "Only list recorded inputs")
	exportJSONL := flag.String("export-jsonl", "", "Write recorded inputs as JSONL to this path (- for stdout) and exit")
	recoverPositions := flag.Bool("recover", false, "Rebuild positions from the journal's fills and print them")
	snapshot := flag.String("snapshot", "", "Snapshot to recover on top of (with -recover)")
	flag.Parse()

	opts := recorder.ReaderOptions{DisableChecksum: *noChecksum, MaxPayloadSize: *maxPayload}

	if *recoverPositions {
		res, err := recorder.RecoverPositions(context.Background(), recorder.RecoverConfig{
			Dir:             *dir,
			SnapshotPath:    *snapshot,
			FilePrefix:      *prefix,
			DisableChecksum: *noChecksum,
			MaxPayloadSize:  *maxPayload,
		})
		if err != nil {
			log.Fatalf("recover failed: %v", err)
		}
		fmt.Printf("last_seq=%d last_ts=%d fills=%d\n", res.LastSeq, res.LastEventTs, res.Fills)
		for _, p := range res.Positions.Positions() {
			fmt.Printf("  %s qty=%d avg=%d realized=%d fees=%d\n", p.Symbol, p.Qty, p.AvgEntry(), p.Realized, p.Fees)
		}
		return
	}

	src, err := recorder.OpenDir(*dir, *prefix, opts)
	if err != nil {
		log.Fatalf("open journal failed: %v", err)
	}
	defer src.Close()

	if *exportJSONL != "" {
		n, err := export(src, *exportJSONL)
		if err != nil {
			log.Fatalf("export failed: %v", err)
		}
		fmt.Fprintf(os.Stderr, "exported %d inputs\n", n)
		return
	}

	var index int
	for {
		header, payload, err := src.NextRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read failed: %v", err)
		}
		if *inputsOnly && header.Source != recorder.SourceInput {
			continue
		}
		index++
		fmt.Printf("%06d %s type=%s seq=%d ts=%d trace=%d flags=%d len=%d\n",
			index, sourceName(header.Source), header.Type, header.Seq, header.TsEvent, header.TraceID, header.Flags, len(payload))
		if *decode {
			printDecoded(header.Type, payload)
		}
	}
}

func export(src *recorder.Source, path string) (int, error) {
	out := os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		out = f
	}
	w := codec.NewLineWriter(out)
	var n int
	for {
		ev, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if err := w.Write(ev); err != nil {
			return n, err
		}
		n++
	}
	return n, w.Flush()
}

func sourceName(s uint16) string {
	switch s {
	case recorder.SourceInput:
		return "in "
	case recorder.SourceEngine:
		return "out"
	default:
		return "???"
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventMarketData:
		md, ok := codec.DecodeMarketEvent(payload)
		if !ok {
			fmt.Println("  decode MarketData failed")
			return
		}
		fmt.Printf("  %s %s seq=%d symbol_seq=%d side=%s price=%d qty=%d bids=%d asks=%d\n",
			md.Kind, md.Symbol, md.Seq, md.SymbolSeq, md.Side, md.Price, md.Qty, len(md.Bids), len(md.Asks))
	case schema.EventVenueReport:
		r, ok := codec.DecodeVenueReport(payload)
		if !ok {
			fmt.Println("  decode VenueReport failed")
			return
		}
		fmt.Printf("  report order=%d seq=%d %s filled=%d@%d fee=%d reason=%q\n",
			r.OrderID, r.Seq, r.Type, r.FilledQtyDelta, r.FillPrice, r.Fee, r.Reason)
	case schema.EventRiskDecision:
		d, ok := codec.DecodeRiskDecision(payload)
		if !ok {
			fmt.Println("  decode RiskDecision failed")
			return
		}
		fmt.Printf("  risk %s reason=%s policy=%q intent=%s %s qty=%d->%d\n",
			d.Action, d.Reason, d.Policy, d.Original.Kind, d.Original.ClientID, d.Original.Qty, d.Intent.Qty)
	case schema.EventVenueRequest:
		req, ok := codec.DecodeVenueRequest(payload)
		if !ok {
			fmt.Println("  decode VenueRequest failed")
			return
		}
		fmt.Printf("  request %s order=%d client=%s %s %s %d@%d\n",
			req.Kind, req.OrderID, req.ClientID, req.Symbol, req.Side, req.Qty, req.Price)
	case schema.EventFill:
		f, ok := codec.DecodeFill(payload)
		if !ok {
			fmt.Println("  decode Fill failed")
			return
		}
		fmt.Printf("  fill order=%d %s %s %d@%d fee=%d\n", f.OrderID, f.Symbol, f.Side, f.Qty, f.Price, f.Fee)
	}
}

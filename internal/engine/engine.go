package engine

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"lobsim/internal/book"
	"lobsim/internal/bus"
	"lobsim/internal/obs"
	"lobsim/internal/oms"
	"lobsim/internal/risk"
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"
	"lobsim/internal/state"
	"lobsim/internal/strategy"
	"lobsim/internal/venue"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Deps are the collaborators an engine drives. Venue is required.
type Deps struct {
	Chain    *risk.Chain
	Strategy strategy.Strategy
	Venue    venue.Port
	Metrics  *obs.Metrics
	Sink     Sink
}

type heldEvent struct {
	ev   schema.MarketEvent
	tick uint64
}

// Engine runs the tick pipeline. It is the only writer of its books and OMS
// and must be driven from a single goroutine.
type Engine struct {
	cfg       Config
	books     *book.Books
	orders    *oms.OMS
	positions *state.PositionReducer
	builder   *snapshot.Builder
	chain     *risk.Chain
	strat     strategy.Strategy
	venue     venue.Port
	observer  venue.MarketObserver
	metrics   *obs.Metrics
	sink      Sink

	reports *bus.Queue
	held    map[schema.Symbol][]heldEvent

	seq       uint64
	tick      uint64
	ts        int64
	nextTimer int64
	inputs    uint64
	chained   uint64
	fills     uint64

	hash    [sha256.Size]byte
	hashBuf []byte

	res     TickResult
	intents []schema.Intent
	drained []schema.VenueReport
	updates []oms.Update
}

// New builds an engine with empty books, OMS, and portfolio.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Venue == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "venue is required")
	}
	cfg = cfg.withDefaults()
	if deps.Chain == nil {
		deps.Chain = risk.NewChain(false)
	}
	if deps.Strategy == nil {
		deps.Strategy = strategy.Noop{}
	}

	books := book.NewBooks(cfg.Book, cfg.Symbols...)
	orders := oms.New(cfg.OMS)
	positions := state.NewPositionReducer()
	e := &Engine{
		cfg:       cfg,
		books:     books,
		orders:    orders,
		positions: positions,
		builder:   snapshot.NewBuilder(books, orders, positions),
		chain:     deps.Chain,
		strat:     deps.Strategy,
		venue:     deps.Venue,
		metrics:   deps.Metrics,
		sink:      deps.Sink,
		reports:   bus.NewQueue(cfg.ReportQueueSize),
		held:      make(map[schema.Symbol][]heldEvent),
	}
	e.observer, _ = deps.Venue.(venue.MarketObserver)
	return e, nil
}

// Process runs one input to completion, then the report ticks it chained.
// Only a global sequence regression is returned; every other failure is
// contained in the tick result and the run continues.
func (e *Engine) Process(ev schema.Event) error {
	seq := ev.Header.Seq
	if seq <= e.seq {
		return errors.Wrapf(ErrSequenceRegression, "last=%d got=%d", e.seq, seq)
	}
	start := time.Now()
	e.seq = seq
	e.inputs++
	if ev.Header.TsEvent > e.ts {
		e.ts = ev.Header.TsEvent
	}
	e.metrics.ObserveEvent(ev.Header.Type)

	switch ev.Header.Type {
	case schema.EventMarketData:
		e.begin(SourceInput, schema.EventMarketData, ev.Market.Symbol)
		if ev.Market.Kind == schema.MarketEventClockTick {
			e.onClock(ev.Market)
		} else {
			e.applyMarket(ev.Market)
		}
		e.end()
	case schema.EventVenueReport:
		e.begin(SourceInput, schema.EventVenueReport, "")
		e.onReport(ev.Report)
		e.end()
	default:
		e.begin(SourceInput, ev.Header.Type, "")
		e.metrics.Inc(obs.CounterInputInvalid)
		e.fail(errors.Wrapf(ErrInvalidInput, "type=%s", ev.Header.Type))
		e.end()
	}

	e.fireTimers()
	e.runChained()
	e.metrics.ObserveTick(time.Since(start))
	return nil
}

// Flush runs report ticks still queued after the last input.
func (e *Engine) Flush() {
	e.runChained()
}

func (e *Engine) begin(src TickSource, typ schema.EventType, symbol schema.Symbol) {
	e.tick++
	e.res.reset(e.tick, e.seq, e.ts, src, typ, symbol)
	if e.cfg.GapPolicy == GapBuffer && len(e.held) > 0 {
		e.expireBookGaps()
	}
	if e.cfg.ReportPolicy == ReportBuffer && e.orders.PendingCount() > 0 {
		var err error
		e.updates, err = e.orders.ExpireGaps(e.tick, e.cfg.ReportGapTicks, e.updates[:0])
		if err != nil {
			e.metrics.Inc(obs.CounterOMSError)
			e.fail(err)
		}
		e.afterUpdates(e.updates)
	}
}

func (e *Engine) end() {
	e.drained = e.venue.Drain(e.drained[:0])
	if n, err := e.reports.PushAll(e.drained); err != nil {
		e.fail(errors.Wrapf(err, "%d venue reports lost", len(e.drained)-n))
	}
	e.digestTick()
	if e.sink != nil {
		e.sink.OnTick(&e.res)
	}
}

func (e *Engine) runChained() {
	for n := 0; e.reports.Len() > 0; n++ {
		if n >= e.cfg.MaxChainedTicks {
			e.metrics.Inc(obs.CounterChainedTickOverflow)
			logs.Errorf("chained tick limit %d reached at seq %d, %d reports deferred", e.cfg.MaxChainedTicks, e.seq, e.reports.Len())
			return
		}
		r, _ := e.reports.Pop()
		e.chained++
		e.begin(SourceChained, schema.EventVenueReport, "")
		e.onReport(r)
		e.end()
	}
}

func (e *Engine) applyMarket(ev schema.MarketEvent) {
	if !e.applyBook(ev) {
		return
	}
	if e.cfg.GapPolicy == GapBuffer {
		e.flushHeld(ev.Symbol)
	}
}

// applyBook applies ev and runs the decision it triggers. It reports whether the book took it.
func (e *Engine) applyBook(ev schema.MarketEvent) bool {
	change, err := e.books.Apply(ev)
	switch {
	case err == nil:
	case errors.Is(err, book.ErrSequenceGap):
		e.metrics.Inc(obs.CounterBookGap)
		if e.cfg.GapPolicy == GapBuffer {
			e.hold(ev)
			e.warn(err)
			return false
		}
		if b, ok := e.books.Get(ev.Symbol); ok {
			b.Resync(ev.SymbolSeq + 1)
		}
		e.warn(errors.Wrap(err, "dropped"))
		return false
	default:
		e.metrics.Inc(obs.CounterBookInvalid)
		e.fail(err)
		return false
	}

	e.res.Changes = append(e.res.Changes, change)
	if change.Crossed {
		e.onCrossed(change)
	}
	if e.observer != nil {
		e.observer.OnMarket(ev, change.Top)
	}
	snap := e.snapshot()
	e.intents = e.strat.OnMarket(snap, change, e.intents[:0])
	e.submit(snap)
	return true
}

func (e *Engine) onCrossed(change book.BookChange) {
	switch e.cfg.CrossedPolicy {
	case CrossedIgnore:
		return
	case CrossedHalt:
		e.metrics.Inc(obs.CounterCrossedBook)
		if !e.chain.Engaged() {
			e.chain.Engage()
			logs.Errorf("crossed book %s at seq %d (bid %d >= ask %d), kill switch engaged",
				change.Symbol, change.Seq, change.Top.Bid.Price, change.Top.Ask.Price)
		}
	default:
		e.metrics.Inc(obs.CounterCrossedBook)
		e.warn(errors.Wrapf(ErrCrossedBook, "symbol=%s bid=%d ask=%d", change.Symbol, change.Top.Bid.Price, change.Top.Ask.Price))
	}
}

// hold buffers a gapped event in symbol sequence order.
func (e *Engine) hold(ev schema.MarketEvent) {
	held := e.held[ev.Symbol]
	i, found := slices.BinarySearchFunc(held, ev.SymbolSeq, func(h heldEvent, seq uint64) int {
		return cmp.Compare(h.ev.SymbolSeq, seq)
	})
	if found {
		return
	}
	e.held[ev.Symbol] = slices.Insert(held, i, heldEvent{ev: ev, tick: e.tick})
}

// flushHeld applies held events while they continue the symbol's sequence.
func (e *Engine) flushHeld(symbol schema.Symbol) {
	b, ok := e.books.Get(symbol)
	if !ok {
		return
	}
	for {
		held := e.held[symbol]
		if len(held) == 0 {
			delete(e.held, symbol)
			return
		}
		next := held[0].ev
		if next.SymbolSeq > b.LastSeq()+1 {
			return
		}
		e.held[symbol] = held[1:]
		if next.SymbolSeq == b.LastSeq()+1 {
			e.applyBook(next)
		}
	}
}

// expireBookGaps gives up on gaps older than MaxGapTicks and resumes each feed
// at its first held event.
func (e *Engine) expireBookGaps() {
	symbols := make([]schema.Symbol, 0, len(e.held))
	for s := range e.held {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)
	for _, s := range symbols {
		held := e.held[s]
		if len(held) == 0 || e.tick < held[0].tick+e.cfg.MaxGapTicks {
			continue
		}
		b, ok := e.books.Get(s)
		if !ok {
			continue
		}
		e.metrics.Inc(obs.CounterBookResync)
		e.warn(errors.Wrapf(book.ErrSequenceGap, "symbol=%s resync at %d after %d ticks", s, held[0].ev.SymbolSeq, e.cfg.MaxGapTicks))
		b.Resync(held[0].ev.SymbolSeq)
		e.flushHeld(s)
	}
}

func (e *Engine) onClock(ev schema.MarketEvent) {
	e.updates = e.orders.ExpireOrders(e.ts, e.updates[:0])
	if e.observer != nil {
		e.observer.OnMarket(ev, book.Top{})
	}
	e.afterUpdates(e.updates)
	if e.cfg.TimerIntervalNs == 0 {
		e.onTimer()
	}
}

func (e *Engine) onTimer() {
	snap := e.snapshot()
	e.intents = e.strat.OnTimer(snap, e.intents[:0])
	e.submit(snap)
}

// fireTimers runs one timer tick per elapsed interval, bounded per input.
func (e *Engine) fireTimers() {
	interval := e.cfg.TimerIntervalNs
	if interval == 0 || e.ts == 0 {
		return
	}
	if e.nextTimer == 0 {
		e.nextTimer = e.ts + interval
		return
	}
	for n := 0; e.nextTimer <= e.ts; n++ {
		if n == maxTimersPerEvent {
			logs.Errorf("timer backlog at seq %d, skipping to ts %d", e.seq, e.ts)
			e.nextTimer = e.ts + interval
			return
		}
		e.begin(SourceTimer, schema.EventUnknown, "")
		e.onTimer()
		e.end()
		e.nextTimer += interval
	}
}

func (e *Engine) onReport(r schema.VenueReport) {
	if o, ok := e.orders.Order(r.OrderID); ok {
		e.res.Symbol = o.Symbol
	}

	var err error
	switch e.cfg.ReportPolicy {
	case ReportBuffer:
		before := e.orders.PendingCount()
		e.updates, err = e.orders.ApplyReportBuffered(r, e.tick, e.updates[:0])
		if e.orders.PendingCount() > before {
			e.metrics.Inc(obs.CounterBufferedReport)
		}
	default:
		e.updates = e.updates[:0]
		u, applied, serr := e.orders.ApplyReportStrict(r)
		err = serr
		switch {
		case applied:
			e.updates = append(e.updates, u)
		case serr == nil:
			e.metrics.Inc(obs.CounterDuplicateReport)
		}
	}
	if err != nil {
		e.metrics.Inc(obs.CounterOMSError)
		e.fail(err)
	}
	e.afterUpdates(e.updates)
}

// afterUpdates books fills into the portfolio and lets the strategy react.
func (e *Engine) afterUpdates(updates []oms.Update) {
	if len(updates) == 0 {
		return
	}
	for _, u := range updates {
		e.res.Updates = append(e.res.Updates, u)
		if !u.Report.Type.IsFill() || u.Report.FilledQtyDelta <= 0 {
			continue
		}
		fill := schema.Fill{
			OrderID: u.Order.ID,
			Symbol:  u.Order.Symbol,
			Side:    u.Order.Side,
			Price:   u.Report.FillPrice,
			Qty:     u.Report.FilledQtyDelta,
			Fee:     u.Report.Fee,
			TsEvent: u.Report.TsEvent,
		}
		e.positions.ApplyFill(fill)
		e.res.Fills = append(e.res.Fills, fill)
		e.fills++
		e.metrics.Inc(obs.CounterFill)
		e.metrics.ObserveEvent(schema.EventFill)
	}

	snap := e.snapshot()
	e.intents = e.intents[:0]
	for _, u := range updates {
		e.intents = e.strat.OnReport(snap, u, e.intents)
	}
	e.submit(snap)
}

// submit runs each intent through the chain and routes survivors to the OMS and venue.
// The snapshot is rebuilt after any intent that changed order state.
func (e *Engine) submit(snap *snapshot.Snapshot) {
	stale := false
	for _, in := range e.intents {
		if stale {
			snap = e.snapshot()
			stale = false
		}
		e.metrics.Inc(obs.CounterIntent)
		e.metrics.ObserveEvent(schema.EventIntent)

		start := time.Now()
		d := e.chain.Evaluate(in, snap)
		e.metrics.ObserveRiskEval(time.Since(start))
		e.metrics.ObserveEvent(schema.EventRiskDecision)
		e.res.Decisions = append(e.res.Decisions, d)
		if d.Reason != schema.RiskReasonNone {
			e.metrics.IncRiskReason(d.Reason)
		}
		if d.Action == schema.RiskActionTransform {
			e.metrics.Inc(obs.CounterTransform)
		}
		if !d.Allowed() {
			continue
		}
		stale = e.route(d.Intent)
	}
	e.intents = e.intents[:0]
}

// route hands an approved intent to the OMS and its request to the venue.
// It reports whether order state changed.
func (e *Engine) route(in schema.Intent) bool {
	switch in.Kind {
	case schema.IntentPlace:
		h, err := e.orders.SubmitPlace(in)
		if err != nil {
			e.metrics.Inc(obs.CounterOMSError)
			e.fail(err)
			return false
		}
		e.request(h.Request)
		if ack := e.venue.Submit(h.Request); !ack.Accepted() {
			e.metrics.Inc(obs.CounterVenueReject)
			o, err := e.orders.RejectLocal(h.OrderID, ack.Err.Error())
			if err != nil {
				e.fail(err)
				return true
			}
			e.res.Updates = append(e.res.Updates, oms.Update{
				Report: schema.VenueReport{OrderID: o.ID, Type: schema.ReportRejected, TsEvent: e.ts, Reason: o.Reason},
				Order:  o,
				Prev:   oms.OrderStateNew,
			})
		}
		return true

	case schema.IntentCancel:
		ack, err := e.orders.SubmitCancel(in)
		if err != nil {
			e.metrics.Inc(obs.CounterOMSError)
			e.fail(err)
			return false
		}
		if ack.Warning != nil {
			e.metrics.Inc(obs.CounterOMSWarning)
			e.warn(ack.Warning)
		}
		if !ack.HasRequest {
			return false
		}
		e.request(ack.Request)
		if v := e.venue.Cancel(ack.Request); !v.Accepted() {
			e.metrics.Inc(obs.CounterVenueReject)
			e.orders.ClearCancelPending(ack.OrderID)
			e.warn(errors.Wrapf(ErrVenueRefused, "cancel order=%d: %s", ack.OrderID, errText(v.Err)))
		}
		return true

	case schema.IntentModify:
		ack, err := e.orders.SubmitModify(in)
		if err != nil {
			e.metrics.Inc(obs.CounterOMSError)
			e.fail(err)
			return false
		}
		e.request(ack.Request)
		if v := e.venue.Replace(ack.Request); !v.Accepted() {
			e.metrics.Inc(obs.CounterVenueReject)
			e.warn(errors.Wrapf(ErrVenueRefused, "replace order=%d: %s", ack.OrderID, errText(v.Err)))
		}
		return true

	default:
		e.fail(errors.Wrapf(ErrInvalidInput, "intent kind=%s", in.Kind))
		return false
	}
}

func (e *Engine) request(req schema.VenueRequest) {
	e.res.Requests = append(e.res.Requests, req)
	e.metrics.ObserveEvent(schema.EventVenueRequest)
}

func (e *Engine) snapshot() *snapshot.Snapshot {
	return e.builder.Build(e.tick, e.seq, e.ts, e.chain.Engaged())
}

func errText(err error) string {
	if err == nil {
		return "rejected"
	}
	return err.Error()
}

func (e *Engine) fail(err error) {
	e.res.Errors = append(e.res.Errors, err)
	logs.Errorf("tick %d seq %d: %v", e.tick, e.seq, err)
}

func (e *Engine) warn(err error) {
	e.res.Warnings = append(e.res.Warnings, err)
	logs.Infof("tick %d seq %d: warning: %v", e.tick, e.seq, err)
}

// Snapshot returns a view of the current state across every symbol.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	return e.snapshot()
}

// Order returns a copy of an order.
func (e *Engine) Order(id uint64) (oms.Order, bool) {
	return e.orders.Order(id)
}

// OrderByClientID returns a copy of the latest order with clientID.
func (e *Engine) OrderByClientID(clientID string) (oms.Order, bool) {
	return e.orders.ByClientID(clientID)
}

// Orders returns copies of every order in id order.
func (e *Engine) Orders() []oms.Order {
	return e.orders.Orders()
}

// Audit returns the OMS audit trail.
func (e *Engine) Audit() []oms.AuditEntry {
	return e.orders.Audit()
}

// Top returns the top of book for symbol.
func (e *Engine) Top(symbol schema.Symbol) (book.Top, bool) {
	return e.books.Top(symbol)
}

// Depth returns up to n levels per side for symbol.
func (e *Engine) Depth(symbol schema.Symbol, n int) (bids, asks []schema.Level) {
	b, ok := e.books.Get(symbol)
	if !ok {
		return nil, nil
	}
	return b.Depth(n)
}

// Positions returns the portfolio sorted by symbol.
func (e *Engine) Positions() []state.Position {
	return e.positions.Positions()
}

// RestorePositions seeds the portfolio from a saved state snapshot.
func (e *Engine) RestorePositions(s state.Snapshot) {
	e.positions.ApplySnapshot(s)
}

// StateSnapshot captures the portfolio together with the replay digest.
func (e *Engine) StateSnapshot() state.Snapshot {
	snap := e.positions.SnapshotWithMeta(e.seq, e.ts)
	snap.Digest = e.DigestHex()
	return snap
}

// Halted reports whether the kill switch is engaged.
func (e *Engine) Halted() bool {
	return e.chain.Engaged()
}

// Seq returns the last processed input sequence.
func (e *Engine) Seq() uint64 {
	return e.seq
}

// Tick returns the number of ticks run.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// PendingReports returns the number of venue reports waiting for a tick.
func (e *Engine) PendingReports() int {
	return e.reports.Len()
}

// Digest hashes the tick output chain together with the final book, order, and portfolio state.
// Two runs over identical input with identical configuration produce the same digest.
func (e *Engine) Digest() [sha256.Size]byte {
	buf := append([]byte(nil), e.hash[:]...)
	buf = e.books.AppendDigest(buf)
	buf = e.orders.AppendDigest(buf)
	buf = e.positions.AppendDigest(buf)
	return sha256.Sum256(buf)
}

// DigestHex returns Digest as lowercase hex.
func (e *Engine) DigestHex() string {
	d := e.Digest()
	return hex.EncodeToString(d[:])
}

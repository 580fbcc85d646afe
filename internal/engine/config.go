package engine

import (
	"lobsim/internal/book"
	"lobsim/internal/oms"
	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

// GapPolicy decides what happens to a market event that skips per-symbol sequences.
type GapPolicy string

const (
	// GapDrop skips the event and resumes the feed after it.
	GapDrop GapPolicy = "drop"
	// GapBuffer holds events until the gap fills or MaxGapTicks pass.
	GapBuffer GapPolicy = "buffer"
)

// CrossedPolicy decides what a crossed book triggers.
type CrossedPolicy string

const (
	CrossedWarn   CrossedPolicy = "warn"
	CrossedHalt   CrossedPolicy = "halt"
	CrossedIgnore CrossedPolicy = "ignore"
)

// ReportPolicy selects how the OMS treats reports that arrive out of order.
type ReportPolicy string

const (
	ReportStrict ReportPolicy = "strict"
	ReportBuffer ReportPolicy = "buffer"
)

const (
	defaultMaxGapTicks     = 64
	defaultMaxChainedTicks = 1024
	defaultReportQueueSize = 1 << 16
	maxTimersPerEvent      = 1024
)

// Config holds the engine's static settings.
type Config struct {
	Symbols []schema.Symbol

	Book          book.Options
	GapPolicy     GapPolicy
	MaxGapTicks   uint64
	CrossedPolicy CrossedPolicy

	OMS            oms.Config
	ReportPolicy   ReportPolicy
	ReportGapTicks uint64

	// MaxChainedTicks bounds the report ticks run after one input.
	MaxChainedTicks int
	// TimerIntervalNs fires strategy timers on event time. Zero fires them on ClockTick only.
	TimerIntervalNs int64
	ReportQueueSize int
}

func (c Config) withDefaults() Config {
	if c.GapPolicy == "" {
		c.GapPolicy = GapDrop
	}
	if c.MaxGapTicks == 0 {
		c.MaxGapTicks = defaultMaxGapTicks
	}
	if c.CrossedPolicy == "" {
		c.CrossedPolicy = CrossedWarn
	}
	if c.ReportPolicy == "" {
		c.ReportPolicy = ReportStrict
	}
	if c.ReportGapTicks == 0 {
		c.ReportGapTicks = defaultMaxGapTicks
	}
	if c.MaxChainedTicks <= 0 {
		c.MaxChainedTicks = defaultMaxChainedTicks
	}
	if c.ReportQueueSize <= 0 {
		c.ReportQueueSize = defaultReportQueueSize
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.GapPolicy {
	case "", GapDrop, GapBuffer:
	default:
		return errors.Wrapf(ErrInvalidConfig, "gap policy: %s", c.GapPolicy)
	}
	switch c.CrossedPolicy {
	case "", CrossedWarn, CrossedHalt, CrossedIgnore:
	default:
		return errors.Wrapf(ErrInvalidConfig, "crossed policy: %s", c.CrossedPolicy)
	}
	switch c.ReportPolicy {
	case "", ReportStrict, ReportBuffer:
	default:
		return errors.Wrapf(ErrInvalidConfig, "report policy: %s", c.ReportPolicy)
	}
	switch c.Book.TradeMode {
	case book.TradeInformational, book.TradeDeplete:
	default:
		return errors.Wrapf(ErrInvalidConfig, "trade mode: %d", c.Book.TradeMode)
	}
	if c.TimerIntervalNs < 0 {
		return errors.Wrapf(ErrInvalidConfig, "timer interval: %d", c.TimerIntervalNs)
	}
	seen := make(map[schema.Symbol]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return errors.Wrap(ErrInvalidConfig, "empty symbol")
		}
		if _, ok := seen[s]; ok {
			return errors.Wrapf(ErrInvalidConfig, "duplicate symbol: %s", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

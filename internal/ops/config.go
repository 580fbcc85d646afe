package ops

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"lobsim/internal/book"
	"lobsim/internal/chaos"
	"lobsim/internal/engine"
	"lobsim/internal/oms"
	"lobsim/internal/risk"
	"lobsim/internal/schema"
	"lobsim/internal/strategy"
	"lobsim/internal/venue"
	"lobsim/pkg/exception"
)

// Venue modes.
const (
	VenueSimulation = "simulation"
	VenuePaper      = "paper"
)

var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

// FileConfig mirrors the config file layout. JSON and YAML share the same keys.
type FileConfig struct {
	Run      RunConfig      `json:"run" yaml:"run"`
	Book     BookConfig     `json:"book" yaml:"book"`
	OMS      OMSConfig      `json:"oms" yaml:"oms"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Venue    VenueConfig    `json:"venue" yaml:"venue"`
	Symbols  []SymbolConfig `json:"symbols" yaml:"symbols"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
}

// RunConfig selects what one run executes.
type RunConfig struct {
	Seed            uint64 `json:"seed" yaml:"seed"`
	VenueMode       string `json:"venue_mode" yaml:"venue_mode"`
	Strategy        string `json:"strategy" yaml:"strategy"`
	MaxChainedTicks int    `json:"max_chained_ticks" yaml:"max_chained_ticks"`
	TimerIntervalNs int64  `json:"timer_interval_ns" yaml:"timer_interval_ns"`
}

// BookConfig describes book maintenance.
type BookConfig struct {
	TradeMode     string `json:"trade_mode" yaml:"trade_mode"`
	GapPolicy     string `json:"gap_policy" yaml:"gap_policy"`
	MaxGapTicks   uint64 `json:"max_gap_ticks" yaml:"max_gap_ticks"`
	CrossedPolicy string `json:"crossed_policy" yaml:"crossed_policy"`
}

// OMSConfig describes report handling.
type OMSConfig struct {
	ReportPolicy       string `json:"report_policy" yaml:"report_policy"`
	MaxGapTicks        uint64 `json:"max_gap_ticks" yaml:"max_gap_ticks"`
	MaxPendingPerOrder int    `json:"max_pending_per_order" yaml:"max_pending_per_order"`
}

// RiskConfig lists the pre-trade policies and their limits.
type RiskConfig struct {
	KillSwitch          bool             `json:"kill_switch" yaml:"kill_switch"`
	Policies            []string         `json:"policies" yaml:"policies"`
	MaxOrderQty         int64            `json:"max_order_qty" yaml:"max_order_qty"`
	MaxOrderQtyBySymbol map[string]int64 `json:"max_order_qty_by_symbol" yaml:"max_order_qty_by_symbol"`
	PriceBandBps        int64            `json:"price_band_bps" yaml:"price_band_bps"`
	PriceBandTicks      int64            `json:"price_band_ticks" yaml:"price_band_ticks"`
	MaxNetPosition      int64            `json:"max_net_position" yaml:"max_net_position"`
	MaxGrossPosition    int64            `json:"max_gross_position" yaml:"max_gross_position"`
	RateLimit           int              `json:"rate_limit" yaml:"rate_limit"`
	RateWindowNs        int64            `json:"rate_window_ns" yaml:"rate_window_ns"`
	SelfTrade           string           `json:"self_trade" yaml:"self_trade"`
}

// VenueConfig describes the simulated venue. Fees are in basis points.
type VenueConfig struct {
	MakerFee        int64 `json:"maker_fee" yaml:"maker_fee"`
	TakerFee        int64 `json:"taker_fee" yaml:"taker_fee"`
	PartialFillPct  int   `json:"partial_fill_pct" yaml:"partial_fill_pct"`
	MaxPassiveFills int   `json:"max_passive_fills" yaml:"max_passive_fills"`
	// Chaos perturbs report delivery; its seed defaults to run.seed.
	Chaos chaos.Config `json:"chaos" yaml:"chaos"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name       string `json:"name" yaml:"name"`
	PriceScale int32  `json:"price_scale" yaml:"price_scale"`
	QtyScale   int32  `json:"qty_scale" yaml:"qty_scale"`
}

// StrategyConfig holds the parameters of the built-in strategies.
type StrategyConfig struct {
	Symbol         string `json:"symbol" yaml:"symbol"`
	TwapTarget     int64  `json:"twap_target" yaml:"twap_target"`
	TwapSlice      int64  `json:"twap_slice" yaml:"twap_slice"`
	TwapIntervalNs int64  `json:"twap_interval_ns" yaml:"twap_interval_ns"`
	MMHalfSpread   int64  `json:"mm_half_spread" yaml:"mm_half_spread"`
	MMQty          int64  `json:"mm_qty" yaml:"mm_qty"`
	MMSkewPerLot   int64  `json:"mm_skew_per_lot" yaml:"mm_skew_per_lot"`
	MMMaxInventory int64  `json:"mm_max_inventory" yaml:"mm_max_inventory"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry  *schema.Registry
	Engine    engine.Config
	Risk      risk.Config
	Venue     venue.Config
	Chaos     chaos.Config
	VenueMode string
	Strategy  string
	Params    strategy.Config
	Seed      uint64
}

// Load reads a config file. Files ending in .yaml or .yml are YAML, anything else JSON.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext and resolves it.
func Parse(data []byte, ext string) (Loaded, error) {
	cfg, err := Decode(data, ext)
	if err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Decode only decodes; unknown keys are rejected.
func Decode(data []byte, ext string) (FileConfig, error) {
	var cfg FileConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return FileConfig{}, errors.Wrapf(exception.ErrInvalidConfig, "decode yaml: %s", err)
		}
	case ".json", "":
		if err := strictJSON.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, errors.Wrapf(exception.ErrInvalidConfig, "decode json: %s", err)
		}
	default:
		return FileConfig{}, errors.Wrapf(exception.ErrConfigFormat, "%s", ext)
	}
	return cfg, nil
}

// Resolve applies defaults and validates every section.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Symbols)
	if err != nil {
		return Loaded{}, err
	}

	tradeMode, err := parseTradeMode(cfg.Book.TradeMode)
	if err != nil {
		return Loaded{}, err
	}

	run := cfg.Run
	if run.VenueMode == "" {
		run.VenueMode = VenueSimulation
	}
	if run.VenueMode != VenueSimulation && run.VenueMode != VenuePaper {
		return Loaded{}, invalid("run.venue_mode: %s", run.VenueMode)
	}
	if run.Strategy == "" {
		run.Strategy = strategy.NoopName
	}
	if run.MaxChainedTicks < 0 || run.TimerIntervalNs < 0 {
		return Loaded{}, invalid("run: negative bound")
	}

	params := resolveStrategy(cfg.Strategy, registry)
	timer := run.TimerIntervalNs
	if timer == 0 && run.Strategy == strategy.TwapName {
		timer = cfg.Strategy.TwapIntervalNs
	}

	engCfg := engine.Config{
		Symbols:         registry.Symbols(),
		Book:            book.Options{TradeMode: tradeMode},
		GapPolicy:       engine.GapPolicy(cfg.Book.GapPolicy),
		MaxGapTicks:     cfg.Book.MaxGapTicks,
		CrossedPolicy:   engine.CrossedPolicy(cfg.Book.CrossedPolicy),
		OMS:             oms.Config{MaxPendingPerOrder: cfg.OMS.MaxPendingPerOrder},
		ReportPolicy:    engine.ReportPolicy(cfg.OMS.ReportPolicy),
		ReportGapTicks:  cfg.OMS.MaxGapTicks,
		MaxChainedTicks: run.MaxChainedTicks,
		TimerIntervalNs: timer,
	}
	if err := engCfg.Validate(); err != nil {
		return Loaded{}, err
	}

	riskCfg := resolveRisk(cfg.Risk)
	if _, err := risk.NewChainFromConfig(riskCfg); err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "risk: %s", err)
	}
	if _, err := strategy.New(run.Strategy, params); err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "strategy: %s", err)
	}

	v := cfg.Venue
	if v.MakerFee < 0 || v.TakerFee < 0 || v.PartialFillPct < 0 || v.PartialFillPct > 100 || v.MaxPassiveFills < 0 {
		return Loaded{}, invalid("venue: fee or fill bounds out of range")
	}
	if err := v.Chaos.Validate(); err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrInvalidConfig, "venue: %s", err)
	}
	if v.Chaos.Seed == 0 {
		v.Chaos.Seed = run.Seed
	}

	return Loaded{
		Registry: registry,
		Engine:   engCfg,
		Risk:     riskCfg,
		Venue: venue.Config{
			MakerFeeBps:     v.MakerFee,
			TakerFeeBps:     v.TakerFee,
			PartialFillPct:  v.PartialFillPct,
			Seed:            run.Seed,
			MaxPassiveFills: v.MaxPassiveFills,
		},
		Chaos:     v.Chaos,
		VenueMode: run.VenueMode,
		Strategy:  run.Strategy,
		Params:    params,
		Seed:      run.Seed,
	}, nil
}

// NewChain builds a fresh risk chain; chains carry per-run state.
func (l Loaded) NewChain() (*risk.Chain, error) {
	return risk.NewChainFromConfig(l.Risk)
}

// NewStrategy builds a fresh strategy instance.
func (l Loaded) NewStrategy() (strategy.Strategy, error) {
	return strategy.New(l.Strategy, l.Params)
}

// NewVenue builds the configured venue, wrapped with fault injection when enabled.
func (l Loaded) NewVenue() (venue.Port, error) {
	var port venue.Port
	if l.VenueMode == VenuePaper {
		port = venue.NewPaperVenue(l.Venue)
	} else {
		port = venue.NewSimVenue(l.Venue)
	}
	if !l.Chaos.Enabled() {
		return port, nil
	}
	return chaos.Wrap(port, l.Chaos)
}

func buildRegistry(symbols []SymbolConfig) (*schema.Registry, error) {
	if len(symbols) == 0 {
		return nil, invalid("symbols: at least one symbol is required")
	}
	reg := schema.NewRegistry()
	for _, sym := range symbols {
		if sym.PriceScale < 0 || sym.QtyScale < 0 {
			return nil, invalid("symbol %s: scale must be >= 0", sym.Name)
		}
		scale := schema.ScaleSpec{PriceScale: schema.Scale(sym.PriceScale), QuantityScale: schema.Scale(sym.QtyScale)}
		if err := reg.AddInstrument(schema.Symbol(sym.Name), scale); err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidConfig, "symbol %q: %s", sym.Name, err)
		}
	}
	return reg, nil
}

func parseTradeMode(v string) (book.TradeMode, error) {
	switch v {
	case "", "informational":
		return book.TradeInformational, nil
	case "deplete":
		return book.TradeDeplete, nil
	default:
		return 0, invalid("book.trade_mode: %s", v)
	}
}

func resolveRisk(cfg RiskConfig) risk.Config {
	out := risk.Config{
		KillSwitch:       cfg.KillSwitch,
		Policies:         cfg.Policies,
		MaxOrderQty:      schema.Quantity(cfg.MaxOrderQty),
		PriceBandBps:     cfg.PriceBandBps,
		PriceBandTicks:   schema.Price(cfg.PriceBandTicks),
		MaxNetPosition:   schema.Quantity(cfg.MaxNetPosition),
		MaxGrossPosition: schema.Quantity(cfg.MaxGrossPosition),
		RateLimit:        cfg.RateLimit,
		RateWindow:       time.Duration(cfg.RateWindowNs),
		SelfTrade:        cfg.SelfTrade,
	}
	if len(cfg.MaxOrderQtyBySymbol) > 0 {
		out.MaxOrderQtyBySymbol = make(map[schema.Symbol]schema.Quantity, len(cfg.MaxOrderQtyBySymbol))
		for sym, qty := range cfg.MaxOrderQtyBySymbol {
			out.MaxOrderQtyBySymbol[schema.Symbol(sym)] = schema.Quantity(qty)
		}
	}
	return out
}

// resolveStrategy defaults the strategy symbol to the first configured one.
func resolveStrategy(cfg StrategyConfig, reg *schema.Registry) strategy.Config {
	symbol := schema.Symbol(cfg.Symbol)
	if symbol == "" {
		symbol = reg.Symbols()[0]
	}
	return strategy.Config{
		Symbol:         symbol,
		TwapTarget:     schema.Quantity(cfg.TwapTarget),
		TwapSlice:      schema.Quantity(cfg.TwapSlice),
		MMHalfSpread:   schema.Price(cfg.MMHalfSpread),
		MMQty:          schema.Quantity(cfg.MMQty),
		MMSkewPerLot:   schema.Price(cfg.MMSkewPerLot),
		MMMaxInventory: schema.Quantity(cfg.MMMaxInventory),
	}
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(exception.ErrInvalidConfig, format, args...)
}

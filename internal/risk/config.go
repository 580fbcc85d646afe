package risk

import (
	"time"

	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

var ErrUnknownPolicy = errors.New("risk: unknown policy")

// Config defines the policy chain and its limits.
// An empty Policies list enables every policy whose limit is set, in canonical order.
type Config struct {
	KillSwitch          bool                              `json:"killSwitch" yaml:"kill_switch"`
	Policies            []string                          `json:"policies" yaml:"policies"`
	MaxOrderQty         schema.Quantity                   `json:"maxOrderQty" yaml:"max_order_qty"`
	MaxOrderQtyBySymbol map[schema.Symbol]schema.Quantity `json:"maxOrderQtyBySymbol" yaml:"max_order_qty_by_symbol"`
	PriceBandBps        int64                             `json:"priceBandBps" yaml:"price_band_bps"`
	PriceBandTicks      schema.Price                      `json:"priceBandTicks" yaml:"price_band_ticks"`
	MaxNetPosition      schema.Quantity                   `json:"maxNetPosition" yaml:"max_net_position"`
	MaxGrossPosition    schema.Quantity                   `json:"maxGrossPosition" yaml:"max_gross_position"`
	RateLimit           int                               `json:"rateLimit" yaml:"rate_limit"`
	RateWindow          time.Duration                     `json:"rateWindow" yaml:"rate_window"`
	SelfTrade           string                            `json:"selfTrade" yaml:"self_trade"`
}

func (c Config) enabled() []string {
	if len(c.Policies) > 0 {
		return c.Policies
	}
	var names []string
	if c.MaxOrderQty > 0 || len(c.MaxOrderQtyBySymbol) > 0 {
		names = append(names, MaxOrderSizeName)
	}
	if c.PriceBandBps > 0 || c.PriceBandTicks > 0 {
		names = append(names, PriceBandName)
	}
	if c.MaxNetPosition > 0 || c.MaxGrossPosition > 0 {
		names = append(names, PositionLimitName)
	}
	if c.RateLimit > 0 && c.RateWindow > 0 {
		names = append(names, RateLimitName)
	}
	if c.SelfTrade != "" {
		names = append(names, SelfTradeName)
	}
	return names
}

// ParseSelfTradeMode maps a configuration value to a mode. Empty means reject.
func ParseSelfTradeMode(v string) (SelfTradeMode, error) {
	switch v {
	case "", "reject":
		return SelfTradeReject, nil
	case "reprice":
		return SelfTradeReprice, nil
	default:
		return 0, errors.Errorf("risk: unknown self trade mode: %s", v)
	}
}

// NewChainFromConfig builds a chain with fresh policy state.
func NewChainFromConfig(cfg Config) (*Chain, error) {
	mode, err := ParseSelfTradeMode(cfg.SelfTrade)
	if err != nil {
		return nil, err
	}
	names := cfg.enabled()
	policies := make([]Policy, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, errors.Errorf("risk: duplicate policy: %s", name)
		}
		seen[name] = struct{}{}
		switch name {
		case MaxOrderSizeName:
			policies = append(policies, &MaxOrderSize{Default: cfg.MaxOrderQty, BySymbol: cfg.MaxOrderQtyBySymbol})
		case PriceBandName:
			policies = append(policies, &PriceBand{Bps: cfg.PriceBandBps, Ticks: cfg.PriceBandTicks})
		case PositionLimitName:
			policies = append(policies, &PositionLimit{MaxNet: cfg.MaxNetPosition, MaxGross: cfg.MaxGrossPosition})
		case RateLimitName:
			policies = append(policies, &RateLimit{Limit: cfg.RateLimit, Window: int64(cfg.RateWindow)})
		case SelfTradeName:
			policies = append(policies, &SelfTrade{Mode: mode})
		default:
			return nil, errors.Wrapf(ErrUnknownPolicy, "name=%s", name)
		}
	}
	return NewChain(cfg.KillSwitch, policies...), nil
}

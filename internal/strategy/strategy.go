package strategy

import (
	"strconv"

	"lobsim/internal/book"
	"lobsim/internal/oms"
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"

	"github.com/yanun0323/errors"
)

// Strategy turns snapshots into intents. Implementations append to dst and return it.
// The snapshot is read-only.
type Strategy interface {
	Name() string
	OnMarket(snap *snapshot.Snapshot, change book.BookChange, dst []schema.Intent) []schema.Intent
	OnReport(snap *snapshot.Snapshot, update oms.Update, dst []schema.Intent) []schema.Intent
	OnTimer(snap *snapshot.Snapshot, dst []schema.Intent) []schema.Intent
}

// Config holds the parameters of every built-in strategy.
type Config struct {
	Symbol         schema.Symbol   `json:"symbol" yaml:"symbol"`
	TwapTarget     schema.Quantity `json:"twapTarget" yaml:"twap_target"`
	TwapSlice      schema.Quantity `json:"twapSlice" yaml:"twap_slice"`
	MMHalfSpread   schema.Price    `json:"mmHalfSpread" yaml:"mm_half_spread"`
	MMQty          schema.Quantity `json:"mmQty" yaml:"mm_qty"`
	MMSkewPerLot   schema.Price    `json:"mmSkewPerLot" yaml:"mm_skew_per_lot"`
	MMMaxInventory schema.Quantity `json:"mmMaxInventory" yaml:"mm_max_inventory"`
}

// Built-in strategy names.
const (
	NoopName = "noop"
	TwapName = "twap"
	MMName   = "mm"
)

// New builds a strategy by name.
func New(name string, cfg Config) (Strategy, error) {
	switch name {
	case "", NoopName:
		return Noop{}, nil
	case TwapName:
		if cfg.Symbol == "" || cfg.TwapTarget == 0 {
			return nil, errors.New("strategy: twap needs a symbol and a non-zero target")
		}
		return NewTwap(cfg.Symbol, cfg.TwapTarget, cfg.TwapSlice), nil
	case MMName:
		if cfg.Symbol == "" || cfg.MMQty <= 0 {
			return nil, errors.New("strategy: mm needs a symbol and a positive quote qty")
		}
		return NewMarketMaker(cfg.Symbol, cfg.MMHalfSpread, cfg.MMQty, cfg.MMSkewPerLot, cfg.MMMaxInventory), nil
	default:
		return nil, errors.Errorf("strategy: unknown strategy: %s", name)
	}
}

// Noop never trades.
type Noop struct{}

func (Noop) Name() string { return NoopName }

func (Noop) OnMarket(_ *snapshot.Snapshot, _ book.BookChange, dst []schema.Intent) []schema.Intent {
	return dst
}

func (Noop) OnReport(_ *snapshot.Snapshot, _ oms.Update, dst []schema.Intent) []schema.Intent {
	return dst
}

func (Noop) OnTimer(_ *snapshot.Snapshot, dst []schema.Intent) []schema.Intent {
	return dst
}

// clientIDs issues deterministic client ids with a fixed prefix.
type clientIDs struct {
	prefix string
	next   uint64
}

func (c *clientIDs) issue() string {
	c.next++
	return c.prefix + strconv.FormatUint(c.next, 10)
}

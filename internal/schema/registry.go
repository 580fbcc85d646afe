package schema

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Scale is the number of decimal places a tick or lot represents.
// Example: PriceScale=2 means a price of 10050 ticks reads as 100.50.
type Scale int32

// ScaleSpec defines scaling for an instrument's integer fields.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale" yaml:"price_scale"`
	QuantityScale Scale `json:"quantityScale" yaml:"quantity_scale"`
}

// Instrument describes a tradable symbol.
type Instrument struct {
	Symbol Symbol
	Scale  ScaleSpec
}

// FormatPrice renders a tick price as a decimal string.
func (i Instrument) FormatPrice(p Price) string {
	return decimal.New(int64(p), -int32(i.Scale.PriceScale)).StringFixed(int32(i.Scale.PriceScale))
}

// FormatQty renders a lot quantity as a decimal string.
func (i Instrument) FormatQty(q Quantity) string {
	return decimal.New(int64(q), -int32(i.Scale.QuantityScale)).StringFixed(int32(i.Scale.QuantityScale))
}

// Registry stores instrument definitions in registration order.
type Registry struct {
	instruments []Instrument
	bySymbol    map[Symbol]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bySymbol: make(map[Symbol]int)}
}

// AddInstrument registers a new symbol.
func (r *Registry) AddInstrument(symbol Symbol, scale ScaleSpec) error {
	if symbol == "" {
		return errors.New("symbol name is empty")
	}
	if scale.PriceScale < 0 || scale.QuantityScale < 0 {
		return errors.Errorf("invalid scale for %s: scale must be >= 0", symbol)
	}
	if _, ok := r.bySymbol[symbol]; ok {
		return errors.Errorf("symbol already exists: %s", symbol)
	}
	r.bySymbol[symbol] = len(r.instruments)
	r.instruments = append(r.instruments, Instrument{Symbol: symbol, Scale: scale})
	return nil
}

// Instrument returns the definition of a symbol. Unknown symbols read with zero scale.
func (r *Registry) Instrument(symbol Symbol) (Instrument, bool) {
	if r == nil {
		return Instrument{Symbol: symbol}, false
	}
	idx, ok := r.bySymbol[symbol]
	if !ok {
		return Instrument{Symbol: symbol}, false
	}
	return r.instruments[idx], true
}

// Symbols returns the registered symbols in registration order.
func (r *Registry) Symbols() []Symbol {
	if r == nil {
		return nil
	}
	out := make([]Symbol, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst.Symbol)
	}
	return out
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.instruments)
}

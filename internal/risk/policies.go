package risk

import (
	"lobsim/internal/schema"
	"lobsim/internal/snapshot"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Policy names used in configuration.
const (
	MaxOrderSizeName  = "max_order_size"
	PriceBandName     = "price_band"
	PositionLimitName = "position_limit"
	RateLimitName     = "rate_limit"
	SelfTradeName     = "self_trade"
)

// MaxOrderSize clamps order quantity to a per-symbol limit.
type MaxOrderSize struct {
	Default  schema.Quantity
	BySymbol map[schema.Symbol]schema.Quantity
}

func (p *MaxOrderSize) Name() string { return MaxOrderSizeName }

func (p *MaxOrderSize) limit(symbol schema.Symbol) schema.Quantity {
	if l, ok := p.BySymbol[symbol]; ok {
		return l
	}
	return p.Default
}

func (p *MaxOrderSize) Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision {
	switch intent.Kind {
	case schema.IntentPlace:
		limit := p.limit(intent.Symbol)
		if limit <= 0 {
			return Reject(intent, p.Name(), schema.RiskReasonMaxQty)
		}
		if intent.Qty > limit {
			next := intent
			next.Qty = limit
			return Transform(intent, next, p.Name(), schema.RiskReasonMaxQty)
		}
	case schema.IntentModify:
		if intent.NewQty == 0 {
			break
		}
		limit := p.limit(targetSymbol(intent, snap))
		if limit <= 0 {
			return Reject(intent, p.Name(), schema.RiskReasonMaxQty)
		}
		if intent.NewQty > limit {
			next := intent
			next.NewQty = limit
			return Transform(intent, next, p.Name(), schema.RiskReasonMaxQty)
		}
	}
	return Allow(intent)
}

// PriceBand rejects limit prices too far from the reference price:
// the mid, or the last trade when one side of the book is empty.
// Either bound may be zero to disable it.
type PriceBand struct {
	Bps   int64
	Ticks schema.Price
}

func (p *PriceBand) Name() string { return PriceBandName }

func (p *PriceBand) Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision {
	var price schema.Price
	switch intent.Kind {
	case schema.IntentPlace:
		if intent.Type != schema.OrderTypeLimit {
			return Allow(intent)
		}
		price = intent.Price
	case schema.IntentModify:
		price = intent.NewPrice
	}
	if price <= 0 {
		return Allow(intent)
	}
	top, ok := snap.Top(targetSymbol(intent, snap))
	if !ok {
		return Allow(intent)
	}
	ref, ok := top.Reference()
	if !ok || ref <= 0 {
		return Allow(intent)
	}
	diff := absInt64(int64(price) - int64(ref))
	if p.Ticks > 0 && diff > int64(p.Ticks) {
		return Reject(intent, p.Name(), schema.RiskReasonPriceBand)
	}
	if exceedsDeviation(diff, int64(ref), p.Bps) {
		return Reject(intent, p.Name(), schema.RiskReasonPriceBand)
	}
	return Allow(intent)
}

// PositionLimit rejects places whose worst-case fill breaches the net or gross limit.
// Net counts the position plus open same-side orders; gross counts every position and open order.
type PositionLimit struct {
	MaxNet   schema.Quantity
	MaxGross schema.Quantity
}

func (p *PositionLimit) Name() string { return PositionLimitName }

func (p *PositionLimit) Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision {
	if intent.Kind != schema.IntentPlace {
		return Allow(intent)
	}
	if p.MaxNet > 0 {
		buy, sell := snap.OpenExposure(intent.Symbol)
		pending := buy
		if intent.Side == schema.OrderSideSell {
			pending = sell
		}
		next := applySide(snap.Position(intent.Symbol), intent.Side, pending+intent.Qty)
		if absQuantity(next) > p.MaxNet {
			return Reject(intent, p.Name(), schema.RiskReasonNetPosition)
		}
	}
	if p.MaxGross > 0 && snap.GrossExposure()+intent.Qty > p.MaxGross {
		return Reject(intent, p.Name(), schema.RiskReasonGrossPosition)
	}
	return Allow(intent)
}

// RateLimit admits at most Limit places and modifies per sliding window of event time.
type RateLimit struct {
	Limit  int
	Window int64

	stamps []int64
}

func (p *RateLimit) Name() string { return RateLimitName }

func (p *RateLimit) Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision {
	if intent.Kind == schema.IntentCancel || p.Limit <= 0 || p.Window <= 0 {
		return Allow(intent)
	}
	now := snap.TsEvent
	cut := 0
	for cut < len(p.stamps) && p.stamps[cut] <= now-p.Window {
		cut++
	}
	if cut > 0 {
		p.stamps = append(p.stamps[:0], p.stamps[cut:]...)
	}
	if len(p.stamps) >= p.Limit {
		return Reject(intent, p.Name(), schema.RiskReasonRateLimit)
	}
	p.stamps = append(p.stamps, now)
	return Allow(intent)
}

// SelfTradeMode selects how a self-crossing place is handled.
type SelfTradeMode uint8

const (
	SelfTradeReject SelfTradeMode = iota
	// SelfTradeReprice moves the price one tick behind the own opposite order.
	SelfTradeReprice
)

// SelfTrade prevents places that would cross the strategy's own resting orders.
type SelfTrade struct {
	Mode SelfTradeMode
}

func (p *SelfTrade) Name() string { return SelfTradeName }

func (p *SelfTrade) Evaluate(intent schema.Intent, snap *snapshot.Snapshot) schema.RiskDecision {
	if intent.Kind != schema.IntentPlace {
		return Allow(intent)
	}
	opposite := intent.Side.Opposite()
	var best schema.Price
	found := false
	for _, o := range snap.OpenOrders(intent.Symbol) {
		if o.Side != opposite || o.Type != schema.OrderTypeLimit || o.ClientID == intent.ClientID {
			continue
		}
		if !found || (opposite == schema.OrderSideSell && o.Price < best) || (opposite == schema.OrderSideBuy && o.Price > best) {
			best = o.Price
			found = true
		}
	}
	if !found {
		return Allow(intent)
	}
	if intent.Type == schema.OrderTypeMarket {
		return Reject(intent, p.Name(), schema.RiskReasonSelfTrade)
	}
	crosses := (intent.Side == schema.OrderSideBuy && intent.Price >= best) ||
		(intent.Side == schema.OrderSideSell && intent.Price <= best)
	if !crosses {
		return Allow(intent)
	}
	if p.Mode != SelfTradeReprice {
		return Reject(intent, p.Name(), schema.RiskReasonSelfTrade)
	}
	next := intent
	if intent.Side == schema.OrderSideBuy {
		next.Price = best - 1
	} else {
		next.Price = best + 1
	}
	if next.Price <= 0 {
		return Reject(intent, p.Name(), schema.RiskReasonSelfTrade)
	}
	return Transform(intent, next, p.Name(), schema.RiskReasonSelfTrade)
}

// targetSymbol resolves the symbol of a cancel/modify from the snapshot when the intent omits it.
func targetSymbol(intent schema.Intent, snap *snapshot.Snapshot) schema.Symbol {
	if intent.Symbol != "" || intent.ClientID == "" {
		return intent.Symbol
	}
	if o, ok := snap.Order(intent.ClientID); ok {
		return o.Symbol
	}
	return ""
}

func applySide(pos schema.Quantity, side schema.OrderSide, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.OrderSideBuy:
		return schema.Quantity(int64(pos) + int64(qty))
	case schema.OrderSideSell:
		return schema.Quantity(int64(pos) - int64(qty))
	default:
		return pos
	}
}

func absQuantity(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func exceedsDeviation(diff int64, ref int64, bps int64) bool {
	if diff <= 0 || ref <= 0 || bps <= 0 {
		return false
	}
	if diff > maxInt64/10000 {
		return true
	}
	lhs := diff * 10000
	if ref > maxInt64/bps {
		return true
	}
	rhs := ref * bps
	return lhs > rhs
}

package schema

// Price is an integer number of ticks. The tick size is defined by configuration.
type Price int64

// Quantity is an integer number of lots. The lot size is defined by configuration.
type Quantity int64

// Notional is price * quantity in tick-lots.
type Notional int64

// Fee is an integer amount in ticks.
type Fee int64

// Symbol is the key every per-instrument structure is indexed by.
type Symbol string

// OrderSide describes order direction. Buy rests on the bid side of a book, Sell on the ask side.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return OrderSideUnknown
	}
}

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	switch s {
	case OrderSideBuy:
		return 1
	case OrderSideSell:
		return -1
	default:
		return 0
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
	TimeInForceGTD
)

// MarketEventKind selects the variant carried by a MarketEvent.
type MarketEventKind uint16

const (
	MarketEventUnknown MarketEventKind = iota
	MarketEventL2Snapshot
	MarketEventL2Delta
	MarketEventTrade
	MarketEventClockTick
)

func (k MarketEventKind) String() string {
	switch k {
	case MarketEventL2Snapshot:
		return "l2_snapshot"
	case MarketEventL2Delta:
		return "l2_delta"
	case MarketEventTrade:
		return "trade"
	case MarketEventClockTick:
		return "clock_tick"
	default:
		return "unknown"
	}
}

// Level is one aggregated price level.
type Level struct {
	Price Price
	Qty   Quantity
}

// MarketEvent is the payload for EventMarketData.
//
// Side/Price/Qty are used by L2Delta and Trade; Bids/Asks by L2Snapshot.
// SymbolSeq is the per-symbol feed sequence, zero when the feed carries none.
type MarketEvent struct {
	Kind      MarketEventKind
	Symbol    Symbol
	Seq       uint64
	SymbolSeq uint64
	TsEvent   int64
	Side      OrderSide
	Price     Price
	Qty       Quantity
	Bids      []Level
	Asks      []Level
}

// ReportType describes the fate of a previously submitted order.
type ReportType uint16

const (
	ReportUnknown ReportType = iota
	ReportAccepted
	ReportWorking
	ReportRejected
	ReportPartialFill
	ReportFill
	ReportCanceled
	ReportExpired
	ReportReplaced
)

func (t ReportType) String() string {
	switch t {
	case ReportAccepted:
		return "accepted"
	case ReportWorking:
		return "working"
	case ReportRejected:
		return "rejected"
	case ReportPartialFill:
		return "partial_fill"
	case ReportFill:
		return "fill"
	case ReportCanceled:
		return "canceled"
	case ReportExpired:
		return "expired"
	case ReportReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// IsFill reports whether the report carries executed quantity.
func (t ReportType) IsFill() bool {
	return t == ReportPartialFill || t == ReportFill
}

// VenueReport is the payload for EventVenueReport.
// Seq is monotonic per OrderID, starting at 1.
type VenueReport struct {
	OrderID        uint64
	Seq            uint64
	Type           ReportType
	VenueOrderID   string
	FilledQtyDelta Quantity
	FillPrice      Price
	Fee            Fee
	NewPrice       Price
	NewQty         Quantity
	TsEvent        int64
	Reason         string
}

// Fill is the payload for EventFill: one execution attributed to an order.
type Fill struct {
	OrderID uint64
	Symbol  Symbol
	Side    OrderSide
	Price   Price
	Qty     Quantity
	Fee     Fee
	TsEvent int64
}

// IntentKind selects the variant carried by an Intent.
type IntentKind uint16

const (
	IntentUnknown IntentKind = iota
	IntentPlace
	IntentCancel
	IntentModify
)

func (k IntentKind) String() string {
	switch k {
	case IntentPlace:
		return "place"
	case IntentCancel:
		return "cancel"
	case IntentModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Intent is a strategy-proposed order action.
//
// Place uses Symbol/Side/Type/Price/Qty/TimeInForce/ExpireAt/ClientID.
// Cancel and Modify target ClientID, or VenueOrderID when ClientID is empty.
// Modify treats a zero NewPrice or NewQty as unchanged.
type Intent struct {
	Kind         IntentKind
	Symbol       Symbol
	Side         OrderSide
	Type         OrderType
	Price        Price
	Qty          Quantity
	TimeInForce  TimeInForce
	ExpireAt     int64
	ClientID     string
	VenueOrderID string
	NewPrice     Price
	NewQty       Quantity
}

// Place builds a GTC limit place intent.
func Place(symbol Symbol, side OrderSide, price Price, qty Quantity, clientID string) Intent {
	return Intent{
		Kind:        IntentPlace,
		Symbol:      symbol,
		Side:        side,
		Type:        OrderTypeLimit,
		Price:       price,
		Qty:         qty,
		TimeInForce: TimeInForceGTC,
		ClientID:    clientID,
	}
}

// Cancel builds a cancel intent targeting a client id.
func Cancel(clientID string) Intent {
	return Intent{Kind: IntentCancel, ClientID: clientID}
}

// Modify builds a modify intent targeting a client id.
func Modify(clientID string, newPrice Price, newQty Quantity) Intent {
	return Intent{Kind: IntentModify, ClientID: clientID, NewPrice: newPrice, NewQty: newQty}
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionReject
	RiskActionTransform
)

func (a RiskAction) String() string {
	switch a {
	case RiskActionAllow:
		return "allow"
	case RiskActionReject:
		return "reject"
	case RiskActionTransform:
		return "transform"
	default:
		return "unknown"
	}
}

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonMaxQty
	RiskReasonPriceBand
	RiskReasonNetPosition
	RiskReasonGrossPosition
	RiskReasonRateLimit
	RiskReasonSelfTrade
	RiskReasonInvalidIntent
)

func (r RiskReason) String() string {
	switch r {
	case RiskReasonNone:
		return "none"
	case RiskReasonKillSwitch:
		return "kill_switch"
	case RiskReasonMaxQty:
		return "max_qty"
	case RiskReasonPriceBand:
		return "price_band"
	case RiskReasonNetPosition:
		return "net_position"
	case RiskReasonGrossPosition:
		return "gross_position"
	case RiskReasonRateLimit:
		return "rate_limit"
	case RiskReasonSelfTrade:
		return "self_trade"
	case RiskReasonInvalidIntent:
		return "invalid_intent"
	default:
		return "unknown"
	}
}

// RiskDecision is the payload for EventRiskDecision.
type RiskDecision struct {
	Action   RiskAction
	Reason   RiskReason
	Policy   string
	Original Intent
	Intent   Intent
}

// Allowed reports whether the decision lets the (possibly transformed) intent through.
func (d RiskDecision) Allowed() bool {
	return d.Action == RiskActionAllow || d.Action == RiskActionTransform
}

// RequestKind selects the venue call a VenueRequest stands for.
type RequestKind uint16

const (
	RequestUnknown RequestKind = iota
	RequestPlace
	RequestCancel
	RequestReplace
)

func (k RequestKind) String() string {
	switch k {
	case RequestPlace:
		return "place"
	case RequestCancel:
		return "cancel"
	case RequestReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// VenueRequest is the payload for EventVenueRequest: one OMS-issued venue-bound call.
type VenueRequest struct {
	Kind         RequestKind
	OrderID      uint64
	ClientID     string
	VenueOrderID string
	Symbol       Symbol
	Side         OrderSide
	Type         OrderType
	TimeInForce  TimeInForce
	ExpireAt     int64
	Price        Price
	Qty          Quantity
}

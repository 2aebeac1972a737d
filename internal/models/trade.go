package models

import "time"

// Side represents the direction of an order.
type Side string

const (
	// Buy opens (or adds to) a long position.
	Buy Side = "BUY"
	// Sell exits a position. A sell with no prior buy is recorded as
	// already closed; only long positions are tracked through this path.
	Sell Side = "SELL"
)

// Valid returns true if the Side is one of the defined constants.
func (s Side) Valid() bool {
	switch s {
	case Buy, Sell:
		return true
	default:
		return false
	}
}

// TradeStatus represents the lifecycle state of a trade record.
type TradeStatus string

const (
	// StatusOpen marks a trade whose position has not been exited yet.
	StatusOpen TradeStatus = "OPEN"
	// StatusClosed marks a trade whose exit has been recorded.
	StatusClosed TradeStatus = "CLOSED"
	// StatusCancelled is a defined terminal state kept for forward
	// compatibility; no current code path transitions into it.
	StatusCancelled TradeStatus = "CANCELLED"
)

// OrderStyle represents how an order was priced.
type OrderStyle string

const (
	// Market orders fill at the prevailing price.
	Market OrderStyle = "MARKET"
	// Limit orders carry a limit price.
	Limit OrderStyle = "LIMIT"
)

// Valid returns true if the OrderStyle is one of the defined constants.
func (o OrderStyle) Valid() bool {
	switch o {
	case Market, Limit:
		return true
	default:
		return false
	}
}

// Trade is a single order event in the ledger. Fields set at creation never
// change; exit fields are written exactly once when the trade closes.
type Trade struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Symbol     string      `json:"symbol"`
	Strike     int         `json:"strike"`
	Kind       OptionKind  `json:"option_type"`
	Side       Side        `json:"side"`
	Quantity   int         `json:"quantity"`
	Price      float64     `json:"price"`
	OrderID    string      `json:"order_id"`
	Expiry     Horizon     `json:"expiry"`
	SecurityID string      `json:"security_id,omitempty"`
	OrderStyle OrderStyle  `json:"order_type"`
	LimitPrice *float64    `json:"limit_price,omitempty"`
	IsMock     bool        `json:"is_mock"`
	Status     TradeStatus `json:"status"`

	// Set on close.
	ExitPrice   *float64   `json:"exit_price,omitempty"`
	ExitTime    *time.Time `json:"exit_time,omitempty"`
	ExitOrderID string     `json:"exit_order_id,omitempty"`
	PnL         *float64   `json:"pnl,omitempty"`
}

// IsOpen reports whether the trade still tracks an open position.
func (t *Trade) IsOpen() bool { return t.Status == StatusOpen }

// RealizedPnL returns the realized profit/loss, or 0 if the trade is open.
func (t *Trade) RealizedPnL() float64 {
	if t.PnL == nil {
		return 0
	}
	return *t.PnL
}

// Package models defines the domain types shared across the data layer:
// option contracts, trade records and their lifecycle enums.
package models

// OptionKind represents the type of option contract.
type OptionKind string

const (
	// Call represents a call option contract (CE on the exchange feed).
	Call OptionKind = "CALL"
	// Put represents a put option contract (PE on the exchange feed).
	Put OptionKind = "PUT"
)

// Valid returns true if the OptionKind is one of the defined constants.
func (k OptionKind) Valid() bool {
	switch k {
	case Call, Put:
		return true
	default:
		return false
	}
}

// Horizon identifies one of the three expiry buckets contracts are classified
// into. Strike resolution is always relative to a horizon.
type Horizon string

const (
	// HorizonCurrent is the nearest upcoming expiry.
	HorizonCurrent Horizon = "current"
	// HorizonNext is the second-nearest expiry.
	HorizonNext Horizon = "next"
	// HorizonMonthly is the month-end expiry picked by the classifier heuristic.
	HorizonMonthly Horizon = "monthly"
)

// Valid returns true if the Horizon is one of the defined constants.
func (h Horizon) Valid() bool {
	switch h {
	case HorizonCurrent, HorizonNext, HorizonMonthly:
		return true
	default:
		return false
	}
}

// Contract describes one tradable option instrument. Contracts are immutable
// after classification; the securities cache owns the canonical set.
type Contract struct {
	SecurityID    string     `json:"security_id"`
	TradingSymbol string     `json:"trading_symbol"`
	CustomSymbol  string     `json:"custom_symbol"`
	Strike        int        `json:"strike_price"`
	Kind          OptionKind `json:"option_type"`
	Expiry        string     `json:"expiry_date"` // YYYY-MM-DD
	LotSize       int        `json:"lot_size"`
}

// Position is an aggregate of still-open BUY trades sharing a security ID.
type Position struct {
	SecurityID  string  `json:"security_id"`
	Symbol      string  `json:"symbol"`
	Quantity    int     `json:"qty"`
	EntryPrice  float64 `json:"entry_price"` // cost-weighted average
	ProductType string  `json:"product_type"`
}

// Package broker defines the external-collaborator surface the data layer
// consumes: the raw instrument-universe feed, price quotes and order
// placement. Transports live behind these interfaces; the core never talks
// to an exchange directly.
package broker

import "errors"

// ErrFeedUnavailable is returned when the instrument-universe feed cannot be
// fetched. Callers recover by retrying or falling back to persisted data;
// an existing snapshot is never corrupted by a failed fetch.
var ErrFeedUnavailable = errors.New("instrument feed unavailable")

// InstrumentRow is one raw security-master row as delivered by the exchange
// feed. Field tags match the Dhan compact security-master column headers.
type InstrumentRow struct {
	SecurityID     string  `csv:"SEM_SMST_SECURITY_ID"`
	TradingSymbol  string  `csv:"SEM_TRADING_SYMBOL"`
	CustomSymbol   string  `csv:"SEM_CUSTOM_SYMBOL"`
	InstrumentName string  `csv:"SEM_INSTRUMENT_NAME"`
	OptionType     string  `csv:"SEM_OPTION_TYPE"`
	StrikePrice    float64 `csv:"SEM_STRIKE_PRICE"`
	ExpiryDate     string  `csv:"SEM_EXPIRY_DATE"`
	LotSize        float64 `csv:"SEM_LOT_UNITS"`
}

// InstrumentProvider produces the raw instrument universe. A failed fetch
// means no refresh is possible this cycle; it never invalidates prior data.
type InstrumentProvider interface {
	Instruments() ([]InstrumentRow, error)
}

// QuoteProvider returns last traded prices keyed by security ID. Partial
// results are valid: IDs without a price are simply absent from the map.
type QuoteProvider interface {
	LastPrices(securityIDs []string) (map[string]float64, error)
}

// OrderTicket describes an order handed to the placement transport.
type OrderTicket struct {
	SecurityID string
	Side       string
	Quantity   int
	Style      string
	LimitPrice float64
}

// OrderPlacer submits orders to the exchange and returns the assigned order ID.
type OrderPlacer interface {
	PlaceOrder(ticket OrderTicket) (string, error)
}

// Feed is the full market-data surface consumed by the cache and the
// execution bridge.
type Feed interface {
	InstrumentProvider
	QuoteProvider
}

// ComposedFeed joins independent instrument and quote providers into a Feed.
type ComposedFeed struct {
	InstrumentProvider
	QuoteProvider
}

var _ Feed = (*ComposedFeed)(nil)

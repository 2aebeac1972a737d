// Package mock provides synthetic market-data collaborators for tests and
// paper trading runs: a generated NIFTY-style option universe, jittered
// quotes and an order placer that accepts everything.
package mock

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahilm88/orbit/internal/broker"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1.
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// Feed generates a plausible option universe for one underlying: strikes on
// the configured interval around spot, across the next two weekly expiries
// and the month-end expiry.
type Feed struct {
	mu sync.Mutex

	underlying     string
	family         string
	strikeInterval int
	lotSize        int
	spot           float64
	now            func() time.Time
}

var _ broker.Feed = (*Feed)(nil)
var _ broker.OrderPlacer = (*Feed)(nil)

// NewFeed creates a synthetic feed centered near the given spot price.
func NewFeed(underlying string, strikeInterval, lotSize int, spot float64) *Feed {
	return &Feed{
		underlying:     underlying,
		family:         "OPTIDX",
		strikeInterval: strikeInterval,
		lotSize:        lotSize,
		spot:           spot,
		now:            time.Now,
	}
}

// SetClock overrides the feed clock for deterministic tests.
func (f *Feed) SetClock(now func() time.Time) { f.now = now }

// Instruments emits call/put rows for 21 strikes around spot for each of the
// three generated expiries.
func (f *Feed) Instruments() ([]broker.InstrumentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	expiries := f.expiries(now)

	atm := int(math.Round(f.spot/float64(f.strikeInterval))) * f.strikeInterval
	var rows []broker.InstrumentRow
	id := 40000

	for _, expiry := range expiries {
		for s := atm - 10*f.strikeInterval; s <= atm+10*f.strikeInterval; s += f.strikeInterval {
			for _, optType := range []string{"CE", "PE"} {
				id++
				rows = append(rows, broker.InstrumentRow{
					SecurityID:     fmt.Sprintf("%d", id),
					TradingSymbol:  fmt.Sprintf("%s-%s-%d-%s", f.underlying, expiry.Format("Jan2006"), s, optType),
					CustomSymbol:   fmt.Sprintf("%s %d %s %s", f.underlying, s, optType, expiry.Format("02 Jan")),
					InstrumentName: f.family,
					OptionType:     optType,
					StrikePrice:    float64(s),
					ExpiryDate:     expiry.Format("2006-01-02"),
					LotSize:        float64(f.lotSize),
				})
			}
		}
	}
	return rows, nil
}

// expiries returns the next two weekly Thursdays and the month-end Thursday.
func (f *Feed) expiries(now time.Time) []time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := (int(time.Thursday) - int(today.Weekday()) + 7) % 7
	first := today.AddDate(0, 0, days)
	second := first.AddDate(0, 0, 7)

	// Last Thursday of the current month, rolled forward when passed.
	last := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, now.Location())
	back := (int(last.Weekday()) - int(time.Thursday) + 7) % 7
	monthly := last.AddDate(0, 0, -back)
	if monthly.Before(first) {
		last = time.Date(today.Year(), today.Month()+2, 0, 0, 0, 0, 0, now.Location())
		back = (int(last.Weekday()) - int(time.Thursday) + 7) % 7
		monthly = last.AddDate(0, 0, -back)
	}
	return []time.Time{first, second, monthly}
}

// LastPrices returns jittered synthetic premiums for every requested ID.
func (f *Feed) LastPrices(securityIDs []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(securityIDs))
	for _, id := range securityIDs {
		prices[id] = 80.0 + secureFloat64()*120.0
	}
	return prices, nil
}

// PlaceOrder accepts every ticket and returns a generated order ID.
func (f *Feed) PlaceOrder(ticket broker.OrderTicket) (string, error) {
	if ticket.Quantity <= 0 {
		return "", fmt.Errorf("mock: quantity must be positive")
	}
	return "SIM-" + uuid.NewString()[:8], nil
}

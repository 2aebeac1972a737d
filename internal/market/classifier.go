// Package market classifies the raw instrument universe into the contract
// set and expiry-horizon strike maps consumed by the securities cache. All
// functions are pure; time is always passed in explicitly.
package market

import (
	"sort"
	"strings"
	"time"

	"github.com/sahilm88/orbit/internal/broker"
	"github.com/sahilm88/orbit/internal/models"
)

// Params configures the classification filter and its expiry fallback.
type Params struct {
	// Underlying is the index symbol; rows must carry trading symbols with
	// the "<Underlying>-" prefix (e.g. "NIFTY-").
	Underlying string
	// Family is the instrument-family tag to accept (e.g. "OPTIDX").
	Family string
	// ExpiryWeekday is the weekly expiry day used by FallbackHorizons.
	ExpiryWeekday time.Weekday
	// CutoffHour is the hour after which today's expiry counts as passed.
	CutoffHour int
}

// StrikeMap resolves strike -> option kind -> security ID within one horizon.
type StrikeMap map[int]map[models.OptionKind]string

// Classification is the classifier output: the full filtered contract set,
// the three horizon dates and one strike map per horizon. Contracts whose
// expiry matches none of the three horizons appear in Contracts but in no
// strike map.
type Classification struct {
	Contracts     map[string]models.Contract
	CurrentExpiry string
	NextExpiry    string
	MonthlyExpiry string
	Current       StrikeMap
	Next          StrikeMap
	Monthly       StrikeMap
}

// Classify filters raw rows to the configured option family and buckets each
// accepted contract into its expiry horizon. now anchors the future-or-today
// expiry filter and the synthetic fallback.
func Classify(rows []broker.InstrumentRow, p Params, now time.Time) Classification {
	accepted := make([]broker.InstrumentRow, 0, len(rows))
	expiries := make(map[time.Time]struct{})
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	prefix := p.Underlying + "-"
	for _, row := range rows {
		if row.InstrumentName != p.Family {
			continue
		}
		if optionKind(row.OptionType) == "" {
			continue
		}
		if !strings.HasPrefix(row.TradingSymbol, prefix) {
			continue
		}
		accepted = append(accepted, row)

		if d, ok := parseExpiry(row.ExpiryDate, now.Location()); ok && !d.Before(today) {
			expiries[d] = struct{}{}
		}
	}

	var nearest, second, monthly time.Time
	if len(expiries) == 0 {
		nearest, second, monthly = FallbackHorizons(now, p.ExpiryWeekday, p.CutoffHour)
	} else {
		nearest, second, monthly = SelectHorizons(distinctSortedDates(expiries))
	}

	c := Classification{
		Contracts:     make(map[string]models.Contract, len(accepted)),
		CurrentExpiry: nearest.Format(DateFormat),
		NextExpiry:    second.Format(DateFormat),
		MonthlyExpiry: monthly.Format(DateFormat),
		Current:       make(StrikeMap),
		Next:          make(StrikeMap),
		Monthly:       make(StrikeMap),
	}

	for _, row := range accepted {
		d, ok := parseExpiry(row.ExpiryDate, now.Location())
		if !ok {
			continue
		}
		contract := models.Contract{
			SecurityID:    row.SecurityID,
			TradingSymbol: row.TradingSymbol,
			CustomSymbol:  row.CustomSymbol,
			Strike:        int(row.StrikePrice),
			Kind:          optionKind(row.OptionType),
			Expiry:        d.Format(DateFormat),
			LotSize:       int(row.LotSize),
		}
		c.Contracts[contract.SecurityID] = contract

		switch contract.Expiry {
		case c.CurrentExpiry:
			c.Current.put(contract)
		case c.NextExpiry:
			c.Next.put(contract)
		case c.MonthlyExpiry:
			c.Monthly.put(contract)
		}
	}

	return c
}

func (m StrikeMap) put(contract models.Contract) {
	kinds, ok := m[contract.Strike]
	if !ok {
		kinds = make(map[models.OptionKind]string, 2)
		m[contract.Strike] = kinds
	}
	kinds[contract.Kind] = contract.SecurityID
}

// Strikes returns the distinct strikes present in the map, ascending.
func (m StrikeMap) Strikes() []int {
	strikes := make([]int, 0, len(m))
	for s := range m {
		strikes = append(strikes, s)
	}
	sort.Ints(strikes)
	return strikes
}

// optionKind maps exchange option-type tags to domain kinds. Unknown tags
// map to the empty kind and are filtered out.
func optionKind(tag string) models.OptionKind {
	switch tag {
	case "CE":
		return models.Call
	case "PE":
		return models.Put
	default:
		return ""
	}
}

// parseExpiry accepts both plain dates and datetime strings by reading only
// the leading YYYY-MM-DD portion, the way the feed publishes them.
func parseExpiry(raw string, loc *time.Location) (time.Time, bool) {
	if len(raw) > len(DateFormat) {
		raw = raw[:len(DateFormat)]
	}
	d, err := time.ParseInLocation(DateFormat, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

package securities

import (
	"time"

	"github.com/sahilm88/orbit/internal/market"
	"github.com/sahilm88/orbit/internal/models"
)

// Snapshot is the complete, atomically-replaceable state of the cache at a
// point in time. It is immutable once installed; a refresh builds a new one
// and swaps it in wholesale. The same structure is persisted to disk.
//
// Invariant: every security ID appearing in a strike map exists in Contracts,
// and each contract's (strike, kind, horizon-date) combination appears in at
// most one strike map under exactly one kind slot.
type Snapshot struct {
	LastUpdated   time.Time `json:"last_updated"`
	CurrentExpiry string    `json:"current_expiry"`
	NextExpiry    string    `json:"next_expiry"`
	MonthlyExpiry string    `json:"monthly_expiry"`

	Contracts map[string]models.Contract `json:"contracts"`

	StrikeMapCurrent market.StrikeMap `json:"strike_map_current"`
	StrikeMapNext    market.StrikeMap `json:"strike_map_next"`
	StrikeMapMonthly market.StrikeMap `json:"strike_map_monthly"`
}

// strikeMap returns the lookup map for a horizon, nil for unknown horizons.
func (s *Snapshot) strikeMap(h models.Horizon) market.StrikeMap {
	switch h {
	case models.HorizonCurrent:
		return s.StrikeMapCurrent
	case models.HorizonNext:
		return s.StrikeMapNext
	case models.HorizonMonthly:
		return s.StrikeMapMonthly
	default:
		return nil
	}
}

// expiry returns the horizon's resolved expiry date string.
func (s *Snapshot) expiry(h models.Horizon) string {
	switch h {
	case models.HorizonCurrent:
		return s.CurrentExpiry
	case models.HorizonNext:
		return s.NextExpiry
	case models.HorizonMonthly:
		return s.MonthlyExpiry
	default:
		return ""
	}
}

// validate checks the fields a usable snapshot must carry. Persisted files
// missing any of them are treated as corrupt and trigger a refresh.
func (s *Snapshot) validate() bool {
	return s.CurrentExpiry != "" &&
		s.Contracts != nil &&
		s.StrikeMapCurrent != nil &&
		s.StrikeMapNext != nil &&
		s.StrikeMapMonthly != nil
}

// newSnapshot builds a Snapshot from a classification result.
func newSnapshot(c market.Classification, at time.Time) *Snapshot {
	return &Snapshot{
		LastUpdated:      at,
		CurrentExpiry:    c.CurrentExpiry,
		NextExpiry:       c.NextExpiry,
		MonthlyExpiry:    c.MonthlyExpiry,
		Contracts:        c.Contracts,
		StrikeMapCurrent: c.Current,
		StrikeMapNext:    c.Next,
		StrikeMapMonthly: c.Monthly,
	}
}

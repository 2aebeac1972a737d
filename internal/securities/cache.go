// Package securities owns the classified option universe and serves O(1)
// strike-to-security-ID resolution. The full exchange security master runs
// to tens of megabytes; filtering to one underlying's options and pre-built
// strike maps keeps the working set small enough to persist and reload
// wholesale.
package securities

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sahilm88/orbit/internal/broker"
	"github.com/sahilm88/orbit/internal/market"
	"github.com/sahilm88/orbit/internal/models"
)

// nearbyStrikeWindow bounds the diagnostic listing of strikes around a
// missed lookup.
const nearbyStrikeWindow = 500

// Config wires a Cache. Feed, Path and Params are required.
type Config struct {
	// Path is the snapshot file location.
	Path string
	// Validity is how long a persisted snapshot stays fresh. Zero means
	// the 12 hour default.
	Validity time.Duration
	// Feed produces the raw instrument universe at refresh time.
	Feed broker.InstrumentProvider
	// Params configure classification.
	Params market.Params
	// StrikeInterval is the underlying's strike granularity.
	StrikeInterval int
	// Location anchors calendar-date decisions (expiry rollover).
	Location *time.Location
	// Logger is optional; a default logrus logger is used when nil.
	Logger *logrus.Logger
	// Now is a clock override for tests; defaults to time.Now.
	Now func() time.Time
}

// DefaultValidity is how long a persisted snapshot is trusted before a
// refresh is forced.
const DefaultValidity = 12 * time.Hour

// Cache is the security lookup cache. Readers take the current snapshot
// under a read lock; a refresh swaps in a complete replacement, so readers
// always observe either the old or the new universe, never a mix.
type Cache struct {
	mu   sync.RWMutex
	snap *Snapshot

	path     string
	validity time.Duration
	feed     broker.InstrumentProvider
	params   market.Params
	interval int
	loc      *time.Location
	logger   *logrus.Logger
	now      func() time.Time

	refreshGroup singleflight.Group
}

// ExpiryInfo reports the three horizon dates currently in effect.
type ExpiryInfo struct {
	Current string `json:"current"`
	Next    string `json:"next"`
	Monthly string `json:"monthly"`
}

// Status is a diagnostic view of the cache used by the dashboard.
type Status struct {
	ExpiryInfo     ExpiryInfo `json:"expiry_info"`
	Contracts      int        `json:"contracts"`
	CurrentStrikes int        `json:"current_strikes"`
	NextStrikes    int        `json:"next_strikes"`
	MonthlyStrikes int        `json:"monthly_strikes"`
	LastUpdated    time.Time  `json:"last_updated"`
	SnapshotFile   string     `json:"snapshot_file"`
	SnapshotExists bool       `json:"snapshot_exists"`
}

// NewCache constructs a cache. Call Init before serving lookups.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.Feed == nil {
		return nil, fmt.Errorf("securities: feed is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("securities: snapshot path is required")
	}
	if cfg.StrikeInterval <= 0 {
		return nil, fmt.Errorf("securities: strike interval must be > 0")
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultValidity
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		path:     cfg.Path,
		validity: cfg.Validity,
		feed:     cfg.Feed,
		params:   cfg.Params,
		interval: cfg.StrikeInterval,
		loc:      cfg.Location,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

// Init loads the persisted snapshot when it is still valid, otherwise
// refreshes from the feed. A load failure of any kind falls back to a
// refresh; the error propagates only when the refresh fails too.
func (c *Cache) Init() error {
	if !c.ShouldRefresh() {
		err := c.load()
		if err == nil {
			return nil
		}
		c.logger.WithError(err).Warn("Snapshot load failed, refreshing from feed")
	}
	return c.Refresh()
}

// ShouldRefresh decides whether the persisted snapshot can be trusted.
// True when: no snapshot file exists; the snapshot is older than the
// validity window (a snapshot exactly at the window edge is still fresh);
// the nearest expiry has rolled past today; or the nearest-horizon strike
// map is empty. Unreadable files always force a refresh.
func (c *Cache) ShouldRefresh() bool {
	data, err := os.ReadFile(c.path)
	if err != nil {
		c.logger.Info("No usable snapshot file, refresh needed")
		return true
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.WithError(err).Warn("Snapshot unreadable, refresh needed")
		return true
	}

	now := c.now().In(c.loc)
	if age := now.Sub(snap.LastUpdated); age > c.validity {
		c.logger.Infof("Snapshot is %.1f hours old, refresh needed", age.Hours())
		return true
	}

	if expiry, err := time.ParseInLocation(market.DateFormat, snap.CurrentExpiry, c.loc); err == nil {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
		if expiry.Before(today) {
			c.logger.Infof("Current expiry %s has passed, refresh needed", snap.CurrentExpiry)
			return true
		}
	}

	if len(snap.StrikeMapCurrent) == 0 {
		c.logger.Info("Snapshot has no strikes for current expiry, refresh needed")
		return true
	}

	return false
}

// Refresh fetches the instrument universe, classifies it and atomically
// replaces the in-memory snapshot, then persists it. Concurrent calls are
// coalesced into a single fetch. On failure the previous snapshot stays
// installed untouched.
func (c *Cache) Refresh() error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		rows, err := c.feed.Instruments()
		if err != nil {
			return nil, fmt.Errorf("refreshing security cache: %w", err)
		}

		now := c.now().In(c.loc)
		cls := market.Classify(rows, c.params, now)
		snap := newSnapshot(cls, now)

		c.mu.Lock()
		c.snap = snap
		c.mu.Unlock()

		if err := c.persist(snap); err != nil {
			// The in-memory snapshot is already serving; losing the file
			// only means the next startup refreshes again.
			c.logger.WithError(err).Warn("Failed to persist snapshot")
		}

		c.logger.Infof("Cache refreshed: %d contracts, current=%d next=%d monthly=%d strikes",
			len(snap.Contracts), len(snap.StrikeMapCurrent), len(snap.StrikeMapNext), len(snap.StrikeMapMonthly))
		return nil, nil
	})
	return err
}

// Resolve returns the security ID for a strike/kind pair within a horizon.
// Misses return ErrNotFound; use NearbyStrikes for diagnostics.
func (c *Cache) Resolve(strike int, kind models.OptionKind, horizon models.Horizon) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap == nil {
		return "", fmt.Errorf("%d %s (%s): %w", strike, kind, horizon, ErrNotFound)
	}
	id, ok := c.snap.strikeMap(horizon)[strike][kind]
	if !ok {
		return "", fmt.Errorf("%d %s (%s, expiry %s): %w", strike, kind, horizon, c.snap.expiry(horizon), ErrNotFound)
	}
	return id, nil
}

// NearbyStrikes lists the strikes available in a horizon within a fixed
// window of the requested strike. It exists purely for troubleshooting a
// resolution miss and is never invoked as a side effect of Resolve.
func (c *Cache) NearbyStrikes(strike int, horizon models.Horizon) []int {
	nearby := make([]int, 0)
	for _, s := range c.AvailableStrikes(horizon) {
		if abs(s-strike) <= nearbyStrikeWindow {
			nearby = append(nearby, s)
		}
	}
	return nearby
}

// Contract returns the contract metadata for a security ID.
func (c *Cache) Contract(securityID string) (models.Contract, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap == nil {
		return models.Contract{}, fmt.Errorf("contract %s: %w", securityID, ErrNotFound)
	}
	contract, ok := c.snap.Contracts[securityID]
	if !ok {
		return models.Contract{}, fmt.Errorf("contract %s: %w", securityID, ErrNotFound)
	}
	return contract, nil
}

// AvailableStrikes returns the distinct strikes present in a horizon,
// ascending. An uninitialized cache yields an empty slice, not an error.
func (c *Cache) AvailableStrikes(horizon models.Horizon) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap == nil {
		return []int{}
	}
	return c.snap.strikeMap(horizon).Strikes()
}

// StrikesAround returns up to count strikes centered on the available strike
// closest to center.
func (c *Cache) StrikesAround(center, count int, horizon models.Horizon) []int {
	strikes := c.AvailableStrikes(horizon)
	if len(strikes) == 0 || count <= 0 {
		return []int{}
	}

	idx := sort.SearchInts(strikes, center)
	if idx == len(strikes) || (idx > 0 && center-strikes[idx-1] < strikes[idx]-center) {
		idx--
	}

	half := count / 2
	start := idx - half
	if start < 0 {
		start = 0
	}
	end := idx + half + 1
	if end > len(strikes) {
		end = len(strikes)
	}
	return strikes[start:end]
}

// ATMStrike returns the strike nearest to the spot price, rounding halves
// away from zero to the strike interval.
func (c *Cache) ATMStrike(spot float64) int {
	return int(math.Round(spot/float64(c.interval))) * c.interval
}

// ExpiryInfo returns the three horizon dates currently in effect. Before the
// first refresh the synthetic fallback dates are reported.
func (c *Cache) ExpiryInfo() ExpiryInfo {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if snap == nil {
		nearest, second, monthly := market.FallbackHorizons(
			c.now().In(c.loc), c.params.ExpiryWeekday, c.params.CutoffHour)
		return ExpiryInfo{
			Current: nearest.Format(market.DateFormat),
			Next:    second.Format(market.DateFormat),
			Monthly: monthly.Format(market.DateFormat),
		}
	}
	return ExpiryInfo{Current: snap.CurrentExpiry, Next: snap.NextExpiry, Monthly: snap.MonthlyExpiry}
}

// Status reports diagnostic details for the dashboard.
func (c *Cache) Status() Status {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	st := Status{
		ExpiryInfo:   c.ExpiryInfo(),
		SnapshotFile: c.path,
	}
	if _, err := os.Stat(c.path); err == nil {
		st.SnapshotExists = true
	}
	if snap != nil {
		st.Contracts = len(snap.Contracts)
		st.CurrentStrikes = len(snap.StrikeMapCurrent)
		st.NextStrikes = len(snap.StrikeMapNext)
		st.MonthlyStrikes = len(snap.StrikeMapMonthly)
		st.LastUpdated = snap.LastUpdated
	}
	return st
}

// load reads and installs the persisted snapshot.
func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}
	if !snap.validate() {
		return fmt.Errorf("snapshot %s is missing required fields", c.path)
	}

	c.mu.Lock()
	c.snap = &snap
	c.mu.Unlock()

	c.logger.Infof("Loaded %d contracts from snapshot", len(snap.Contracts))
	return nil
}

// persist writes the snapshot wholesale, via temp file and atomic rename so
// a crash never leaves a truncated file behind.
func (c *Cache) persist(snap *Snapshot) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating snapshot dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

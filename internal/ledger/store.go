package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sahilm88/orbit/internal/models"
)

// store owns the in-memory trade list and its JSON file. All access is
// serialized by a single mutex; write volume never justifies more.
type store struct {
	mu     sync.Mutex
	path   string
	mode   Mode
	logger *logrus.Logger
	trades []models.Trade
}

// ledgerFile is the persisted layout: the trade list plus bookkeeping.
type ledgerFile struct {
	LastUpdated time.Time     `json:"last_updated"`
	Mode        Mode          `json:"mode"`
	Trades      []tradeRecord `json:"trades"`
}

// tradeRecord mirrors models.Trade but keeps the fields added after the
// first release nullable, so files written by older builds can be defaulted
// exactly once at load. The outer fields shadow the embedded ones during
// decoding.
type tradeRecord struct {
	models.Trade
	OrderStyleOpt *models.OrderStyle `json:"order_type"`
	IsMockOpt     *bool              `json:"is_mock"`
	LimitPriceOpt *float64           `json:"limit_price"`
}

func newStore(path string, mode Mode, logger *logrus.Logger) *store {
	return &store{path: path, mode: mode, logger: logger}
}

// load reads the trades file if present. Missing files start an empty
// ledger; corrupt files are logged and likewise start empty.
func (s *store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Infof("No existing %s trades file, starting fresh", s.mode)
		return
	}
	if err != nil {
		s.logger.WithError(err).Errorf("Failed to read %s trades", s.mode)
		return
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.WithError(err).Errorf("Failed to parse %s trades, starting fresh", s.mode)
		return
	}

	s.trades = make([]models.Trade, 0, len(file.Trades))
	for _, rec := range file.Trades {
		s.trades = append(s.trades, s.migrate(rec))
	}
	s.logger.Infof("Loaded %d %s trades from history", len(s.trades), s.mode)
}

// migrate applies the defaulting rules for records written before the
// order-style, limit-price and mock-flag fields existed.
func (s *store) migrate(rec tradeRecord) models.Trade {
	t := rec.Trade

	t.OrderStyle = models.Market
	if rec.OrderStyleOpt != nil && *rec.OrderStyleOpt != "" {
		t.OrderStyle = *rec.OrderStyleOpt
	}

	t.LimitPrice = rec.LimitPriceOpt

	t.IsMock = s.mode == ModePaper
	if rec.IsMockOpt != nil {
		t.IsMock = *rec.IsMockOpt
	}

	return t
}

// append adds a trade and rewrites the file. A failed write is logged and
// the in-memory record kept: losing durability for one session beats losing
// the trade entirely.
func (s *store) append(trade models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, trade)
	if err := s.save(); err != nil {
		s.logger.WithError(err).Errorf("Failed to save %s trades; record kept in memory only", s.mode)
	}
}

// update runs fn over the trade list under the lock. fn returns the mutated
// trade, or nil when nothing matched. The file is rewritten only on a match.
func (s *store) update(fn func([]models.Trade) *models.Trade) (models.Trade, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := fn(s.trades)
	if changed == nil {
		return models.Trade{}, false
	}
	if err := s.save(); err != nil {
		s.logger.WithError(err).Errorf("Failed to save %s trades; record kept in memory only", s.mode)
	}
	return *changed, true
}

// snapshot returns a copy of the trade list.
func (s *store) snapshot() []models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// save rewrites the file wholesale via temp file and atomic rename. Caller
// holds the lock.
func (s *store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating ledger dir: %w", err)
		}
	}

	records := make([]tradeRecord, 0, len(s.trades))
	for i := range s.trades {
		t := s.trades[i]
		records = append(records, tradeRecord{
			Trade:         t,
			OrderStyleOpt: &t.OrderStyle,
			IsMockOpt:     &t.IsMock,
			LimitPriceOpt: t.LimitPrice,
		})
	}

	file := ledgerFile{
		LastUpdated: time.Now(),
		Mode:        s.mode,
		Trades:      records,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s trades: %w", s.mode, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s trades: %w", s.mode, err)
	}
	return os.Rename(tmp, s.path)
}

// Package ledger keeps the append-only record of trade entries and exits.
// Live and paper trades get independent instances with separate files;
// nothing ever reads or writes across modes.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sahilm88/orbit/internal/models"
)

// Mode labels a ledger instance and selects its storage namespace.
type Mode string

const (
	// ModeLive records real trades.
	ModeLive Mode = "live"
	// ModePaper records simulated trades.
	ModePaper Mode = "paper"
)

// positionProductType tags aggregated positions in the broker's convention.
const positionProductType = "MARGIN"

// Config wires a Ledger.
type Config struct {
	// Mode is live or paper.
	Mode Mode
	// Path is the trades file for this mode.
	Path string
	// Location anchors calendar-date queries (today's trades).
	Location *time.Location
	// Logger is optional.
	Logger *logrus.Logger
	// Now is a clock override for tests; defaults to time.Now.
	Now func() time.Time
}

// Ledger is the per-mode trade store. A single mutex serializes mutation;
// write volume is low (manual dashboard trading), so every mutation rewrites
// the file wholesale.
type Ledger struct {
	mode   Mode
	store  *store
	loc    *time.Location
	logger *logrus.Logger
	idgen  *models.TradeIDGenerator
	now    func() time.Time
}

// TradeParams carries the caller-supplied attributes of a new trade.
type TradeParams struct {
	Symbol     string
	Strike     int
	Kind       models.OptionKind
	Side       models.Side
	Quantity   int
	Price      float64
	OrderID    string
	Expiry     models.Horizon
	SecurityID string
	Style      models.OrderStyle
	LimitPrice *float64
}

// New creates a ledger and loads any existing trades file. A corrupt file is
// logged and the ledger starts empty; trading availability wins over
// recovering unreadable history.
func New(cfg Config) (*Ledger, error) {
	if cfg.Mode != ModeLive && cfg.Mode != ModePaper {
		return nil, fmt.Errorf("ledger: mode must be %q or %q", ModeLive, ModePaper)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger: path is required")
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

	l := &Ledger{
		mode:   cfg.Mode,
		store:  newStore(cfg.Path, cfg.Mode, cfg.Logger),
		loc:    cfg.Location,
		logger: cfg.Logger,
		idgen:  models.NewTradeIDGenerator(),
		now:    cfg.Now,
	}
	l.store.load()
	return l, nil
}

// Mode returns the ledger's mode label.
func (l *Ledger) Mode() Mode { return l.mode }

// AddTrade validates and records a new trade. BUY trades start OPEN; a SELL
// with no prior BUY is recorded already CLOSED, since only long positions
// are opened through this path.
func (l *Ledger) AddTrade(p TradeParams) (models.Trade, error) {
	if err := l.validate(p); err != nil {
		return models.Trade{}, err
	}

	style := p.Style
	if style == "" {
		style = models.Market
	}

	status := models.StatusClosed
	if p.Side == models.Buy {
		status = models.StatusOpen
	}

	now := l.now().In(l.loc)
	trade := models.Trade{
		ID:         l.idgen.Next(now),
		Timestamp:  now,
		Symbol:     p.Symbol,
		Strike:     p.Strike,
		Kind:       p.Kind,
		Side:       p.Side,
		Quantity:   p.Quantity,
		Price:      p.Price,
		OrderID:    p.OrderID,
		Expiry:     p.Expiry,
		SecurityID: p.SecurityID,
		OrderStyle: style,
		LimitPrice: p.LimitPrice,
		IsMock:     l.mode == ModePaper,
		Status:     status,
	}

	l.store.append(trade)

	l.logger.Infof("[%s] Trade recorded: %s - %s %d %s @ %.2f",
		l.mode, trade.ID, trade.Side, trade.Quantity, trade.Symbol, trade.Price)
	return trade, nil
}

func (l *Ledger) validate(p TradeParams) error {
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidTrade, p.Quantity)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative, got %.2f", ErrInvalidTrade, p.Price)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidTrade, p.Side)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown option kind %q", ErrInvalidTrade, p.Kind)
	}
	if p.Style == models.Limit && (p.LimitPrice == nil || *p.LimitPrice <= 0) {
		return fmt.Errorf("%w: limit orders need a positive limit price", ErrInvalidTrade)
	}
	if p.Style != "" && !p.Style.Valid() {
		return fmt.Errorf("%w: unknown order style %q", ErrInvalidTrade, p.Style)
	}
	return nil
}

// CloseTrade closes the open trade with the given ID, recording exit price,
// exit time and realized P/L. Returns ErrTradeNotFound when no open trade
// matches.
func (l *Ledger) CloseTrade(tradeID string, exitPrice float64, exitOrderID string) (models.Trade, error) {
	return l.close(func(t *models.Trade) bool {
		return t.ID == tradeID && t.Status == models.StatusOpen
	}, exitPrice, exitOrderID)
}

// CloseTradeBySecurity closes the first open BUY trade referencing the given
// security ID. One lot is closed per call, in ledger append order; callers
// holding multiple lots call repeatedly.
func (l *Ledger) CloseTradeBySecurity(securityID string, exitPrice float64, exitOrderID string) (models.Trade, error) {
	return l.close(func(t *models.Trade) bool {
		return t.SecurityID == securityID && t.Status == models.StatusOpen && t.Side == models.Buy
	}, exitPrice, exitOrderID)
}

func (l *Ledger) close(match func(*models.Trade) bool, exitPrice float64, exitOrderID string) (models.Trade, error) {
	now := l.now().In(l.loc)

	closed, ok := l.store.update(func(trades []models.Trade) *models.Trade {
		for i := range trades {
			if match(&trades[i]) {
				t := &trades[i]
				pnl := (exitPrice - t.Price) * float64(t.Quantity)
				t.ExitPrice = &exitPrice
				t.ExitTime = &now
				t.ExitOrderID = exitOrderID
				t.PnL = &pnl
				t.Status = models.StatusClosed
				return t
			}
		}
		return nil
	})
	if !ok {
		return models.Trade{}, ErrTradeNotFound
	}

	l.logger.Infof("[%s] Trade closed: %s - P/L: %.2f", l.mode, closed.ID, closed.RealizedPnL())
	return closed, nil
}

// Trades returns a copy of every trade in the ledger.
func (l *Ledger) Trades() []models.Trade {
	return l.store.snapshot()
}

// OpenTrades returns all trades still tracking an open position.
func (l *Ledger) OpenTrades() []models.Trade {
	return l.filter(func(t *models.Trade) bool { return t.Status == models.StatusOpen })
}

// ClosedTrades returns all closed trades.
func (l *Ledger) ClosedTrades() []models.Trade {
	return l.filter(func(t *models.Trade) bool { return t.Status == models.StatusClosed })
}

// TodayTrades returns trades recorded on the current calendar date in the
// ledger's location.
func (l *Ledger) TodayTrades() []models.Trade {
	today := l.now().In(l.loc).Format("2006-01-02")
	return l.filter(func(t *models.Trade) bool {
		return t.Timestamp.In(l.loc).Format("2006-01-02") == today
	})
}

// AllTrades returns trades most recent first, truncated to limit when limit
// is positive.
func (l *Ledger) AllTrades(limit int) []models.Trade {
	trades := l.store.snapshot()
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.After(trades[j].Timestamp)
	})
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}

// OpenPositions aggregates open BUY trades by security ID into positions
// with summed quantity and cost-weighted average entry price. Positions with
// zero aggregate quantity are excluded, as are trades without a security ID.
func (l *Ledger) OpenPositions() []models.Position {
	type acc struct {
		position models.Position
		cost     float64
	}
	byID := make(map[string]*acc)

	for _, t := range l.store.snapshot() {
		if t.Status != models.StatusOpen || t.Side != models.Buy || t.SecurityID == "" {
			continue
		}
		a, ok := byID[t.SecurityID]
		if !ok {
			a = &acc{position: models.Position{
				SecurityID:  t.SecurityID,
				Symbol:      t.Symbol,
				ProductType: positionProductType,
			}}
			byID[t.SecurityID] = a
		}
		a.position.Quantity += t.Quantity
		a.cost += t.Price * float64(t.Quantity)
	}

	positions := make([]models.Position, 0, len(byID))
	for _, a := range byID {
		if a.position.Quantity <= 0 {
			continue
		}
		a.position.EntryPrice = a.cost / float64(a.position.Quantity)
		positions = append(positions, a.position)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].SecurityID < positions[j].SecurityID
	})
	return positions
}

// EntryPrices maps security ID, trading symbol and "strike_KIND" keys to the
// latest open entry price, for dashboard P/L display against live quotes.
func (l *Ledger) EntryPrices() map[string]float64 {
	prices := make(map[string]float64)
	for _, t := range l.store.snapshot() {
		if t.Status != models.StatusOpen || t.Side != models.Buy {
			continue
		}
		if t.SecurityID != "" {
			prices[t.SecurityID] = t.Price
		}
		prices[t.Symbol] = t.Price
		prices[fmt.Sprintf("%d_%s", t.Strike, t.Kind)] = t.Price
	}
	return prices
}

func (l *Ledger) filter(keep func(*models.Trade) bool) []models.Trade {
	all := l.store.snapshot()
	out := make([]models.Trade, 0, len(all))
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out
}

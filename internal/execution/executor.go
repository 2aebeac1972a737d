// Package execution bridges the securities cache and the trade ledgers: it
// resolves order requests to security IDs, determines fill prices from
// quotes, routes placement (real or simulated) and records the outcome.
// Neither the cache nor the ledgers know about each other; this is the only
// place the two meet.
package execution

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sahilm88/orbit/internal/broker"
	"github.com/sahilm88/orbit/internal/ledger"
	"github.com/sahilm88/orbit/internal/models"
)

// OrderRequest is a human-facing order: strike, kind and horizon instead of
// a security ID.
type OrderRequest struct {
	Strike     int               `json:"strike"`
	Kind       models.OptionKind `json:"option_type"`
	Side       models.Side       `json:"side"`
	Quantity   int               `json:"quantity"`
	Horizon    models.Horizon    `json:"expiry"`
	Style      models.OrderStyle `json:"order_type"`
	LimitPrice float64           `json:"limit_price,omitempty"`
}

// Resolver is the slice of the securities cache the executor needs.
type Resolver interface {
	Resolve(strike int, kind models.OptionKind, horizon models.Horizon) (string, error)
	Contract(securityID string) (models.Contract, error)
}

// Executor routes orders to the ledger matching the current mode. Paper
// mode never touches the order placer; live mode never touches the paper
// ledger.
type Executor struct {
	mu        sync.RWMutex
	paperMode bool

	cache  Resolver
	live   *ledger.Ledger
	paper  *ledger.Ledger
	quotes broker.QuoteProvider
	placer broker.OrderPlacer
	logger *logrus.Logger
}

// Config wires an Executor.
type Config struct {
	Cache     Resolver
	Live      *ledger.Ledger
	Paper     *ledger.Ledger
	Quotes    broker.QuoteProvider
	Placer    broker.OrderPlacer
	PaperMode bool
	Logger    *logrus.Logger
}

// New constructs an Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Cache == nil || cfg.Live == nil || cfg.Paper == nil || cfg.Quotes == nil {
		return nil, fmt.Errorf("execution: cache, ledgers and quotes are required")
	}
	if !cfg.PaperMode && cfg.Placer == nil {
		return nil, fmt.Errorf("execution: live mode requires an order placer")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Executor{
		paperMode: cfg.PaperMode,
		cache:     cfg.Cache,
		live:      cfg.Live,
		paper:     cfg.Paper,
		quotes:    cfg.Quotes,
		placer:    cfg.Placer,
		logger:    cfg.Logger,
	}, nil
}

// PaperMode reports whether orders are currently simulated.
func (e *Executor) PaperMode() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paperMode
}

// SetPaperMode toggles between simulated and real order routing. Switching
// back to live is refused when no order placer is configured.
func (e *Executor) SetPaperMode(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !on && e.placer == nil {
		return fmt.Errorf("execution: no order placer configured, cannot leave paper mode")
	}
	e.paperMode = on
	return nil
}

// Ledger returns the ledger for the current mode.
func (e *Executor) Ledger() *ledger.Ledger {
	if e.PaperMode() {
		return e.paper
	}
	return e.live
}

// LedgerFor returns the ledger for an explicit mode.
func (e *Executor) LedgerFor(mode ledger.Mode) *ledger.Ledger {
	if mode == ledger.ModePaper {
		return e.paper
	}
	return e.live
}

// PlaceOrder resolves the request, determines the fill price and records the
// trade in the active ledger. Resolution misses surface as securities
// ErrNotFound; nothing is recorded on any failure.
func (e *Executor) PlaceOrder(req OrderRequest) (models.Trade, error) {
	style := req.Style
	if style == "" {
		style = models.Market
	}
	if style == models.Limit && req.LimitPrice <= 0 {
		return models.Trade{}, fmt.Errorf("%w: limit orders need a positive limit price", ledger.ErrInvalidTrade)
	}
	horizon := req.Horizon
	if horizon == "" {
		horizon = models.HorizonCurrent
	}

	securityID, err := e.cache.Resolve(req.Strike, req.Kind, horizon)
	if err != nil {
		return models.Trade{}, fmt.Errorf("resolving order: %w", err)
	}

	symbol := fmt.Sprintf("%d %s", req.Strike, req.Kind)
	if contract, err := e.cache.Contract(securityID); err == nil {
		symbol = contract.TradingSymbol
	}

	fill := e.fillPrice(securityID, req.Side, style, req.LimitPrice)

	var orderID string
	if e.PaperMode() {
		orderID = "MOCK-" + uuid.NewString()[:8]
	} else {
		orderID, err = e.placer.PlaceOrder(broker.OrderTicket{
			SecurityID: securityID,
			Side:       string(req.Side),
			Quantity:   req.Quantity,
			Style:      string(style),
			LimitPrice: req.LimitPrice,
		})
		if err != nil {
			return models.Trade{}, fmt.Errorf("placing order: %w", err)
		}
	}

	var limitPrice *float64
	if style == models.Limit {
		limitPrice = &req.LimitPrice
	}

	trade, err := e.Ledger().AddTrade(ledger.TradeParams{
		Symbol:     symbol,
		Strike:     req.Strike,
		Kind:       req.Kind,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      fill,
		OrderID:    orderID,
		Expiry:     horizon,
		SecurityID: securityID,
		Style:      style,
		LimitPrice: limitPrice,
	})
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// ExitPosition sells out of an open position and closes the first matching
// open BUY trade for the security ID. One lot per call, in ledger append
// order.
func (e *Executor) ExitPosition(securityID string) (models.Trade, error) {
	open, err := e.openLot(securityID)
	if err != nil {
		return models.Trade{}, err
	}

	exitPrice := e.lastPrice(securityID)

	var orderID string
	if e.PaperMode() {
		orderID = "MOCK-" + uuid.NewString()[:8]
	} else {
		orderID, err = e.placer.PlaceOrder(broker.OrderTicket{
			SecurityID: securityID,
			Side:       string(models.Sell),
			Quantity:   open.Quantity,
			Style:      string(models.Market),
		})
		if err != nil {
			return models.Trade{}, fmt.Errorf("placing exit order: %w", err)
		}
	}

	trade, err := e.Ledger().CloseTradeBySecurity(securityID, exitPrice, orderID)
	if err != nil {
		return models.Trade{}, fmt.Errorf("closing position %s: %w", securityID, err)
	}
	return trade, nil
}

// openLot returns the first open BUY trade for a security ID, mirroring the
// lot the ledger will close.
func (e *Executor) openLot(securityID string) (models.Trade, error) {
	for _, t := range e.Ledger().OpenTrades() {
		if t.SecurityID == securityID && t.Side == models.Buy {
			return t, nil
		}
	}
	return models.Trade{}, fmt.Errorf("no open position for %s: %w", securityID, ledger.ErrTradeNotFound)
}

// fillPrice picks the recorded fill: the quote for market orders, and for
// limit orders the better of quote and limit for the requested side.
func (e *Executor) fillPrice(securityID string, side models.Side, style models.OrderStyle, limit float64) float64 {
	ltp := e.lastPrice(securityID)
	if style != models.Limit {
		return ltp
	}
	if ltp <= 0 {
		return limit
	}
	if side == models.Buy {
		return min(ltp, limit)
	}
	return max(ltp, limit)
}

// lastPrice fetches one quote; a missing or failed quote is 0, which the
// ledger accepts (simulated fills may lack live prices).
func (e *Executor) lastPrice(securityID string) float64 {
	prices, err := e.quotes.LastPrices([]string{securityID})
	if err != nil {
		e.logger.WithError(err).Warnf("Quote fetch failed for %s", securityID)
		return 0
	}
	return prices[securityID]
}

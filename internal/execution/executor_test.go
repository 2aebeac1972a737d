package execution

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilm88/orbit/internal/broker"
	"github.com/sahilm88/orbit/internal/ledger"
	"github.com/sahilm88/orbit/internal/models"
	"github.com/sahilm88/orbit/internal/securities"
)

// stubResolver resolves a fixed strike map.
type stubResolver struct {
	ids map[string]string // "strike/kind/horizon" -> security ID
}

func (r *stubResolver) Resolve(strike int, kind models.OptionKind, horizon models.Horizon) (string, error) {
	id, ok := r.ids[fmt.Sprintf("%d/%s/%s", strike, kind, horizon)]
	if !ok {
		return "", fmt.Errorf("%d %s (%s): %w", strike, kind, horizon, securities.ErrNotFound)
	}
	return id, nil
}

func (r *stubResolver) Contract(securityID string) (models.Contract, error) {
	return models.Contract{
		SecurityID:    securityID,
		TradingSymbol: "NIFTY-" + securityID,
		Strike:        24050,
		Kind:          models.Call,
	}, nil
}

type stubQuotes struct {
	prices map[string]float64
	err    error
}

func (q *stubQuotes) LastPrices(ids []string) (map[string]float64, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.prices, nil
}

type stubPlacer struct {
	tickets []broker.OrderTicket
	err     error
}

func (p *stubPlacer) PlaceOrder(ticket broker.OrderTicket) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.tickets = append(p.tickets, ticket)
	return fmt.Sprintf("LIVE-%d", len(p.tickets)), nil
}

func newTestExecutor(t *testing.T, paper bool, quotes *stubQuotes, placer broker.OrderPlacer) *Executor {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

	live, err := ledger.New(ledger.Config{
		Mode: ledger.ModeLive, Path: filepath.Join(dir, "live.json"),
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)
	paperLedger, err := ledger.New(ledger.Config{
		Mode: ledger.ModePaper, Path: filepath.Join(dir, "paper.json"),
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	e, err := New(Config{
		Cache: &stubResolver{ids: map[string]string{
			"24050/CALL/current": "41003",
			"24050/PUT/current":  "41004",
		}},
		Live:      live,
		Paper:     paperLedger,
		Quotes:    quotes,
		Placer:    placer,
		PaperMode: paper,
	})
	require.NoError(t, err)
	return e
}

func TestPlaceOrderPaperMode(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"41003": 120.5}}
	e := newTestExecutor(t, true, quotes, nil)

	trade, err := e.PlaceOrder(OrderRequest{
		Strike:   24050,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
		Horizon:  models.HorizonCurrent,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(trade.OrderID, "MOCK-"))
	assert.Equal(t, "41003", trade.SecurityID)
	assert.Equal(t, "NIFTY-41003", trade.Symbol)
	assert.Equal(t, 120.5, trade.Price)
	assert.True(t, trade.IsMock)

	assert.Len(t, e.LedgerFor(ledger.ModePaper).Trades(), 1)
	assert.Empty(t, e.LedgerFor(ledger.ModeLive).Trades(), "paper orders never touch the live ledger")
}

func TestPlaceOrderLiveMode(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"41003": 120.5}}
	placer := &stubPlacer{}
	e := newTestExecutor(t, false, quotes, placer)

	trade, err := e.PlaceOrder(OrderRequest{
		Strike:   24050,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
	})
	require.NoError(t, err)

	assert.Equal(t, "LIVE-1", trade.OrderID)
	assert.False(t, trade.IsMock)
	require.Len(t, placer.tickets, 1)
	assert.Equal(t, "41003", placer.tickets[0].SecurityID)
	assert.Equal(t, "BUY", placer.tickets[0].Side)
	assert.Len(t, e.LedgerFor(ledger.ModeLive).Trades(), 1)
}

func TestPlaceOrderUnknownStrike(t *testing.T) {
	e := newTestExecutor(t, true, &stubQuotes{}, nil)

	_, err := e.PlaceOrder(OrderRequest{
		Strike:   24500,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, securities.ErrNotFound))
	assert.Empty(t, e.Ledger().Trades(), "failed orders are never recorded")
}

func TestPlaceOrderLimitPriceImprovement(t *testing.T) {
	tests := []struct {
		name  string
		side  models.Side
		ltp   float64
		limit float64
		want  float64
	}{
		{"buy fills at better quote", models.Buy, 118, 121, 118},
		{"buy capped at limit", models.Buy, 124, 121, 121},
		{"sell fills at better quote", models.Sell, 124, 121, 124},
		{"sell floored at limit", models.Sell, 118, 121, 121},
		{"no quote falls back to limit", models.Buy, 0, 121, 121},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quotes := &stubQuotes{prices: map[string]float64{"41003": tt.ltp}}
			e := newTestExecutor(t, true, quotes, nil)

			trade, err := e.PlaceOrder(OrderRequest{
				Strike:     24050,
				Kind:       models.Call,
				Side:       tt.side,
				Quantity:   65,
				Style:      models.Limit,
				LimitPrice: tt.limit,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, trade.Price)
			require.NotNil(t, trade.LimitPrice)
			assert.Equal(t, tt.limit, *trade.LimitPrice)
		})
	}
}

func TestPlaceOrderLimitRequiresPrice(t *testing.T) {
	e := newTestExecutor(t, true, &stubQuotes{}, nil)

	_, err := e.PlaceOrder(OrderRequest{
		Strike:   24050,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
		Style:    models.Limit,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidTrade))
}

func TestExitPosition(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]float64{"41003": 120.5}}
	e := newTestExecutor(t, true, quotes, nil)

	_, err := e.PlaceOrder(OrderRequest{
		Strike:   24050,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
	})
	require.NoError(t, err)

	quotes.prices["41003"] = 135.0
	closed, err := e.ExitPosition("41003")
	require.NoError(t, err)

	assert.Equal(t, models.StatusClosed, closed.Status)
	require.NotNil(t, closed.PnL)
	assert.InDelta(t, 942.5, *closed.PnL, 1e-9)
	assert.True(t, strings.HasPrefix(closed.ExitOrderID, "MOCK-"))
}

func TestExitPositionNothingOpen(t *testing.T) {
	e := newTestExecutor(t, true, &stubQuotes{}, nil)

	_, err := e.ExitPosition("41003")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrTradeNotFound))
}

func TestPaperModeToggle(t *testing.T) {
	e := newTestExecutor(t, true, &stubQuotes{}, &stubPlacer{})

	assert.True(t, e.PaperMode())
	assert.Equal(t, ledger.ModePaper, e.Ledger().Mode())

	require.NoError(t, e.SetPaperMode(false))
	assert.Equal(t, ledger.ModeLive, e.Ledger().Mode())

	require.NoError(t, e.SetPaperMode(true))
	assert.Equal(t, ledger.ModePaper, e.Ledger().Mode())
}

func TestLeavingPaperModeNeedsPlacer(t *testing.T) {
	e := newTestExecutor(t, true, &stubQuotes{}, nil)

	err := e.SetPaperMode(false)
	require.Error(t, err)
	assert.True(t, e.PaperMode(), "mode unchanged after refused toggle")
}

func TestQuoteFailureStillRecordsTrade(t *testing.T) {
	quotes := &stubQuotes{err: fmt.Errorf("%w: down", broker.ErrFeedUnavailable)}
	e := newTestExecutor(t, true, quotes, nil)

	trade, err := e.PlaceOrder(OrderRequest{
		Strike:   24050,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
	})
	require.NoError(t, err)
	assert.Zero(t, trade.Price, "missing quote records a zero fill price")
}

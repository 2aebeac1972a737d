// Command integration runs an end-to-end smoke pass over the full data
// layer against the synthetic feed: refresh the cache, resolve a contract,
// place and exit a paper trade, then print the analytics that result. It
// touches no real market data and cleans up its state files.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sahilm88/orbit/internal/analytics"
	"github.com/sahilm88/orbit/internal/execution"
	"github.com/sahilm88/orbit/internal/ledger"
	"github.com/sahilm88/orbit/internal/market"
	"github.com/sahilm88/orbit/internal/mock"
	"github.com/sahilm88/orbit/internal/models"
	"github.com/sahilm88/orbit/internal/securities"
)

func main() {
	fmt.Println("=== Orbit Data Layer - End-to-End Smoke Test ===")
	fmt.Println()

	dir, err := os.MkdirTemp("", "orbit_integration")
	if err != nil {
		log.Fatalf("Failed to create temp dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Warning: failed to clean up %s: %v", dir, err)
		}
	}()

	feed := mock.NewFeed("NIFTY", 50, 65, 24000)

	// Step 1: cache refresh from the feed.
	fmt.Println("Step 1: Refreshing securities cache...")
	cache, err := securities.NewCache(securities.Config{
		Path: filepath.Join(dir, "cache.json"),
		Feed: feed,
		Params: market.Params{
			Underlying:    "NIFTY",
			Family:        "OPTIDX",
			ExpiryWeekday: time.Thursday,
			CutoffHour:    16,
		},
		StrikeInterval: 50,
	})
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}
	if err := cache.Init(); err != nil {
		log.Fatalf("Cache init failed: %v", err)
	}
	status := cache.Status()
	fmt.Printf("  ✓ %d contracts, expiries %s / %s / %s\n\n",
		status.Contracts, status.ExpiryInfo.Current, status.ExpiryInfo.Next, status.ExpiryInfo.Monthly)

	// Step 2: resolution round trip.
	fmt.Println("Step 2: Resolving an ATM contract...")
	atm := cache.ATMStrike(24012.35)
	securityID, err := cache.Resolve(atm, models.Call, models.HorizonCurrent)
	if err != nil {
		log.Fatalf("Resolution failed: %v", err)
	}
	contract, err := cache.Contract(securityID)
	if err != nil {
		log.Fatalf("Contract lookup failed: %v", err)
	}
	fmt.Printf("  ✓ %d CALL (current) -> %s (%s)\n\n", atm, securityID, contract.TradingSymbol)

	// Step 3: paper order through the executor.
	fmt.Println("Step 3: Placing a paper order...")
	paperLedger, err := ledger.New(ledger.Config{
		Mode: ledger.ModePaper,
		Path: filepath.Join(dir, "trades_paper.json"),
	})
	if err != nil {
		log.Fatalf("Failed to open paper ledger: %v", err)
	}
	liveLedger, err := ledger.New(ledger.Config{
		Mode: ledger.ModeLive,
		Path: filepath.Join(dir, "trades_live.json"),
	})
	if err != nil {
		log.Fatalf("Failed to open live ledger: %v", err)
	}
	executor, err := execution.New(execution.Config{
		Cache:     cache,
		Live:      liveLedger,
		Paper:     paperLedger,
		Quotes:    feed,
		Placer:    feed,
		PaperMode: true,
	})
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}

	trade, err := executor.PlaceOrder(execution.OrderRequest{
		Strike:   atm,
		Kind:     models.Call,
		Side:     models.Buy,
		Quantity: 65,
		Horizon:  models.HorizonCurrent,
	})
	if err != nil {
		log.Fatalf("Order failed: %v", err)
	}
	fmt.Printf("  ✓ %s: BUY 65 %s @ %.2f (order %s)\n\n", trade.ID, trade.Symbol, trade.Price, trade.OrderID)

	// Step 4: position aggregation.
	fmt.Println("Step 4: Checking open positions...")
	positions := paperLedger.OpenPositions()
	if len(positions) != 1 {
		log.Fatalf("Expected 1 open position, got %d", len(positions))
	}
	fmt.Printf("  ✓ %s: qty %d @ avg %.2f\n\n", positions[0].SecurityID, positions[0].Quantity, positions[0].EntryPrice)

	// Step 5: exit and realized P/L.
	fmt.Println("Step 5: Exiting the position...")
	closed, err := executor.ExitPosition(trade.SecurityID)
	if err != nil {
		log.Fatalf("Exit failed: %v", err)
	}
	fmt.Printf("  ✓ Closed at %.2f, P/L %.2f\n\n", *closed.ExitPrice, closed.RealizedPnL())

	if remaining := paperLedger.OpenPositions(); len(remaining) != 0 {
		log.Fatalf("Expected no open positions after exit, got %d", len(remaining))
	}

	// Step 6: analytics over the resulting ledger.
	fmt.Println("Step 6: Computing analytics...")
	summary := analytics.Summarize(paperLedger.Trades(), time.Now())
	fmt.Printf("  ✓ %d trades, %d closed, total P/L %.2f, win rate %.1f%%\n",
		summary.TotalTrades, summary.ClosedTrades, summary.TotalPnL, summary.WinRate)
	series := analytics.PnLSeries(paperLedger.Trades(), analytics.PeriodWeek, time.Now())
	fmt.Printf("  ✓ Chart series spans %d day(s)\n\n", len(series.Labels))

	fmt.Println("=== All steps passed ===")
}

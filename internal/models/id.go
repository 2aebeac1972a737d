package models

import (
	"fmt"
	"sync"
	"time"
)

// TradeIDGenerator issues trade IDs with a strictly increasing microsecond
// time component, so IDs stay unique and sortable even when trades are
// recorded faster than the clock resolution.
type TradeIDGenerator struct {
	mu   sync.Mutex
	last time.Time
}

// NewTradeIDGenerator creates a new generator. Each ledger instance owns one.
func NewTradeIDGenerator() *TradeIDGenerator {
	return &TradeIDGenerator{}
}

// Next returns a fresh trade ID of the form T20060102150405123456. The time
// component is bumped by one microsecond whenever now does not advance past
// the previously issued ID.
func (g *TradeIDGenerator) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now = now.Truncate(time.Microsecond)
	if !now.After(g.last) {
		now = g.last.Add(time.Microsecond)
	}
	g.last = now

	return fmt.Sprintf("T%s%06d", now.Format("20060102150405"), now.Nanosecond()/1000)
}

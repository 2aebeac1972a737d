// Package analytics derives P/L summaries and chart series from a ledger's
// trade collection. Everything here is a pure function of its inputs:
// calling twice with the same trades yields identical results.
package analytics

import (
	"sort"
	"time"

	"github.com/sahilm88/orbit/internal/models"
)

// Summary is the headline P/L view for one ledger.
type Summary struct {
	TotalTrades  int     `json:"total_trades"`
	OpenTrades   int     `json:"open_trades"`
	ClosedTrades int     `json:"closed_trades"`
	TodayTrades  int     `json:"today_trades"`
	TotalPnL     float64 `json:"total_pnl"`
	TodayPnL     float64 `json:"today_pnl"`
	WinRate      float64 `json:"win_rate"`
	Winners      int     `json:"winners"`
	Losers       int     `json:"losers"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
}

// Period bounds a chart series to a trailing window of calendar days.
type Period string

const (
	// PeriodWeek keeps the trailing 7 days.
	PeriodWeek Period = "week"
	// PeriodMonth keeps the trailing 30 days.
	PeriodMonth Period = "month"
	// PeriodAll keeps everything.
	PeriodAll Period = "all"
)

// Series is daily realized P/L plus a cumulative sum, aligned by label.
type Series struct {
	Labels     []string  `json:"labels"`
	DailyPnL   []float64 `json:"daily_pnl"`
	Cumulative []float64 `json:"cumulative_pnl"`
}

const dateFormat = "2006-01-02"

// Summarize computes the P/L summary over a trade collection. now supplies
// the calendar date (and location) for the today figures. Rates and
// averages over empty sets are zero, never NaN.
func Summarize(trades []models.Trade, now time.Time) Summary {
	var s Summary
	today := now.Format(dateFormat)

	var winSum, lossSum float64
	for i := range trades {
		t := &trades[i]
		s.TotalTrades++

		onToday := t.Timestamp.In(now.Location()).Format(dateFormat) == today
		if onToday {
			s.TodayTrades++
		}

		switch t.Status {
		case models.StatusOpen:
			s.OpenTrades++
		case models.StatusClosed:
			s.ClosedTrades++
			pnl := t.RealizedPnL()
			s.TotalPnL += pnl
			if onToday {
				s.TodayPnL += pnl
			}
			if pnl > 0 {
				s.Winners++
				winSum += pnl
			} else if pnl < 0 {
				s.Losers++
				lossSum += pnl
			}
		}
	}

	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.Winners) / float64(s.ClosedTrades) * 100
	}
	if s.Winners > 0 {
		s.AvgWin = winSum / float64(s.Winners)
	}
	if s.Losers > 0 {
		s.AvgLoss = lossSum / float64(s.Losers)
	}
	return s
}

// PnLSeries groups closed trades by calendar date, sums realized P/L per
// date and emits ascending labels with daily and cumulative values. period
// trims the series to a trailing window ending at now's date.
func PnLSeries(trades []models.Trade, period Period, now time.Time) Series {
	daily := make(map[string]float64)
	for i := range trades {
		t := &trades[i]
		if t.Status != models.StatusClosed {
			continue
		}
		label := t.Timestamp.In(now.Location()).Format(dateFormat)
		daily[label] += t.RealizedPnL()
	}

	cutoff := ""
	switch period {
	case PeriodWeek:
		cutoff = now.AddDate(0, 0, -7).Format(dateFormat)
	case PeriodMonth:
		cutoff = now.AddDate(0, 0, -30).Format(dateFormat)
	}

	labels := make([]string, 0, len(daily))
	for label := range daily {
		if cutoff != "" && label < cutoff {
			continue
		}
		labels = append(labels, label)
	}
	sort.Strings(labels)

	series := Series{
		Labels:     labels,
		DailyPnL:   make([]float64, len(labels)),
		Cumulative: make([]float64, len(labels)),
	}
	var running float64
	for i, label := range labels {
		series.DailyPnL[i] = daily[label]
		running += daily[label]
		series.Cumulative[i] = running
	}
	return series
}

package market

import (
	"sort"
	"time"
)

// DateFormat is the wire format for expiry dates throughout the data layer.
const DateFormat = "2006-01-02"

// monthlyDayThreshold is the day-of-month at or past which an expiry is
// assumed to be a monthly (month-end) contract.
const monthlyDayThreshold = 24

// SelectHorizons picks the three horizon dates from a sorted ascending list
// of distinct future-or-today expiry dates.
//
// nearest is the earliest date. second is the next earliest, falling back to
// nearest when only one date exists. monthly is the first date whose
// day-of-month is >= 24; when none of the first four dates qualifies, the
// 4th earliest is taken, else monthly falls back to nearest.
//
// This is a heuristic for weekly cycles terminating in a month-end expiry,
// not an authoritative exchange calendar: months where a holiday shifts the
// expiry off its usual weekday can be misclassified.
func SelectHorizons(dates []time.Time) (nearest, second, monthly time.Time) {
	if len(dates) == 0 {
		return
	}

	nearest = dates[0]
	second = nearest
	if len(dates) > 1 {
		second = dates[1]
	}

	monthly = nearest
	for i, d := range dates {
		if d.Day() >= monthlyDayThreshold || (len(dates) > 3 && i == 3) {
			monthly = d
			break
		}
	}
	return nearest, second, monthly
}

// FallbackHorizons computes synthetic horizon dates when no expiry dates can
// be extracted from the feed. nearest is the next occurrence of weekday from
// now (counting today only before cutoffHour), second is a week later, and
// monthly is the last occurrence of weekday in the current month, rolling
// into the next month when that date has already passed.
func FallbackHorizons(now time.Time, weekday time.Weekday, cutoffHour int) (nearest, second, monthly time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	days := (int(weekday) - int(today.Weekday()) + 7) % 7
	if days == 0 && now.Hour() >= cutoffHour {
		days = 7
	}
	nearest = today.AddDate(0, 0, days)
	second = nearest.AddDate(0, 0, 7)

	monthly = lastWeekdayOfMonth(today.Year(), today.Month(), weekday, now.Location())
	if monthly.Before(today) {
		next := today.AddDate(0, 1, 0)
		monthly = lastWeekdayOfMonth(next.Year(), next.Month(), weekday, now.Location())
	}
	return nearest, second, monthly
}

// lastWeekdayOfMonth returns the date of the final occurrence of weekday in
// the given month.
func lastWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, loc *time.Location) time.Time {
	// Day 0 of the next month is the last day of this one.
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	back := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -back)
}

// distinctSortedDates deduplicates and sorts a set of day-granularity dates.
func distinctSortedDates(set map[time.Time]struct{}) []time.Time {
	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

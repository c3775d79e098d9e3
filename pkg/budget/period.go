package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bounds computes the [start, end) window of the period containing now.
// Boundaries are anchored to calendar units in UTC:
//
//   - weekly: Monday 00:00 of the current ISO week
//   - monthly: first instant of the current calendar month
//   - quarterly: first instant of the current quarter (Jan/Apr/Jul/Oct)
//
// The end boundary is the start of the next period, so windows never overlap
// and an entry recorded exactly at a boundary belongs to the later period.
func (p Period) Bounds(now time.Time) (start, end time.Time) {
	now = now.UTC()

	switch p {
	case PeriodWeekly:
		// time.Weekday has Sunday=0; shift so Monday=0.
		offset := (int(now.Weekday()) + 6) % 7
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start = day.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7)

	case PeriodQuarterly:
		quarterMonth := time.Month(((int(now.Month())-1)/3)*3 + 1)
		start = time.Date(now.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 3, 0)

	default:
		// Monthly is the default period.
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	}

	return start, end
}

// forecastEndSpend linearly projects period-end spend from spend so far:
// spent / days_elapsed * days_in_period. Days are fractional; the first
// hours of a period count as one full day to keep early projections sane.
func forecastEndSpend(spent decimal.Decimal, start, end, now time.Time) decimal.Decimal {
	if spent.IsZero() {
		return decimal.Zero
	}

	daysInPeriod := end.Sub(start).Hours() / 24
	daysElapsed := now.Sub(start).Hours() / 24
	if daysElapsed < 1 {
		daysElapsed = 1
	}

	ratio := decimal.NewFromFloat(daysInPeriod / daysElapsed)
	return spent.Mul(ratio).Round(6)
}

// daysRemaining returns the number of whole days left in the period,
// rounding partial days up so "ends tomorrow morning" reports one day.
func daysRemaining(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left.Hours() / 24)
	if left.Hours() > float64(days)*24 {
		days++
	}
	return days
}

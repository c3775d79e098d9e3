package budget

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPeriodBounds(t *testing.T) {
	tests := []struct {
		name      string
		period    Period
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "monthly mid-month",
			period:    PeriodMonthly,
			now:       time.Date(2026, 8, 23, 15, 4, 5, 0, time.UTC),
			wantStart: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monthly first instant",
			period:    PeriodMonthly,
			now:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monthly december rolls into january",
			period:    PeriodMonthly,
			now:       time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
			wantStart: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "weekly anchors to monday",
			period:    PeriodWeekly,
			now:       time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC), // a Sunday
			wantStart: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "weekly on monday starts same day",
			period:    PeriodWeekly,
			now:       time.Date(2026, 8, 17, 0, 30, 0, 0, time.UTC),
			wantStart: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "quarterly third quarter",
			period:    PeriodQuarterly,
			now:       time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "quarterly fourth quarter rolls into next year",
			period:    PeriodQuarterly,
			now:       time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.period.Bounds(tt.now)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestPeriodBoundsNonUTCInput(t *testing.T) {
	// 2026-08-31 22:00 in UTC-5 is 2026-09-01 03:00 UTC, so the period is
	// September, not August.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 8, 31, 22, 0, 0, 0, loc)

	start, _ := PeriodMonthly.Bounds(now)
	want := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestForecastEndSpend(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		spent string
		now   time.Time
		want  string
	}{
		{
			name:  "zero spend projects zero",
			spent: "0",
			now:   time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
			want:  "0",
		},
		{
			name:  "halfway through august doubles the spend",
			spent: "50",
			now:   start.Add(15*24*time.Hour + 12*time.Hour), // 15.5 of 31 days
			want:  "100",
		},
		{
			name:  "first hours count as one full day",
			spent: "10",
			now:   start.Add(2 * time.Hour),
			want:  "310",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := forecastEndSpend(decimal.RequireFromString(tt.spent), start, end, tt.now)
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("forecastEndSpend = %s, want %s", got, want)
			}
		})
	}
}

func TestDaysRemaining(t *testing.T) {
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"ten days left", time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC), 10},
		{"partial day rounds up", time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC), 1},
		{"period over", time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC), 0},
		{"exactly at boundary", end, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysRemaining(end, tt.now); got != tt.want {
				t.Errorf("daysRemaining = %d, want %d", got, tt.want)
			}
		})
	}
}

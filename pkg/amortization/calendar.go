package amortization

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// factorPlaces bounds the scale of the compounding factor (1+r)^n.
const factorPlaces = 32

var (
	one           = decimal.NewFromInt(1)
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
)

// monthIndex maps a date to a comparable (year, month) ordinal.
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func monthStart(index int, loc *time.Location) time.Time {
	return time.Date(index/12, time.Month(index%12+1), 1, 0, 0, 0, 0, loc)
}

// addMonths moves t forward n calendar months, clamping the day to the end of
// the target month so Jan 31 + 1 month is Feb 28/29 rather than early March.
func addMonths(t time.Time, n int) time.Time {
	first := monthStart(monthIndex(t)+n, t.Location())
	day := t.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// MonthlyRate converts an annual percentage rate into a monthly fraction.
func MonthlyRate(annualRatePct decimal.Decimal) decimal.Decimal {
	return annualRatePct.Div(hundred).Div(monthsPerYear)
}

func invariant(ok bool, format string, args ...any) {
	if !ok {
		panic(fmt.Sprintf("amortization: "+format, args...))
	}
}

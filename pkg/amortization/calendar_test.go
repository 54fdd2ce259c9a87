package amortization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		from time.Time
		n    int
		want time.Time
	}{
		{date(2024, 1, 15), 1, date(2024, 2, 15)},
		{date(2024, 1, 31), 1, date(2024, 2, 29)},
		{date(2023, 1, 31), 1, date(2023, 2, 28)},
		{date(2024, 3, 31), 1, date(2024, 4, 30)},
		{date(2024, 11, 30), 2, date(2025, 1, 30)},
		{date(2024, 5, 10), 0, date(2024, 5, 10)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, addMonths(tt.from, tt.n), "%s + %d", tt.from.Format("2006-01-02"), tt.n)
	}
}

func TestMonthIndex(t *testing.T) {
	assert.Equal(t, monthIndex(date(2024, 2, 1)), monthIndex(date(2024, 2, 29)))
	assert.NotEqual(t, monthIndex(date(2024, 2, 1)), monthIndex(date(2025, 2, 1)))
	assert.Equal(t, monthIndex(date(2024, 12, 31))+1, monthIndex(date(2025, 1, 1)))
	assert.Equal(t, date(2025, 1, 1), monthStart(monthIndex(date(2025, 1, 20)), time.UTC))
}

func TestMonthlyRate(t *testing.T) {
	assertDec(t, "0.01", MonthlyRate(dec("12")))
	assertDec(t, "0.02", MonthlyRate(dec("24")))
	assertDec(t, "0", MonthlyRate(dec("0")))
}

package amortization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func assertNear(t *testing.T, want float64, got decimal.Decimal, delta float64) {
	t.Helper()
	assert.InDelta(t, want, got.InexactFloat64(), delta)
}

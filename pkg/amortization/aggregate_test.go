package amortization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/loanbook/pkg/models"
)

func bucketFor(t *testing.T, buckets []MonthBucket, year int, month time.Month) MonthBucket {
	t.Helper()
	for _, b := range buckets {
		if b.Year == year && b.Month == month {
			return b
		}
	}
	t.Fatalf("no bucket for %d-%02d", year, month)
	return MonthBucket{}
}

func TestAggregateMonthly_Personal(t *testing.T) {
	a := personalLoan("12000", "12", 12, date(2024, 1, 1))
	b := personalLoan("6000", "0", 6, date(2024, 3, 15))
	loans := []*models.Loan{a, b, goldLoan("1000", "12", date(2024, 1, 1))}

	buckets, err := AggregateMonthly(loans, models.LoanTypePersonal, date(2024, 4, 10))
	require.NoError(t, err)
	require.Len(t, buckets, 12)

	assert.Equal(t, 2024, buckets[0].Year)
	assert.Equal(t, time.January, buckets[0].Month)
	assert.Equal(t, time.December, buckets[11].Month)

	march := bucketFor(t, buckets, 2024, time.March)
	require.Len(t, march.Loans, 2)
	emiA := PersonalSchedule(a).EMI
	assert.True(t, march.EMI.Equal(emiA.Add(dec("1000"))), "march emi %s", march.EMI)
	assert.Equal(t, 2, march.ActiveLoans())

	august := bucketFor(t, buckets, 2024, time.August)
	require.Len(t, august.Loans, 2)
	assert.Equal(t, 1, august.ActiveLoans())

	september := bucketFor(t, buckets, 2024, time.September)
	require.Len(t, september.Loans, 1)
	assert.Equal(t, a.ID, september.Loans[0].LoanID)

	for _, bucket := range buckets {
		assert.Equal(t, bucket.Month == time.April, bucket.IsCurrentMonth, "%s", bucket.Month)

		sum := decimal.Zero
		for _, l := range bucket.Loans {
			sum = sum.Add(l.Outstanding)
		}
		assert.True(t, sum.Equal(bucket.Outstanding))
	}

	first := bucketFor(t, buckets, 2024, time.January).Loans[0]
	assertDec(t, "12000", first.PreviousOutstanding)
}

func TestAggregateMonthly_Gold(t *testing.T) {
	loans := []*models.Loan{
		goldLoan("50000", "24", date(2024, 1, 1)),
		goldLoan("20000", "24", date(2024, 3, 20)),
	}

	buckets, err := AggregateMonthly(loans, models.LoanTypeGold, date(2024, 4, 1))
	require.NoError(t, err)
	require.Len(t, buckets, 4)

	assert.Len(t, buckets[0].Loans, 1)
	assert.Len(t, buckets[2].Loans, 2)

	current, ok := CurrentBucket(buckets)
	require.True(t, ok)
	assert.Equal(t, time.April, current.Month)
	assertDec(t, "74800", current.TotalOutstanding)
	assertDec(t, "70000", current.Outstanding)
	assertDec(t, "1400", current.Interest)
	assert.Equal(t, 2, current.ActiveLoans())
}

func TestAggregateMonthly_Idempotent(t *testing.T) {
	loans := []*models.Loan{
		personalLoan("12000", "12", 12, date(2024, 1, 1)),
		personalLoan("9000", "9", 9, date(2024, 2, 29)),
	}
	asOf := date(2024, 5, 1)

	first, err := AggregateMonthly(loans, models.LoanTypePersonal, asOf)
	require.NoError(t, err)
	second, err := AggregateMonthly(loans, models.LoanTypePersonal, asOf)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateMonthly_CreditCardRejected(t *testing.T) {
	_, err := AggregateMonthly([]*models.Loan{creditCard("10")}, models.LoanTypeCreditCard, date(2024, 1, 1))
	assert.ErrorIs(t, err, ErrNotAggregatable)
}

func TestCurrentBucket(t *testing.T) {
	_, ok := CurrentBucket(nil)
	assert.False(t, ok)

	loans := []*models.Loan{personalLoan("1200", "0", 3, date(2024, 1, 1))}
	buckets, err := AggregateMonthly(loans, models.LoanTypePersonal, date(2030, 1, 1))
	require.NoError(t, err)

	current, ok := CurrentBucket(buckets)
	require.True(t, ok)
	assert.False(t, current.IsCurrentMonth)
	assert.Equal(t, time.March, current.Month)
}

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/loanbook/pkg/models"
)

func TestSchedule_Personal(t *testing.T) {
	f := newFixture(t)
	loan := f.personal(t, "120000", "12", 12, day(2024, 1, 1))

	view, err := f.ledger.Schedule(context.Background(), loan.ID, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, day(2024, 6, 15), view.AsOf)
	require.NotNil(t, view.FixedTerm)
	assert.Len(t, view.FixedTerm.Rows, 12)
	assert.InDelta(t, 10661.85, view.FixedTerm.EMI.InexactFloat64(), 0.01)
	assert.Nil(t, view.OpenEnded)
	assert.Nil(t, view.Transactions)
	assert.True(t, view.CurrentOutstanding.Equal(view.FixedTerm.Rows[5].RemainingPrincipal))
}

func TestSchedule_CreditCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.card(t, "1000")

	_, err := f.ledger.AddSpent(ctx, card.ID, event("200", day(2024, 1, 5)))
	require.NoError(t, err)
	_, err = f.ledger.AddPayment(ctx, card.ID, event("500", day(2024, 1, 10)))
	require.NoError(t, err)

	view, err := f.ledger.Schedule(ctx, card.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, view.Transactions, 2)
	assert.True(t, view.Transactions[0].Outstanding.Equal(d("1200")))
	assert.True(t, view.Transactions[1].Outstanding.Equal(d("700")))
	assert.True(t, view.CurrentOutstanding.Equal(d("700")))
}

func TestSchedule_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Schedule(context.Background(), uuid.New(), time.Time{})
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func TestOutstandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gold(t, "50000", "24", day(2024, 1, 1))
	f.gold(t, "20000", "24", day(2024, 3, 20))
	f.personal(t, "1200", "0", 12, day(2024, 1, 1))

	view, err := f.ledger.Outstandings(ctx, models.LoanTypeGold, day(2024, 4, 1))
	require.NoError(t, err)
	require.Len(t, view.Buckets, 4)
	require.NotNil(t, view.Current)
	assert.Equal(t, time.April, view.Current.Month)
	assert.True(t, view.Current.TotalOutstanding.Equal(d("74800")))

	personal, err := f.ledger.Outstandings(ctx, models.LoanTypePersonal, time.Time{})
	require.NoError(t, err)
	assert.Len(t, personal.Buckets, 12)
	assert.Equal(t, time.June, personal.Current.Month)

	_, err = f.ledger.Outstandings(ctx, models.LoanTypeCreditCard, time.Time{})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = f.ledger.Outstandings(ctx, "boat", time.Time{})
	assert.Equal(t, []string{"type"}, validationFields(t, err))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gold(t, "50000", "24", day(2024, 1, 1))
	f.card(t, "300")

	sum, err := f.ledger.Summary(ctx, day(2024, 4, 1))
	require.NoError(t, err)
	require.Len(t, sum.Types, 3)
	assert.True(t, sum.TotalOutstanding.Equal(d("54300")))
	assert.Equal(t, 1, sum.Types[1].Active)
}

func TestQuoteEMI(t *testing.T) {
	f := newFixture(t)

	quote, err := f.ledger.QuoteEMI(d("120000"), d("12"), 12)
	require.NoError(t, err)
	assert.InDelta(t, 10661.85, quote.EMI.InexactFloat64(), 0.01)
	assert.InDelta(t, 7942.25, quote.TotalInterest.InexactFloat64(), 0.05)
	assert.True(t, quote.TotalPayment.Equal(quote.Amount.Add(quote.TotalInterest)))

	zero, err := f.ledger.QuoteEMI(d("1200"), d("0"), 12)
	require.NoError(t, err)
	assert.True(t, zero.EMI.Equal(d("100")))
	assert.True(t, zero.TotalInterest.IsZero())

	_, err = f.ledger.QuoteEMI(d("0"), d("-1"), 0)
	assert.ElementsMatch(t, []string{"amount", "rate", "term"}, validationFields(t, err))
}

package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

// OpenEndedRow is one month of a gold-loan interest-accrual schedule. All
// balances are taken after that month's allocations.
type OpenEndedRow struct {
	Month                   int             `json:"month"`
	Date                    time.Time       `json:"date"`
	MonthlyInterest         decimal.Decimal `json:"monthly_interest"`
	AccumulatedInterest     decimal.Decimal `json:"accumulated_interest"`
	Payment                 decimal.Decimal `json:"payment"`
	Prepayment              decimal.Decimal `json:"prepayment"`
	InterestFromPrepayment  decimal.Decimal `json:"interest_from_prepayment"`
	PrincipalFromPrepayment decimal.Decimal `json:"principal_from_prepayment"`
	InterestFromPayment     decimal.Decimal `json:"interest_from_payment"`
	PrincipalFromPayment    decimal.Decimal `json:"principal_from_payment"`
	OutstandingPrincipal    decimal.Decimal `json:"outstanding_principal"`
	TotalOutstanding        decimal.Decimal `json:"total_outstanding"`
	IsCurrentMonth          bool            `json:"is_current_month"`
}

// OpenEnded builds the gold-loan schedule from startDate's month through
// asOf's month inclusive. Interest accrues monthly on the outstanding
// principal; each month's prepayments and then its payments retire
// accumulated interest before principal. The schedule never stops early:
// months after the principal is retired are still emitted.
func OpenEnded(principal, annualRatePct decimal.Decimal, startDate, asOf time.Time, payments []models.Payment, prepayments []models.Prepayment) []OpenEndedRow {
	invariant(!principal.IsNegative(), "negative principal %s", principal)
	invariant(!annualRatePct.IsNegative(), "negative interest rate %s", annualRatePct)

	first, last := monthIndex(startDate), monthIndex(asOf)
	if last < first {
		return nil
	}

	r := MonthlyRate(annualRatePct)
	paid := paymentsByMonth(payments)
	extra := prepaymentsByMonth(prepayments)

	rows := make([]OpenEndedRow, 0, last-first+1)
	outstanding := principal
	accrued := decimal.Zero
	for idx := first; idx <= last; idx++ {
		interest := outstanding.Mul(r)
		accrued = accrued.Add(interest)

		row := OpenEndedRow{
			Month:           idx - first + 1,
			Date:            monthStart(idx, startDate.Location()),
			MonthlyInterest: interest,
			Payment:         paid[idx],
			Prepayment:      extra[idx],
			IsCurrentMonth:  idx == last,
		}
		row.InterestFromPrepayment, row.PrincipalFromPrepayment = allocate(row.Prepayment, &accrued, &outstanding)
		row.InterestFromPayment, row.PrincipalFromPayment = allocate(row.Payment, &accrued, &outstanding)

		row.AccumulatedInterest = accrued
		row.OutstandingPrincipal = outstanding
		row.TotalOutstanding = outstanding.Add(accrued)
		rows = append(rows, row)
	}
	return rows
}

// allocate applies amount to accrued interest first and the remainder to
// principal, flooring principal at zero.
func allocate(amount decimal.Decimal, accrued, principal *decimal.Decimal) (toInterest, toPrincipal decimal.Decimal) {
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	toInterest = decimal.Zero
	if accrued.IsPositive() {
		toInterest = decimal.Min(amount, *accrued)
		*accrued = accrued.Sub(toInterest)
	}
	toPrincipal = amount.Sub(toInterest)
	*principal = decimal.Max(decimal.Zero, principal.Sub(toPrincipal))
	return toInterest, toPrincipal
}

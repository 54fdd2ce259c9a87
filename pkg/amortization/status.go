package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

// PersonalSchedule runs FixedTerm over a loan record.
func PersonalSchedule(loan *models.Loan) FixedTermSchedule {
	return FixedTerm(loan.Amount, loan.InterestRate, loan.Term, loan.StartDate, loan.Prepayments)
}

// GoldSchedule runs OpenEnded over a loan record up to asOf.
func GoldSchedule(loan *models.Loan, asOf time.Time) []OpenEndedRow {
	return OpenEnded(loan.Amount, loan.InterestRate, loan.StartDate, asOf, loan.Payments, loan.Prepayments)
}

// CurrentOutstanding is what the loan owes as of asOf: remaining principal for
// personal loans, principal plus unpaid interest for gold loans and the
// revolving balance for credit cards.
func CurrentOutstanding(loan *models.Loan, asOf time.Time) decimal.Decimal {
	switch loan.LoanType {
	case models.LoanTypePersonal:
		return PersonalSchedule(loan).RemainingAt(loan.Amount, asOf)
	case models.LoanTypeGold:
		rows := GoldSchedule(loan, asOf)
		if len(rows) == 0 {
			return loan.Amount
		}
		return rows[len(rows)-1].TotalOutstanding
	case models.LoanTypeCreditCard:
		return loan.Outstanding
	}
	invariant(false, "unknown loan type %q", loan.LoanType)
	return decimal.Zero
}

// IsPaidOff applies the single paid-off rule for every loan type.
func IsPaidOff(loan *models.Loan, asOf time.Time) bool {
	switch loan.LoanType {
	case models.LoanTypePersonal:
		return PersonalSchedule(loan).PaidOffBy(asOf)
	case models.LoanTypeGold:
		rows := GoldSchedule(loan, asOf)
		return len(rows) > 0 && rows[len(rows)-1].TotalOutstanding.IsZero()
	case models.LoanTypeCreditCard:
		return loan.Outstanding.IsZero()
	}
	invariant(false, "unknown loan type %q", loan.LoanType)
	return false
}

// Status derives the loan status from its events. A loan that is not paid off
// stays defaulted if it was marked so, otherwise it is active.
func Status(loan *models.Loan, asOf time.Time) models.Status {
	if IsPaidOff(loan, asOf) {
		return models.StatusPaid
	}
	if loan.Status == models.StatusDefaulted {
		return models.StatusDefaulted
	}
	return models.StatusActive
}

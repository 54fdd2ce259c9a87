package amortization

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

// FixedTermRow is one month of a personal-loan amortization table.
type FixedTermRow struct {
	Month              int             `json:"month"`
	Date               time.Time       `json:"date"`
	EMI                decimal.Decimal `json:"emi"`
	Principal          decimal.Decimal `json:"principal"`
	Interest           decimal.Decimal `json:"interest"`
	Prepayment         decimal.Decimal `json:"prepayment"`
	RemainingPrincipal decimal.Decimal `json:"remaining_principal"`
}

// FixedTermSchedule is the full amortization table with its interest summary.
// ScheduledInterest is what the loan would cost without prepayments;
// InterestSaved is the difference to the interest actually charged.
type FixedTermSchedule struct {
	EMI               decimal.Decimal `json:"emi"`
	Rows              []FixedTermRow  `json:"rows"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	ScheduledInterest decimal.Decimal `json:"scheduled_interest"`
	InterestSaved     decimal.Decimal `json:"interest_saved"`
	TotalPrepayment   decimal.Decimal `json:"total_prepayment"`
}

// EMI returns the level monthly installment that retires principal over
// termMonths at the given annual rate:
//
//	r   = annualRatePct / 100 / 12
//	emi = P * r * (1+r)^n / ((1+r)^n - 1)
//
// A zero rate (or one too small to move (1+r)^n away from 1) degrades to P/n.
// For very large (1+r)^n the installment tends to P*r.
func EMI(principal, annualRatePct decimal.Decimal, termMonths int) decimal.Decimal {
	invariant(termMonths >= 1 && termMonths <= math.MaxInt32, "term must be between 1 and %d months, got %d", math.MaxInt32, termMonths)
	invariant(!principal.IsNegative(), "negative principal %s", principal)
	invariant(!annualRatePct.IsNegative(), "negative interest rate %s", annualRatePct)

	n := decimal.NewFromInt(int64(termMonths))
	r := MonthlyRate(annualRatePct)
	if r.IsZero() {
		return principal.Div(n)
	}

	factor, err := one.Add(r).PowInt32(int32(termMonths))
	invariant(err == nil, "compounding %s over %d months: %v", r, termMonths, err)
	factor = factor.Round(factorPlaces)
	growth := factor.Sub(one)
	if !growth.IsPositive() {
		return principal.Div(n)
	}
	return principal.Mul(r).Mul(factor).Div(growth)
}

// FixedTerm builds the month-by-month schedule of a personal loan.
//
// Each month charges interest on the remaining principal. When the remaining
// principal plus that interest fits inside one EMI, or the term's last month is
// reached, the row closes the loan exactly and iteration stops. Otherwise the
// EMI's principal portion and any prepayments dated in the same calendar month
// reduce the principal, floored at zero; reaching zero also stops iteration.
func FixedTerm(principal, annualRatePct decimal.Decimal, termMonths int, startDate time.Time, prepayments []models.Prepayment) FixedTermSchedule {
	emi := EMI(principal, annualRatePct, termMonths)
	r := MonthlyRate(annualRatePct)
	extra := prepaymentsByMonth(prepayments)

	sched := FixedTermSchedule{
		EMI:               emi,
		Rows:              make([]FixedTermRow, 0, termMonths),
		TotalInterest:     decimal.Zero,
		ScheduledInterest: emi.Mul(decimal.NewFromInt(int64(termMonths))).Sub(principal),
		TotalPrepayment:   decimal.Zero,
	}
	if sched.ScheduledInterest.IsNegative() {
		sched.ScheduledInterest = decimal.Zero
	}

	remaining := principal
	for month := 1; month <= termMonths && remaining.IsPositive(); month++ {
		date := addMonths(startDate, month-1)
		interest := remaining.Mul(r)
		row := FixedTermRow{
			Month:      month,
			Date:       date,
			Interest:   interest,
			Prepayment: extra[monthIndex(date)],
		}

		if month == termMonths || remaining.Add(interest).LessThanOrEqual(emi) {
			row.EMI = remaining.Add(interest)
			row.Principal = remaining
			remaining = decimal.Zero
		} else {
			row.EMI = emi
			row.Principal = emi.Sub(interest)
			remaining = decimal.Max(decimal.Zero, remaining.Sub(row.Principal).Sub(row.Prepayment))
		}
		row.RemainingPrincipal = remaining

		sched.Rows = append(sched.Rows, row)
		sched.TotalInterest = sched.TotalInterest.Add(interest)
		sched.TotalPrepayment = sched.TotalPrepayment.Add(row.Prepayment)
	}

	sched.InterestSaved = sched.ScheduledInterest.Sub(sched.TotalInterest)
	return sched
}

// WithinTerm reports whether date falls in one of the term's installment
// months, the only months in which FixedTerm applies a prepayment.
func WithinTerm(startDate time.Time, termMonths int, date time.Time) bool {
	first, k := monthIndex(startDate), monthIndex(date)
	return k >= first && k < first+termMonths
}

// RemainingAt returns the principal still owed at the end of asOf's month.
// Months before the schedule starts report the full principal.
func (s FixedTermSchedule) RemainingAt(principal decimal.Decimal, asOf time.Time) decimal.Decimal {
	remaining := principal
	for _, row := range s.Rows {
		if monthIndex(row.Date) > monthIndex(asOf) {
			break
		}
		remaining = row.RemainingPrincipal
	}
	return remaining
}

// PaidOffBy reports whether the closing row falls in or before asOf's month.
func (s FixedTermSchedule) PaidOffBy(asOf time.Time) bool {
	if len(s.Rows) == 0 {
		return true
	}
	last := s.Rows[len(s.Rows)-1]
	return last.RemainingPrincipal.IsZero() && monthIndex(last.Date) <= monthIndex(asOf)
}

func prepaymentsByMonth(prepayments []models.Prepayment) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(prepayments))
	for _, p := range prepayments {
		k := monthIndex(p.Date)
		out[k] = out[k].Add(p.Amount)
	}
	return out
}

func paymentsByMonth(payments []models.Payment) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(payments))
	for _, p := range payments {
		k := monthIndex(p.Date)
		out[k] = out[k].Add(p.Amount)
	}
	return out
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/amortization"
	"github.com/mcclellann/loanbook/pkg/models"
)

// ScheduleView is the type-appropriate derived view of one loan. Exactly one
// of FixedTerm, OpenEnded or Transactions is set.
type ScheduleView struct {
	Loan               *models.Loan                    `json:"loan"`
	AsOf               time.Time                       `json:"as_of"`
	CurrentOutstanding decimal.Decimal                 `json:"current_outstanding"`
	FixedTerm          *amortization.FixedTermSchedule `json:"fixed_term,omitempty"`
	OpenEnded          []amortization.OpenEndedRow     `json:"open_ended,omitempty"`
	Transactions       []amortization.TransactionRow   `json:"transactions,omitempty"`
}

// OutstandingsView is the month-by-month roll-up of every loan of one type.
type OutstandingsView struct {
	LoanType models.LoanType            `json:"loan_type"`
	AsOf     time.Time                  `json:"as_of"`
	Buckets  []amortization.MonthBucket `json:"buckets"`
	Current  *amortization.MonthBucket  `json:"current,omitempty"`
}

// EMIQuote previews a personal loan before it is created.
type EMIQuote struct {
	Amount        decimal.Decimal `json:"amount"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	Term          int             `json:"term"`
	EMI           decimal.Decimal `json:"emi"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalPayment  decimal.Decimal `json:"total_payment"`
}

// asOfOrToday normalizes an optional evaluation date.
func (l *Ledger) asOfOrToday(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return l.today()
	}
	return civilDate(asOf)
}

// Schedule computes the loan's schedule as of asOf (today when zero).
func (l *Ledger) Schedule(ctx context.Context, id uuid.UUID, asOf time.Time) (*ScheduleView, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { l.metrics.ObserveView("schedule_"+string(loan.LoanType), time.Since(start)) }()

	asOf = l.asOfOrToday(asOf)
	loan.Status = amortization.Status(loan, asOf)
	view := &ScheduleView{
		Loan:               loan,
		AsOf:               asOf,
		CurrentOutstanding: amortization.CurrentOutstanding(loan, asOf),
	}
	switch loan.LoanType {
	case models.LoanTypePersonal:
		sched := amortization.PersonalSchedule(loan)
		view.FixedTerm = &sched
	case models.LoanTypeGold:
		view.OpenEnded = amortization.GoldSchedule(loan, asOf)
	case models.LoanTypeCreditCard:
		view.Transactions = amortization.ReconstructHistory(loan.Outstanding, loan.SpentHistory, loan.Payments)
	}
	return view, nil
}

// Outstandings aggregates every personal or gold loan into calendar-month
// buckets as of asOf (today when zero).
func (l *Ledger) Outstandings(ctx context.Context, loanType models.LoanType, asOf time.Time) (*OutstandingsView, error) {
	if !loanType.Valid() {
		return nil, ValidationErrors{{Field: "type", Constraint: "must be one of personal, gold, creditCard"}}
	}
	loans, err := l.storage.GetAllLoans(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { l.metrics.ObserveView("outstandings_"+string(loanType), time.Since(start)) }()

	asOf = l.asOfOrToday(asOf)
	buckets, err := amortization.AggregateMonthly(loans, loanType, asOf)
	if errors.Is(err, amortization.ErrNotAggregatable) {
		return nil, fmt.Errorf("%w: %s has no monthly schedule", ErrTypeMismatch, loanType)
	}
	if err != nil {
		return nil, err
	}

	view := &OutstandingsView{LoanType: loanType, AsOf: asOf, Buckets: buckets}
	if current, ok := amortization.CurrentBucket(buckets); ok {
		view.Current = &current
	}
	return view, nil
}

// Summary totals current outstanding balances per loan type as of asOf
// (today when zero).
func (l *Ledger) Summary(ctx context.Context, asOf time.Time) (amortization.Summary, error) {
	loans, err := l.storage.GetAllLoans(ctx)
	if err != nil {
		return amortization.Summary{}, err
	}
	start := time.Now()
	defer func() { l.metrics.ObserveView("summary", time.Since(start)) }()

	return amortization.Summarize(loans, l.asOfOrToday(asOf)), nil
}

// QuoteEMI runs the same schedule a new personal loan would get, without
// storing anything.
func (l *Ledger) QuoteEMI(amount, interestRate decimal.Decimal, term int) (*EMIQuote, error) {
	var errs ValidationErrors
	if !amount.IsPositive() {
		errs.add("amount", "must be greater than 0")
	}
	if interestRate.IsNegative() {
		errs.add("rate", "must be 0 or greater")
	}
	if term < 1 || term > maxTermMonths {
		errs.add("term", fmt.Sprintf("must be between 1 and %d months", maxTermMonths))
	}
	if err := errs.orNil(); err != nil {
		return nil, err
	}

	sched := amortization.FixedTerm(amount, interestRate, term, l.today(), nil)
	return &EMIQuote{
		Amount:        amount,
		InterestRate:  interestRate,
		Term:          term,
		EMI:           sched.EMI,
		TotalInterest: sched.TotalInterest,
		TotalPayment:  amount.Add(sched.TotalInterest),
	}, nil
}

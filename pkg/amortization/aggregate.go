package amortization

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

// ErrNotAggregatable is returned for loan types without a monthly schedule.
var ErrNotAggregatable = errors.New("loan type has no monthly schedule")

// LoanMonth is a single loan's contribution to a monthly bucket.
type LoanMonth struct {
	LoanID                    uuid.UUID       `json:"loan_id"`
	BorrowerName              string          `json:"borrower_name"`
	PreviousOutstanding       decimal.Decimal `json:"previous_outstanding"`
	Outstanding               decimal.Decimal `json:"outstanding"`
	TotalOutstanding          decimal.Decimal `json:"total_outstanding"`
	EMI                       decimal.Decimal `json:"emi"`
	Principal                 decimal.Decimal `json:"principal"`
	Interest                  decimal.Decimal `json:"interest"`
	AccumulatedInterest       decimal.Decimal `json:"accumulated_interest"`
	Payment                   decimal.Decimal `json:"payment"`
	Prepayment                decimal.Decimal `json:"prepayment"`
	InterestPaidByPrepayment  decimal.Decimal `json:"interest_paid_by_prepayment"`
	PrincipalPaidByPrepayment decimal.Decimal `json:"principal_paid_by_prepayment"`
}

// MonthBucket sums every loan's row for one calendar month.
type MonthBucket struct {
	Year                      int             `json:"year"`
	Month                     time.Month      `json:"month"`
	IsCurrentMonth            bool            `json:"is_current_month"`
	Outstanding               decimal.Decimal `json:"outstanding"`
	TotalOutstanding          decimal.Decimal `json:"total_outstanding"`
	EMI                       decimal.Decimal `json:"emi"`
	Principal                 decimal.Decimal `json:"principal"`
	Interest                  decimal.Decimal `json:"interest"`
	AccumulatedInterest       decimal.Decimal `json:"accumulated_interest"`
	Payment                   decimal.Decimal `json:"payment"`
	Prepayment                decimal.Decimal `json:"prepayment"`
	InterestPaidByPrepayment  decimal.Decimal `json:"interest_paid_by_prepayment"`
	PrincipalPaidByPrepayment decimal.Decimal `json:"principal_paid_by_prepayment"`
	Loans                     []LoanMonth     `json:"loans"`
}

// ActiveLoans counts the loans still owing something at the end of the month.
func (b MonthBucket) ActiveLoans() int {
	n := 0
	for _, l := range b.Loans {
		if l.TotalOutstanding.IsPositive() {
			n++
		}
	}
	return n
}

func (b *MonthBucket) add(m LoanMonth) {
	b.Outstanding = b.Outstanding.Add(m.Outstanding)
	b.TotalOutstanding = b.TotalOutstanding.Add(m.TotalOutstanding)
	b.EMI = b.EMI.Add(m.EMI)
	b.Principal = b.Principal.Add(m.Principal)
	b.Interest = b.Interest.Add(m.Interest)
	b.AccumulatedInterest = b.AccumulatedInterest.Add(m.AccumulatedInterest)
	b.Payment = b.Payment.Add(m.Payment)
	b.Prepayment = b.Prepayment.Add(m.Prepayment)
	b.InterestPaidByPrepayment = b.InterestPaidByPrepayment.Add(m.InterestPaidByPrepayment)
	b.PrincipalPaidByPrepayment = b.PrincipalPaidByPrepayment.Add(m.PrincipalPaidByPrepayment)
	b.Loans = append(b.Loans, m)
}

// AggregateMonthly folds the schedules of every loan of loanType into
// calendar-month buckets sorted oldest first. Loans of other types are
// skipped. Personal loans contribute their whole term; gold loans contribute
// the months from their start through asOf. IsCurrentMonth is derived from
// asOf on every call.
func AggregateMonthly(loans []*models.Loan, loanType models.LoanType, asOf time.Time) ([]MonthBucket, error) {
	if loanType != models.LoanTypePersonal && loanType != models.LoanTypeGold {
		return nil, fmt.Errorf("%w: %s", ErrNotAggregatable, loanType)
	}

	buckets := make(map[int]*MonthBucket)
	bucket := func(date time.Time) *MonthBucket {
		k := monthIndex(date)
		b, ok := buckets[k]
		if !ok {
			b = &MonthBucket{
				Year:           date.Year(),
				Month:          date.Month(),
				IsCurrentMonth: k == monthIndex(asOf),
			}
			buckets[k] = b
		}
		return b
	}

	for _, loan := range loans {
		if loan.LoanType != loanType {
			continue
		}
		switch loanType {
		case models.LoanTypePersonal:
			previous := loan.Amount
			for _, row := range PersonalSchedule(loan).Rows {
				bucket(row.Date).add(LoanMonth{
					LoanID:              loan.ID,
					BorrowerName:        loan.BorrowerName,
					PreviousOutstanding: previous,
					Outstanding:         row.RemainingPrincipal,
					TotalOutstanding:    row.RemainingPrincipal,
					EMI:                 row.EMI,
					Principal:           row.Principal,
					Interest:            row.Interest,
					Prepayment:          row.Prepayment,
				})
				previous = row.RemainingPrincipal
			}
		case models.LoanTypeGold:
			previous := loan.Amount
			for _, row := range GoldSchedule(loan, asOf) {
				bucket(row.Date).add(LoanMonth{
					LoanID:                    loan.ID,
					BorrowerName:              loan.BorrowerName,
					PreviousOutstanding:       previous,
					Outstanding:               row.OutstandingPrincipal,
					TotalOutstanding:          row.TotalOutstanding,
					Interest:                  row.MonthlyInterest,
					AccumulatedInterest:       row.AccumulatedInterest,
					Payment:                   row.Payment,
					Prepayment:                row.Prepayment,
					InterestPaidByPrepayment:  row.InterestFromPrepayment,
					PrincipalPaidByPrepayment: row.PrincipalFromPrepayment,
				})
				previous = row.OutstandingPrincipal
			}
		}
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]MonthBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, *buckets[k])
	}
	return out, nil
}

// CurrentBucket returns the bucket flagged as the current month, falling back
// to the latest bucket when asOf lies outside every schedule.
func CurrentBucket(buckets []MonthBucket) (MonthBucket, bool) {
	for _, b := range buckets {
		if b.IsCurrentMonth {
			return b, true
		}
	}
	if len(buckets) == 0 {
		return MonthBucket{}, false
	}
	return buckets[len(buckets)-1], true
}

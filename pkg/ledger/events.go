package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/amortization"
	"github.com/mcclellann/loanbook/pkg/models"
)

// AddPayment records a regular payment. On a credit card it lowers the
// outstanding balance, floored at zero.
func (l *Ledger) AddPayment(ctx context.Context, id uuid.UUID, in models.EventInput) (*models.Loan, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	return l.mutate(ctx, "add_payment", id, func(loan *models.Loan, _ time.Time) error {
		loan.Payments = append(loan.Payments, models.Payment{
			ID:     uuid.New(),
			Amount: in.Amount,
			Date:   civilDate(in.Date),
			Status: models.PaymentStatusCompleted,
		})
		if loan.LoanType == models.LoanTypeCreditCard {
			loan.Outstanding, _ = amortization.ApplyEvent(loan.Outstanding, amortization.EventPayment, in.Amount)
		}
		return nil
	})
}

func (l *Ledger) UpdatePayment(ctx context.Context, id, eventID uuid.UUID, in models.EventInput) (*models.Loan, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	return l.mutate(ctx, "update_payment", id, func(loan *models.Loan, _ time.Time) error {
		i := slices.IndexFunc(loan.Payments, func(p models.Payment) bool { return p.ID == eventID })
		if i < 0 {
			return eventNotFound("payment", eventID)
		}
		if loan.LoanType == models.LoanTypeCreditCard {
			loan.Outstanding = amortization.AdjustEvent(loan.Outstanding, amortization.EventPayment, loan.Payments[i].Amount, in.Amount)
		}
		loan.Payments[i].Amount = in.Amount
		loan.Payments[i].Date = civilDate(in.Date)
		return nil
	})
}

func (l *Ledger) DeletePayment(ctx context.Context, id, eventID uuid.UUID) (*models.Loan, error) {
	return l.mutate(ctx, "delete_payment", id, func(loan *models.Loan, _ time.Time) error {
		i := slices.IndexFunc(loan.Payments, func(p models.Payment) bool { return p.ID == eventID })
		if i < 0 {
			return eventNotFound("payment", eventID)
		}
		if loan.LoanType == models.LoanTypeCreditCard {
			loan.Outstanding = amortization.AdjustEvent(loan.Outstanding, amortization.EventPayment, loan.Payments[i].Amount, decimal.Zero)
		}
		loan.Payments = slices.Delete(loan.Payments, i, i+1)
		return nil
	})
}

// AddPrepayment records an out-of-schedule payment on a personal or gold loan
// that is not yet paid off.
func (l *Ledger) AddPrepayment(ctx context.Context, id uuid.UUID, in models.EventInput) (*models.Loan, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	return l.mutate(ctx, "add_prepayment", id, func(loan *models.Loan, today time.Time) error {
		if loan.LoanType == models.LoanTypeCreditCard {
			return fmt.Errorf("%w: prepayments are not accepted on credit cards", ErrTypeMismatch)
		}
		if amortization.Status(loan, today) == models.StatusPaid {
			return ErrLoanPaid
		}
		if err := checkPrepaymentDate(loan, in.Date); err != nil {
			return err
		}
		loan.Prepayments = append(loan.Prepayments, models.Prepayment{
			ID:     uuid.New(),
			Amount: in.Amount,
			Date:   civilDate(in.Date),
		})
		return nil
	})
}

func (l *Ledger) UpdatePrepayment(ctx context.Context, id, eventID uuid.UUID, in models.EventInput) (*models.Loan, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	return l.mutate(ctx, "update_prepayment", id, func(loan *models.Loan, _ time.Time) error {
		i := slices.IndexFunc(loan.Prepayments, func(p models.Prepayment) bool { return p.ID == eventID })
		if i < 0 {
			return eventNotFound("prepayment", eventID)
		}
		if err := checkPrepaymentDate(loan, in.Date); err != nil {
			return err
		}
		loan.Prepayments[i].Amount = in.Amount
		loan.Prepayments[i].Date = civilDate(in.Date)
		return nil
	})
}

func (l *Ledger) DeletePrepayment(ctx context.Context, id, eventID uuid.UUID) (*models.Loan, error) {
	return l.mutate(ctx, "delete_prepayment", id, func(loan *models.Loan, _ time.Time) error {
		i := slices.IndexFunc(loan.Prepayments, func(p models.Prepayment) bool { return p.ID == eventID })
		if i < 0 {
			return eventNotFound("prepayment", eventID)
		}
		loan.Prepayments = slices.Delete(loan.Prepayments, i, i+1)
		return nil
	})
}

// AddSpent records a purchase on a credit card, raising its outstanding
// balance.
func (l *Ledger) AddSpent(ctx context.Context, id uuid.UUID, in models.EventInput) (*models.Loan, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	return l.mutate(ctx, "add_spent", id, func(loan *models.Loan, _ time.Time) error {
		if loan.LoanType != models.LoanTypeCreditCard {
			return fmt.Errorf("%w: spends are only recorded on credit cards", ErrTypeMismatch)
		}
		loan.SpentHistory = append(loan.SpentHistory, models.Spent{
			ID:          uuid.New(),
			Amount:      in.Amount,
			Date:        civilDate(in.Date),
			Description: strings.TrimSpace(in.Description),
		})
		loan.Outstanding, _ = amortization.ApplyEvent(loan.Outstanding, amortization.EventSpent, in.Amount)
		return nil
	})
}

func (l *Ledger) UpdateSpent(ctx context.Context, id, eventID uuid.UUID, in models.EventInput) (*models.Loan, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}
	return l.mutate(ctx, "update_spent", id, func(loan *models.Loan, _ time.Time) error {
		i := slices.IndexFunc(loan.SpentHistory, func(s models.Spent) bool { return s.ID == eventID })
		if i < 0 {
			return eventNotFound("spent", eventID)
		}
		loan.Outstanding = amortization.AdjustEvent(loan.Outstanding, amortization.EventSpent, loan.SpentHistory[i].Amount, in.Amount)
		loan.SpentHistory[i].Amount = in.Amount
		loan.SpentHistory[i].Date = civilDate(in.Date)
		if desc := strings.TrimSpace(in.Description); desc != "" {
			loan.SpentHistory[i].Description = desc
		}
		return nil
	})
}

func (l *Ledger) DeleteSpent(ctx context.Context, id, eventID uuid.UUID) (*models.Loan, error) {
	return l.mutate(ctx, "delete_spent", id, func(loan *models.Loan, _ time.Time) error {
		i := slices.IndexFunc(loan.SpentHistory, func(s models.Spent) bool { return s.ID == eventID })
		if i < 0 {
			return eventNotFound("spent", eventID)
		}
		loan.Outstanding = amortization.AdjustEvent(loan.Outstanding, amortization.EventSpent, loan.SpentHistory[i].Amount, decimal.Zero)
		loan.SpentHistory = slices.Delete(loan.SpentHistory, i, i+1)
		return nil
	})
}

// checkPrepaymentDate rejects prepayments dated in a month the loan's schedule
// never reaches: before a gold loan's start month, or outside a personal
// loan's installment months.
func checkPrepaymentDate(loan *models.Loan, date time.Time) error {
	start := time.Date(loan.StartDate.Year(), loan.StartDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch loan.LoanType {
	case models.LoanTypePersonal:
		if !amortization.WithinTerm(loan.StartDate, loan.Term, date) {
			last := start.AddDate(0, loan.Term-1, 0)
			return ValidationErrors{{Field: "date", Constraint: fmt.Sprintf("must fall between %s and %s", start.Format("2006-01"), last.Format("2006-01"))}}
		}
	case models.LoanTypeGold:
		if civilDate(date).Before(start) {
			return ValidationErrors{{Field: "date", Constraint: "must not be before " + start.Format("2006-01")}}
		}
	}
	return nil
}

func validateEvent(in models.EventInput) error {
	var errs ValidationErrors
	if !in.Amount.IsPositive() {
		errs.add("amount", "must be greater than 0")
	}
	if in.Date.IsZero() {
		errs.add("date", "is required")
	}
	return errs.orNil()
}

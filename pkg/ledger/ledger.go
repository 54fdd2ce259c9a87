package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loanbook/pkg/amortization"
	"github.com/mcclellann/loanbook/pkg/metrics"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
)

// maxTermMonths bounds personal-loan schedules to a hundred years.
const maxTermMonths = 1200

// Ledger handles validation, persistence and status bookkeeping for loans and
// their events. Every derived figure comes from the amortization package.
type Ledger struct {
	storage store.Storage
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Ledger)

func WithLogger(log *logrus.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock replaces time.Now, which decides "today" for status and views.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) today() time.Time {
	return civilDate(l.now())
}

// civilDate drops the clock part of t, keeping its calendar date, in UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateLoan validates in and stores a new loan with no events.
func (l *Ledger) CreateLoan(ctx context.Context, in models.LoanInput) (*models.Loan, error) {
	if err := validateLoanInput(in); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	loan := &models.Loan{
		ID:           uuid.New(),
		LoanType:     in.LoanType,
		BorrowerName: strings.TrimSpace(in.BorrowerName),
		Amount:       in.Amount,
		InterestRate: in.InterestRate,
		StartDate:    civilDate(in.StartDate),
		Status:       models.StatusActive,
		Payments:     []models.Payment{},
		Prepayments:  []models.Prepayment{},
		SpentHistory: []models.Spent{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch in.LoanType {
	case models.LoanTypePersonal:
		loan.Term = in.Term
	case models.LoanTypeCreditCard:
		loan.InterestRate = decimal.Zero
		loan.CreditLimit = in.Amount
		loan.Outstanding = in.Amount
		loan.CardNumber = strings.TrimSpace(in.CardNumber)
	}
	loan.Status = amortization.Status(loan, l.today())

	err := l.storage.CreateLoan(ctx, loan)
	l.metrics.ObserveMutation("create_loan", string(loan.LoanType), err)
	if err != nil {
		l.log.WithError(err).WithField("loan_type", loan.LoanType).Error("failed to store loan")
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"loan_type": loan.LoanType,
		"amount":    loan.Amount.String(),
	}).Info("loan created")
	return loan, nil
}

// GetLoan returns the loan with its status derived as of today.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	loan.Status = amortization.Status(loan, l.today())
	return loan, nil
}

// ListLoans returns every loan, or only those of loanType when it is set.
func (l *Ledger) ListLoans(ctx context.Context, loanType models.LoanType) ([]*models.Loan, error) {
	if loanType != "" && !loanType.Valid() {
		return nil, ValidationErrors{{Field: "type", Constraint: "must be one of personal, gold, creditCard"}}
	}
	loans, err := l.storage.GetAllLoans(ctx)
	if err != nil {
		return nil, err
	}

	today := l.today()
	out := make([]*models.Loan, 0, len(loans))
	for _, loan := range loans {
		if loanType != "" && loan.LoanType != loanType {
			continue
		}
		loan.Status = amortization.Status(loan, today)
		out = append(out, loan)
	}
	return out, nil
}

// UpdateLoan applies the non-nil fields of upd. Changing a credit card's
// amount moves its outstanding balance by the same delta.
func (l *Ledger) UpdateLoan(ctx context.Context, id uuid.UUID, upd models.LoanUpdate) (*models.Loan, error) {
	return l.mutate(ctx, "update_loan", id, func(loan *models.Loan, _ time.Time) error {
		var errs ValidationErrors
		isCard := loan.LoanType == models.LoanTypeCreditCard

		if upd.BorrowerName != nil {
			if name := strings.TrimSpace(*upd.BorrowerName); name == "" {
				errs.add("borrower_name", "is required")
			} else {
				loan.BorrowerName = name
			}
		}
		if upd.Amount != nil {
			if !upd.Amount.IsPositive() {
				errs.add("amount", "must be greater than 0")
			} else {
				if isCard {
					loan.Outstanding = loan.Outstanding.Add(upd.Amount.Sub(loan.Amount))
					loan.CreditLimit = *upd.Amount
				}
				loan.Amount = *upd.Amount
			}
		}
		if upd.InterestRate != nil {
			switch {
			case upd.InterestRate.IsNegative():
				errs.add("interest_rate", "must be 0 or greater")
			case isCard && !upd.InterestRate.IsZero():
				errs.add("interest_rate", "must be 0 for credit cards")
			default:
				loan.InterestRate = *upd.InterestRate
			}
		}
		if upd.Term != nil {
			switch {
			case loan.LoanType != models.LoanTypePersonal:
				errs.add("term", "only applies to personal loans")
			case *upd.Term < 1 || *upd.Term > maxTermMonths:
				errs.add("term", fmt.Sprintf("must be between 1 and %d months", maxTermMonths))
			default:
				loan.Term = *upd.Term
			}
		}
		if upd.StartDate != nil {
			if upd.StartDate.IsZero() {
				errs.add("start_date", "is required")
			} else {
				loan.StartDate = civilDate(*upd.StartDate)
			}
		}
		if upd.CardNumber != nil {
			switch {
			case !isCard:
				errs.add("card_number", "only applies to credit cards")
			case strings.TrimSpace(*upd.CardNumber) == "":
				errs.add("card_number", "is required")
			default:
				loan.CardNumber = strings.TrimSpace(*upd.CardNumber)
			}
		}
		if upd.Status != nil {
			switch *upd.Status {
			case models.StatusActive, models.StatusDefaulted:
				loan.Status = *upd.Status
			default:
				errs.add("status", "must be active or defaulted")
			}
		}
		return errs.orNil()
	})
}

// DeleteLoan deletes a loan together with its events.
func (l *Ledger) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	err := l.storage.DeleteLoan(ctx, id)
	l.metrics.ObserveMutation("delete_loan", "", err)
	if err != nil {
		return err
	}
	l.log.WithField("loan_id", id).Info("loan deleted")
	return nil
}

// Reconcile rewrites the stored status of every unpaid loan whose derived
// status has moved on, e.g. a personal loan whose last installment month has
// now passed. It returns how many loans changed.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	loans, err := l.storage.GetAllActiveLoans(ctx)
	if err != nil {
		l.metrics.ObserveReconcile(err)
		return 0, fmt.Errorf("failed to list active loans: %w", err)
	}

	today := l.today()
	changed := 0
	var errs []error
	for _, loan := range loans {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if amortization.Status(loan, today) == loan.Status {
			continue
		}
		_, err := l.mutate(ctx, "reconcile", loan.ID, func(*models.Loan, time.Time) error { return nil })
		switch {
		case errors.Is(err, ErrLoanNotFound):
			// deleted since the listing
		case err != nil:
			errs = append(errs, err)
		default:
			changed++
		}
	}

	err = errors.Join(errs...)
	l.metrics.ObserveReconcile(err)
	entry := l.log.WithFields(logrus.Fields{"checked": len(loans), "changed": changed})
	if err != nil {
		entry.WithError(err).Error("reconcile finished with errors")
		return changed, err
	}
	entry.Info("reconcile finished")
	return changed, nil
}

// mutate is the single write path: fn edits the stored loan, then the status
// is recomputed from the edited events before the store persists it.
func (l *Ledger) mutate(ctx context.Context, op string, id uuid.UUID, fn func(loan *models.Loan, today time.Time) error) (*models.Loan, error) {
	today := l.today()
	var (
		loanType models.LoanType
		before   models.Status
	)
	loan, err := l.storage.UpdateLoan(ctx, id, func(loan *models.Loan) error {
		loanType, before = loan.LoanType, loan.Status
		if err := fn(loan, today); err != nil {
			return err
		}
		loan.Status = amortization.Status(loan, today)
		loan.UpdatedAt = l.now().UTC()
		return nil
	})
	l.metrics.ObserveMutation(op, string(loanType), err)

	entry := l.log.WithFields(logrus.Fields{"op": op, "loan_id": id})
	if err != nil {
		if isClientError(err) {
			entry.WithError(err).Debug("loan mutation rejected")
		} else {
			entry.WithError(err).Error("loan mutation failed")
		}
		return nil, err
	}

	if loan.Status != before {
		l.metrics.ObserveStatusChange(string(before), string(loan.Status))
		entry.WithFields(logrus.Fields{"from": before, "to": loan.Status}).Info("loan status changed")
	}
	entry.WithField("version", loan.Version).Debug("loan updated")
	return loan, nil
}

func validateLoanInput(in models.LoanInput) error {
	var errs ValidationErrors
	if !in.LoanType.Valid() {
		errs.add("loan_type", "must be one of personal, gold, creditCard")
	}
	if strings.TrimSpace(in.BorrowerName) == "" {
		errs.add("borrower_name", "is required")
	}
	if !in.Amount.IsPositive() {
		errs.add("amount", "must be greater than 0")
	}
	if in.InterestRate.IsNegative() {
		errs.add("interest_rate", "must be 0 or greater")
	}
	if in.StartDate.IsZero() {
		errs.add("start_date", "is required")
	}
	switch in.LoanType {
	case models.LoanTypePersonal:
		if in.Term < 1 || in.Term > maxTermMonths {
			errs.add("term", fmt.Sprintf("must be between 1 and %d months for personal loans", maxTermMonths))
		}
	case models.LoanTypeCreditCard:
		if strings.TrimSpace(in.CardNumber) == "" {
			errs.add("card_number", "is required for credit cards")
		}
	}
	return errs.orNil()
}

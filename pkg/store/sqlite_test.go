package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "loans.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLoan(loanType models.LoanType) *models.Loan {
	now := time.Now().UTC()
	return &models.Loan{
		ID:           uuid.New(),
		LoanType:     loanType,
		BorrowerName: "Meera",
		Amount:       decimal.RequireFromString("120000.50"),
		InterestRate: decimal.RequireFromString("12.25"),
		Term:         12,
		StartDate:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loan := testLoan(models.LoanTypeGold)
	loan.Payments = []models.Payment{
		{ID: uuid.New(), Amount: decimal.RequireFromString("500.10"), Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Status: models.PaymentStatusCompleted},
		{ID: uuid.New(), Amount: decimal.RequireFromString("200"), Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Status: models.PaymentStatusCompleted},
	}
	loan.Prepayments = []models.Prepayment{
		{ID: uuid.New(), Amount: decimal.RequireFromString("1000"), Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)},
	}

	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	if fetched.BorrowerName != loan.BorrowerName {
		t.Errorf("Expected BorrowerName %s, got %s", loan.BorrowerName, fetched.BorrowerName)
	}
	if fetched.LoanType != models.LoanTypeGold {
		t.Errorf("Expected loan type gold, got %s", fetched.LoanType)
	}
	if !fetched.Amount.Equal(loan.Amount) {
		t.Errorf("Expected Amount %s, got %s", loan.Amount, fetched.Amount)
	}
	if !fetched.InterestRate.Equal(loan.InterestRate) {
		t.Errorf("Expected InterestRate %s, got %s", loan.InterestRate, fetched.InterestRate)
	}
	if !fetched.StartDate.Equal(loan.StartDate) {
		t.Errorf("Expected StartDate %s, got %s", loan.StartDate, fetched.StartDate)
	}
	if len(fetched.Payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(fetched.Payments))
	}
	// Insertion order, not date order.
	if fetched.Payments[0].ID != loan.Payments[0].ID || !fetched.Payments[0].Amount.Equal(loan.Payments[0].Amount) {
		t.Errorf("Expected first payment %v, got %v", loan.Payments[0], fetched.Payments[0])
	}
	if fetched.Payments[1].Status != models.PaymentStatusCompleted {
		t.Errorf("Expected payment status %q, got %q", models.PaymentStatusCompleted, fetched.Payments[1].Status)
	}
	if len(fetched.Prepayments) != 1 || !fetched.Prepayments[0].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected one prepayment of 1000, got %v", fetched.Prepayments)
	}
	if len(fetched.SpentHistory) != 0 {
		t.Errorf("Expected no spend history, got %d entries", len(fetched.SpentHistory))
	}
}

func TestSQLiteStore_GetLoanNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLoan(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpdateLoan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loan := testLoan(models.LoanTypeCreditCard)
	loan.CreditLimit = loan.Amount
	loan.Outstanding = loan.Amount
	loan.SpentHistory = []models.Spent{
		{ID: uuid.New(), Amount: decimal.NewFromInt(50), Date: loan.StartDate, Description: "fuel"},
		{ID: uuid.New(), Amount: decimal.NewFromInt(75), Date: loan.StartDate, Description: "books"},
	}
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	updated, err := s.UpdateLoan(ctx, loan.ID, func(l *models.Loan) error {
		l.SpentHistory = l.SpentHistory[1:]
		l.Outstanding = l.Outstanding.Sub(decimal.NewFromInt(50))
		l.BorrowerName = "Meera K"
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to update loan: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("Expected version 1, got %d", updated.Version)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.Version != 1 {
		t.Errorf("Expected stored version 1, got %d", fetched.Version)
	}
	if fetched.BorrowerName != "Meera K" {
		t.Errorf("Expected BorrowerName Meera K, got %s", fetched.BorrowerName)
	}
	if len(fetched.SpentHistory) != 1 || fetched.SpentHistory[0].Description != "books" {
		t.Errorf("Expected only the books spend to remain, got %v", fetched.SpentHistory)
	}
	want := decimal.RequireFromString("119950.50")
	if !fetched.Outstanding.Equal(want) {
		t.Errorf("Expected Outstanding %s, got %s", want, fetched.Outstanding)
	}
}

func TestSQLiteStore_UpdateLoanAbortsOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loan := testLoan(models.LoanTypePersonal)
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.UpdateLoan(ctx, loan.ID, func(l *models.Loan) error {
		l.BorrowerName = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected mutate error, got %v", err)
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.BorrowerName != loan.BorrowerName || fetched.Version != 0 {
		t.Errorf("Expected untouched loan, got name %q version %d", fetched.BorrowerName, fetched.Version)
	}

	_, err = s.UpdateLoan(ctx, uuid.New(), func(*models.Loan) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown loan, got %v", err)
	}
}

func TestSQLiteStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loan := testLoan(models.LoanTypeGold)
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateLoan(ctx, loan.ID, func(l *models.Loan) error {
				l.Payments = append(l.Payments, models.Payment{
					ID:     uuid.New(),
					Amount: decimal.NewFromInt(10),
					Date:   l.StartDate,
					Status: models.PaymentStatusCompleted,
				})
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent update failed: %v", err)
		}
	}

	fetched, err := s.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if len(fetched.Payments) != writers {
		t.Errorf("Expected %d payments, got %d", writers, len(fetched.Payments))
	}
	if fetched.Version != writers {
		t.Errorf("Expected version %d, got %d", writers, fetched.Version)
	}
}

func TestSQLiteStore_DeleteLoan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loan := testLoan(models.LoanTypeGold)
	loan.Payments = []models.Payment{{ID: uuid.New(), Amount: decimal.NewFromInt(1), Date: loan.StartDate}}
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	if err := s.DeleteLoan(ctx, loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := s.GetLoan(ctx, loan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteLoan(ctx, loan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSQLiteStore_ListLoans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	active := testLoan(models.LoanTypePersonal)
	active.Prepayments = []models.Prepayment{{ID: uuid.New(), Amount: decimal.NewFromInt(1000), Date: active.StartDate}}
	paid := testLoan(models.LoanTypeCreditCard)
	paid.Status = models.StatusPaid
	paid.CreatedAt = active.CreatedAt.Add(time.Second)
	paid.SpentHistory = []models.Spent{{ID: uuid.New(), Amount: decimal.NewFromInt(5), Date: paid.StartDate, Description: "tea"}}
	for _, l := range []*models.Loan{active, paid} {
		if err := s.CreateLoan(ctx, l); err != nil {
			t.Fatalf("Failed to create loan: %v", err)
		}
	}

	all, err := s.GetAllLoans(ctx)
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 loans, got %d", len(all))
	}
	if all[1].ID != paid.ID || len(all[1].SpentHistory) != 1 {
		t.Errorf("Expected paid card with its spend history second, got %+v", all[1])
	}

	open, err := s.GetAllActiveLoans(ctx)
	if err != nil {
		t.Fatalf("Failed to list active loans: %v", err)
	}
	if len(open) != 1 || open[0].ID != active.ID {
		t.Fatalf("Expected only the active loan, got %d loans", len(open))
	}
	if len(open[0].Prepayments) != 1 || len(open[0].SpentHistory) != 0 {
		t.Errorf("Expected the active loan's own events only, got %+v", open[0])
	}
}

func TestSQLiteStore_ListLoansReadsOnlyListedEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loan := testLoan(models.LoanTypeGold)
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	// An orphaned event row with an unparsable loan id must never be scanned.
	if _, err := s.db.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		t.Fatalf("Failed to disable foreign keys: %v", err)
	}
	_, err := s.db.Exec(`INSERT INTO loan_events (id, loan_id, kind, seq, amount, date) VALUES (?, 'orphan', 'payment', 0, '1', ?)`,
		uuid.NewString(), loan.StartDate)
	if err != nil {
		t.Fatalf("Failed to insert orphan event: %v", err)
	}

	all, err := s.GetAllLoans(ctx)
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	if len(all) != 1 || len(all[0].Payments) != 0 {
		t.Errorf("Expected one loan without payments, got %+v", all)
	}
	if _, err := s.GetAllActiveLoans(ctx); err != nil {
		t.Fatalf("Failed to list active loans: %v", err)
	}
}

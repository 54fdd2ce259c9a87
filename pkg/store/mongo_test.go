package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mcclellann/loanbook/pkg/models"
)

func TestLoanDocRoundTrip(t *testing.T) {
	loan := testLoan(models.LoanTypeCreditCard)
	loan.CreditLimit = decimal.RequireFromString("75000.125")
	loan.Outstanding = decimal.RequireFromString("-12.5")
	loan.CardNumber = "4111"
	loan.Version = 7
	loan.SpentHistory = []models.Spent{
		{ID: uuid.New(), Amount: decimal.RequireFromString("0.01"), Date: loan.StartDate, Description: "gum"},
	}
	loan.Payments = []models.Payment{
		{ID: uuid.New(), Amount: decimal.RequireFromString("99999999.99"), Date: loan.StartDate, Status: models.PaymentStatusCompleted},
	}

	doc, err := toLoanDoc(loan)
	if err != nil {
		t.Fatalf("Failed to convert loan: %v", err)
	}
	back, err := doc.toModel()
	if err != nil {
		t.Fatalf("Failed to convert document: %v", err)
	}

	checks := []struct {
		name      string
		want, got decimal.Decimal
	}{
		{"amount", loan.Amount, back.Amount},
		{"interest rate", loan.InterestRate, back.InterestRate},
		{"credit limit", loan.CreditLimit, back.CreditLimit},
		{"outstanding", loan.Outstanding, back.Outstanding},
		{"spend", loan.SpentHistory[0].Amount, back.SpentHistory[0].Amount},
		{"payment", loan.Payments[0].Amount, back.Payments[0].Amount},
	}
	for _, c := range checks {
		if !c.want.Equal(c.got) {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, c.got)
		}
	}
	if back.ID != loan.ID || back.Version != 7 || back.CardNumber != "4111" {
		t.Errorf("Expected identity fields to survive, got id %s version %d card %q", back.ID, back.Version, back.CardNumber)
	}
	if back.SpentHistory[0].Description != "gum" || back.Payments[0].Status != models.PaymentStatusCompleted {
		t.Errorf("Expected event fields to survive, got %+v %+v", back.SpentHistory[0], back.Payments[0])
	}
	if back.Prepayments != nil {
		t.Errorf("Expected no prepayments, got %v", back.Prepayments)
	}
}

func TestDecimalCodec_ZeroValue(t *testing.T) {
	var c decimalCodec
	if got := c.decode(primitive.Decimal128{}); !got.IsZero() || got.Exponent() != 0 {
		t.Errorf("Expected canonical zero, got %s (exp %d)", got, got.Exponent())
	}
	if c.err != nil {
		t.Errorf("Expected no error, got %v", c.err)
	}
}

func TestDecimalCodec_Overflow(t *testing.T) {
	var c decimalCodec
	huge := decimal.RequireFromString("1234567890123456789012345678901234567.1")
	c.encode(huge)
	if c.err == nil {
		t.Errorf("Expected an error for a value wider than decimal128")
	}
}

// newTestMongoStore connects to LOANBOOK_TEST_MONGO_URI and isolates the test
// in its own database.
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("LOANBOOK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("LOANBOOK_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := "loanbook_test_" + uuid.NewString()[:8]
	s, err := NewMongoStore(ctx, uri, db)
	if err != nil {
		t.Fatalf("Failed to create mongo store: %v", err)
	}
	t.Cleanup(func() {
		s.client.Database(db).Drop(context.Background())
		s.Close()
	})
	return s
}

func TestMongoStore_Lifecycle(t *testing.T) {
	s := newTestMongoStore(t)
	ctx := context.Background()

	loan := testLoan(models.LoanTypeGold)
	loan.CreatedAt = loan.CreatedAt.Truncate(time.Millisecond)
	loan.UpdatedAt = loan.CreatedAt
	if err := s.CreateLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	updated, err := s.UpdateLoan(ctx, loan.ID, func(l *models.Loan) error {
		l.Payments = append(l.Payments, models.Payment{ID: uuid.New(), Amount: decimal.NewFromInt(250), Date: l.StartDate, Status: models.PaymentStatusCompleted})
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
	if len(fetched.Payments) != 1 || !fetched.Payments[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected one payment of 250, got %v", fetched.Payments)
	}

	all, err := s.GetAllActiveLoans(ctx)
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 active loan, got %d", len(all))
	}

	if err := s.DeleteLoan(ctx, loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := s.GetLoan(ctx, loan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

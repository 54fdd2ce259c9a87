package amortization

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mcclellann/loanbook/pkg/models"
)

func personalLoan(amount, rate string, term int, start time.Time) *models.Loan {
	return &models.Loan{
		ID:           uuid.New(),
		LoanType:     models.LoanTypePersonal,
		BorrowerName: "Asha",
		Amount:       dec(amount),
		InterestRate: dec(rate),
		Term:         term,
		StartDate:    start,
		Status:       models.StatusActive,
	}
}

func goldLoan(amount, rate string, start time.Time) *models.Loan {
	return &models.Loan{
		ID:           uuid.New(),
		LoanType:     models.LoanTypeGold,
		BorrowerName: "Ravi",
		Amount:       dec(amount),
		InterestRate: dec(rate),
		StartDate:    start,
		Status:       models.StatusActive,
	}
}

func creditCard(outstanding string) *models.Loan {
	return &models.Loan{
		ID:          uuid.New(),
		LoanType:    models.LoanTypeCreditCard,
		Amount:      dec("1000"),
		CreditLimit: dec("1000"),
		Outstanding: dec(outstanding),
		StartDate:   date(2024, 1, 1),
		Status:      models.StatusActive,
	}
}

func TestStatus_Personal(t *testing.T) {
	loan := personalLoan("12000", "12", 12, date(2024, 1, 1))

	assert.Equal(t, models.StatusActive, Status(loan, date(2024, 6, 15)))
	assert.Equal(t, models.StatusPaid, Status(loan, date(2024, 12, 1)))

	loan.Status = models.StatusDefaulted
	assert.Equal(t, models.StatusDefaulted, Status(loan, date(2024, 6, 15)))
	assert.Equal(t, models.StatusPaid, Status(loan, date(2025, 1, 1)))
}

func TestStatus_PersonalPrepaidEarly(t *testing.T) {
	loan := personalLoan("12000", "12", 12, date(2024, 1, 1))
	owed := PersonalSchedule(loan).Rows[1].RemainingPrincipal
	loan.Prepayments = []models.Prepayment{prepayment(owed.String(), date(2024, 3, 5))}

	assert.Equal(t, models.StatusActive, Status(loan, date(2024, 2, 28)))
	assert.Equal(t, models.StatusPaid, Status(loan, date(2024, 3, 10)))
	assert.True(t, CurrentOutstanding(loan, date(2024, 3, 10)).IsZero())
}

func TestStatus_Gold(t *testing.T) {
	loan := goldLoan("50000", "24", date(2024, 1, 1))
	assert.Equal(t, models.StatusActive, Status(loan, date(2024, 4, 1)))

	loan.Prepayments = []models.Prepayment{prepayment("51000", date(2024, 1, 31))}
	assert.Equal(t, models.StatusPaid, Status(loan, date(2024, 4, 1)))
}

func TestStatus_CreditCard(t *testing.T) {
	assert.Equal(t, models.StatusPaid, Status(creditCard("0"), date(2024, 4, 1)))
	assert.Equal(t, models.StatusActive, Status(creditCard("10"), date(2024, 4, 1)))
}

func TestCurrentOutstanding(t *testing.T) {
	personal := personalLoan("12000", "12", 12, date(2024, 1, 1))
	assertDec(t, "12000", CurrentOutstanding(personal, date(2023, 12, 31)))
	assert.True(t, CurrentOutstanding(personal, date(2024, 6, 1)).LessThan(dec("12000")))

	gold := goldLoan("50000", "24", date(2024, 1, 1))
	assertDec(t, "50000", CurrentOutstanding(gold, date(2023, 12, 1)))
	assertDec(t, "54000", CurrentOutstanding(gold, date(2024, 4, 1)))

	assertDec(t, "320", CurrentOutstanding(creditCard("320"), date(2024, 4, 1)))

	assert.Panics(t, func() {
		CurrentOutstanding(&models.Loan{LoanType: "mortgage", Amount: decimal.Zero}, date(2024, 1, 1))
	})
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanType string

const (
	LoanTypePersonal   LoanType = "personal"
	LoanTypeGold       LoanType = "gold"
	LoanTypeCreditCard LoanType = "creditCard"
)

// Valid reports whether t is one of the known loan types.
func (t LoanType) Valid() bool {
	switch t {
	case LoanTypePersonal, LoanTypeGold, LoanTypeCreditCard:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPaid      Status = "paid"
	StatusDefaulted Status = "defaulted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaid, StatusDefaulted:
		return true
	}
	return false
}

// PaymentStatusCompleted is stamped on every payment recorded through the ledger.
const PaymentStatusCompleted = "completed"

// Loan is the aggregate root. Payments, Prepayments and SpentHistory are kept
// in insertion order, not date order.
type Loan struct {
	ID           uuid.UUID       `json:"id"`
	LoanType     LoanType        `json:"loan_type"`
	BorrowerName string          `json:"borrower_name"`
	Amount       decimal.Decimal `json:"amount"`         // Original principal, or the seed limit for credit cards
	InterestRate decimal.Decimal `json:"interest_rate"`  // Annual percent
	Term         int             `json:"term,omitempty"` // Months, personal loans only
	StartDate    time.Time       `json:"start_date"`
	Status       Status          `json:"status"`

	CreditLimit decimal.Decimal `json:"credit_limit"`
	CardNumber  string          `json:"card_number,omitempty"`
	Outstanding decimal.Decimal `json:"outstanding"`

	Payments     []Payment    `json:"payments"`
	Prepayments  []Prepayment `json:"prepayments"`
	SpentHistory []Spent      `json:"spent_history"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Payment struct {
	ID     uuid.UUID       `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Status string          `json:"status"`
}

type Prepayment struct {
	ID     uuid.UUID       `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

type Spent struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// Clone returns a deep copy so callers can mutate events without touching the original.
func (l *Loan) Clone() *Loan {
	c := *l
	c.Payments = append([]Payment(nil), l.Payments...)
	c.Prepayments = append([]Prepayment(nil), l.Prepayments...)
	c.SpentHistory = append([]Spent(nil), l.SpentHistory...)
	return &c
}

// LoanInput carries the fields accepted when a loan is created.
type LoanInput struct {
	LoanType     LoanType
	BorrowerName string
	Amount       decimal.Decimal
	InterestRate decimal.Decimal
	Term         int
	StartDate    time.Time
	CardNumber   string
}

// LoanUpdate carries editable loan fields. Nil pointers are left unchanged.
type LoanUpdate struct {
	BorrowerName *string
	Amount       *decimal.Decimal
	InterestRate *decimal.Decimal
	Term         *int
	StartDate    *time.Time
	CardNumber   *string
	Status       *Status
}

// EventInput is the payload for recording or editing a payment, prepayment or spend.
type EventInput struct {
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
)

var (
	// ErrNotFound is returned when no loan has the requested ID.
	ErrNotFound = errors.New("loan not found")
	// ErrConflict is returned when a loan changed underneath an UpdateLoan call
	// more times than the store is willing to retry.
	ErrConflict = errors.New("loan was modified concurrently")
)

// MutateFunc edits a loan in place. Returning an error aborts the update and
// nothing is written.
type MutateFunc func(loan *models.Loan) error

// Storage defines the interface for persisting loans together with their
// payments, prepayments and spend history.
type Storage interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	GetAllLoans(ctx context.Context) ([]*models.Loan, error)
	// GetAllActiveLoans returns every loan not yet marked paid.
	GetAllActiveLoans(ctx context.Context) ([]*models.Loan, error)

	// UpdateLoan loads the loan, applies fn and writes the result back as one
	// atomic step, bumping Version. It is the only way a stored loan changes.
	UpdateLoan(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Loan, error)
	DeleteLoan(ctx context.Context, id uuid.UUID) error

	Close() error
}

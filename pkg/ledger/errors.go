package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcclellann/loanbook/pkg/store"
)

var (
	ErrLoanNotFound  = store.ErrNotFound
	ErrEventNotFound = errors.New("event not found")
	// ErrTypeMismatch marks an operation the loan's type does not support,
	// such as a spend on a personal loan.
	ErrTypeMismatch = errors.New("operation not supported for this loan type")
	ErrLoanPaid     = errors.New("loan is already paid")
)

// ValidationError names the offending field and the constraint it broke.
type ValidationError struct {
	Field      string `json:"field"`
	Constraint string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Constraint
}

// ValidationErrors collects every field that failed validation in one request.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, constraint string) {
	*v = append(*v, &ValidationError{Field: field, Constraint: constraint})
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func eventNotFound(kind string, id fmt.Stringer) error {
	return fmt.Errorf("%w: %s %s", ErrEventNotFound, kind, id)
}

// isClientError reports whether err was caused by the request rather than by
// the store or the server.
func isClientError(err error) bool {
	var verrs ValidationErrors
	return errors.As(err, &verrs) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrLoanPaid)
}

package main

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/ledger"
)

const dateLayout = "2006-01-02"

type requestValidator struct{ v *validator.Validate }

func newValidator() *requestValidator {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Numeric tags (gt, gte, dec2) see decimals as float64.
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		return f.Interface().(decimal.Decimal).InexactFloat64()
	}, decimal.Decimal{})

	_ = v.RegisterValidation("apidate", func(fl validator.FieldLevel) bool {
		_, err := parseDate(fl.Field().String())
		return err == nil
	})
	// at most 2 decimal places
	_ = v.RegisterValidation("dec2", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return math.Abs(f-(math.Round(f*100)/100)) < 1e-9
	})

	return &requestValidator{v: v}
}

// Validate checks req against its struct tags and returns ledger validation
// errors, so transport and domain failures render the same way.
func (rv *requestValidator) Validate(req any) error {
	err := rv.v.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(ledger.ValidationErrors, 0, len(ve))
	for _, e := range ve {
		out = append(out, &ledger.ValidationError{Field: e.Field(), Constraint: fieldMessage(e)})
	}
	return out
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "apidate":
		return "must be a date in YYYY-MM-DD or RFC 3339 format"
	case "dec2":
		return "must have at most 2 decimal places"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "min":
		return "must be at least " + e.Param() + " characters"
	}
	return e.Tag() + " validation failed"
}

// parseDate accepts a plain calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

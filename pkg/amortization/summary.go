package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

type TypeSummary struct {
	LoanType    models.LoanType `json:"loan_type"`
	Count       int             `json:"count"`
	Active      int             `json:"active"`
	Paid        int             `json:"paid"`
	Defaulted   int             `json:"defaulted"`
	Principal   decimal.Decimal `json:"principal"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type Summary struct {
	AsOf             time.Time       `json:"as_of"`
	Types            []TypeSummary   `json:"types"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
}

var summaryOrder = []models.LoanType{
	models.LoanTypePersonal,
	models.LoanTypeGold,
	models.LoanTypeCreditCard,
}

// Summarize totals current outstanding balances per loan type. Status counts
// use the derived status, not the stored one.
func Summarize(loans []*models.Loan, asOf time.Time) Summary {
	byType := make(map[models.LoanType]*TypeSummary, len(summaryOrder))
	for _, t := range summaryOrder {
		byType[t] = &TypeSummary{LoanType: t, Principal: decimal.Zero, Outstanding: decimal.Zero}
	}

	sum := Summary{AsOf: asOf, TotalOutstanding: decimal.Zero}
	for _, loan := range loans {
		ts, ok := byType[loan.LoanType]
		if !ok {
			continue
		}
		ts.Count++
		ts.Principal = ts.Principal.Add(loan.Amount)
		switch Status(loan, asOf) {
		case models.StatusPaid:
			ts.Paid++
		case models.StatusDefaulted:
			ts.Defaulted++
		default:
			ts.Active++
		}
		outstanding := CurrentOutstanding(loan, asOf)
		ts.Outstanding = ts.Outstanding.Add(outstanding)
		sum.TotalOutstanding = sum.TotalOutstanding.Add(outstanding)
	}

	for _, t := range summaryOrder {
		sum.Types = append(sum.Types, *byType[t])
	}
	return sum
}

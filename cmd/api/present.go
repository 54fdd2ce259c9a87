package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/amortization"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
)

// Response bodies. Money is rounded to two places here and nowhere else;
// the engine accumulates at full precision.

func money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func civil(t time.Time) string { return t.Format(dateLayout) }

type loanResponse struct {
	ID           uuid.UUID            `json:"id"`
	LoanType     models.LoanType      `json:"loan_type"`
	BorrowerName string               `json:"borrower_name"`
	Amount       decimal.Decimal      `json:"amount"`
	InterestRate decimal.Decimal      `json:"interest_rate"`
	Term         int                  `json:"term,omitempty"`
	StartDate    string               `json:"start_date"`
	Status       models.Status        `json:"status"`
	CreditLimit  *decimal.Decimal     `json:"credit_limit,omitempty"`
	CardNumber   string               `json:"card_number,omitempty"`
	Outstanding  *decimal.Decimal     `json:"outstanding,omitempty"`
	Payments     []paymentResponse    `json:"payments"`
	Prepayments  []prepaymentResponse `json:"prepayments"`
	SpentHistory []spentResponse      `json:"spent_history,omitempty"`
	Version      int                  `json:"version"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type paymentResponse struct {
	ID     uuid.UUID       `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Status string          `json:"status"`
}

type prepaymentResponse struct {
	ID     uuid.UUID       `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
}

type spentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
}

func newLoanResponse(l *models.Loan) loanResponse {
	resp := loanResponse{
		ID:           l.ID,
		LoanType:     l.LoanType,
		BorrowerName: l.BorrowerName,
		Amount:       money(l.Amount),
		InterestRate: l.InterestRate,
		Term:         l.Term,
		StartDate:    civil(l.StartDate),
		Status:       l.Status,
		CardNumber:   l.CardNumber,
		Payments:     make([]paymentResponse, 0, len(l.Payments)),
		Prepayments:  make([]prepaymentResponse, 0, len(l.Prepayments)),
		Version:      l.Version,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
	if l.LoanType == models.LoanTypeCreditCard {
		limit, outstanding := money(l.CreditLimit), money(l.Outstanding)
		resp.CreditLimit = &limit
		resp.Outstanding = &outstanding
		resp.SpentHistory = make([]spentResponse, 0, len(l.SpentHistory))
	}
	for _, p := range l.Payments {
		resp.Payments = append(resp.Payments, paymentResponse{ID: p.ID, Amount: money(p.Amount), Date: civil(p.Date), Status: p.Status})
	}
	for _, p := range l.Prepayments {
		resp.Prepayments = append(resp.Prepayments, prepaymentResponse{ID: p.ID, Amount: money(p.Amount), Date: civil(p.Date)})
	}
	for _, s := range l.SpentHistory {
		resp.SpentHistory = append(resp.SpentHistory, spentResponse{ID: s.ID, Amount: money(s.Amount), Date: civil(s.Date), Description: s.Description})
	}
	return resp
}

func newLoanResponses(loans []*models.Loan) []loanResponse {
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, newLoanResponse(l))
	}
	return out
}

type fixedTermRowResponse struct {
	Month              int             `json:"month"`
	Date               string          `json:"date"`
	EMI                decimal.Decimal `json:"emi"`
	Principal          decimal.Decimal `json:"principal"`
	Interest           decimal.Decimal `json:"interest"`
	Prepayment         decimal.Decimal `json:"prepayment"`
	RemainingPrincipal decimal.Decimal `json:"remaining_principal"`
}

type fixedTermResponse struct {
	EMI               decimal.Decimal        `json:"emi"`
	TotalInterest     decimal.Decimal        `json:"total_interest"`
	ScheduledInterest decimal.Decimal        `json:"scheduled_interest"`
	InterestSaved     decimal.Decimal        `json:"interest_saved"`
	TotalPrepayment   decimal.Decimal        `json:"total_prepayment"`
	Rows              []fixedTermRowResponse `json:"rows"`
}

type openEndedRowResponse struct {
	Month                   int             `json:"month"`
	Date                    string          `json:"date"`
	MonthlyInterest         decimal.Decimal `json:"monthly_interest"`
	AccumulatedInterest     decimal.Decimal `json:"accumulated_interest"`
	Payment                 decimal.Decimal `json:"payment"`
	Prepayment              decimal.Decimal `json:"prepayment"`
	InterestFromPrepayment  decimal.Decimal `json:"interest_from_prepayment"`
	PrincipalFromPrepayment decimal.Decimal `json:"principal_from_prepayment"`
	InterestFromPayment     decimal.Decimal `json:"interest_from_payment"`
	PrincipalFromPayment    decimal.Decimal `json:"principal_from_payment"`
	OutstandingPrincipal    decimal.Decimal `json:"outstanding_principal"`
	TotalOutstanding        decimal.Decimal `json:"total_outstanding"`
	IsCurrentMonth          bool            `json:"is_current_month"`
}

type transactionResponse struct {
	EventID     uuid.UUID              `json:"event_id"`
	Kind        amortization.EventKind `json:"kind"`
	Date        string                 `json:"date"`
	Description string                 `json:"description"`
	Spent       decimal.Decimal        `json:"spent"`
	Payment     decimal.Decimal        `json:"payment"`
	Outstanding decimal.Decimal        `json:"outstanding"`
}

type scheduleResponse struct {
	Loan               loanResponse           `json:"loan"`
	AsOf               string                 `json:"as_of"`
	CurrentOutstanding decimal.Decimal        `json:"current_outstanding"`
	FixedTerm          *fixedTermResponse     `json:"fixed_term,omitempty"`
	OpenEnded          []openEndedRowResponse `json:"open_ended,omitempty"`
	Transactions       []transactionResponse  `json:"transactions,omitempty"`
}

func newScheduleResponse(v *ledger.ScheduleView) scheduleResponse {
	resp := scheduleResponse{
		Loan:               newLoanResponse(v.Loan),
		AsOf:               civil(v.AsOf),
		CurrentOutstanding: money(v.CurrentOutstanding),
	}
	if s := v.FixedTerm; s != nil {
		ft := &fixedTermResponse{
			EMI:               money(s.EMI),
			TotalInterest:     money(s.TotalInterest),
			ScheduledInterest: money(s.ScheduledInterest),
			InterestSaved:     money(s.InterestSaved),
			TotalPrepayment:   money(s.TotalPrepayment),
			Rows:              make([]fixedTermRowResponse, 0, len(s.Rows)),
		}
		for _, r := range s.Rows {
			ft.Rows = append(ft.Rows, fixedTermRowResponse{
				Month:              r.Month,
				Date:               civil(r.Date),
				EMI:                money(r.EMI),
				Principal:          money(r.Principal),
				Interest:           money(r.Interest),
				Prepayment:         money(r.Prepayment),
				RemainingPrincipal: money(r.RemainingPrincipal),
			})
		}
		resp.FixedTerm = ft
	}
	for _, r := range v.OpenEnded {
		resp.OpenEnded = append(resp.OpenEnded, openEndedRowResponse{
			Month:                   r.Month,
			Date:                    civil(r.Date),
			MonthlyInterest:         money(r.MonthlyInterest),
			AccumulatedInterest:     money(r.AccumulatedInterest),
			Payment:                 money(r.Payment),
			Prepayment:              money(r.Prepayment),
			InterestFromPrepayment:  money(r.InterestFromPrepayment),
			PrincipalFromPrepayment: money(r.PrincipalFromPrepayment),
			InterestFromPayment:     money(r.InterestFromPayment),
			PrincipalFromPayment:    money(r.PrincipalFromPayment),
			OutstandingPrincipal:    money(r.OutstandingPrincipal),
			TotalOutstanding:        money(r.TotalOutstanding),
			IsCurrentMonth:          r.IsCurrentMonth,
		})
	}
	for _, r := range v.Transactions {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			EventID:     r.EventID,
			Kind:        r.Kind,
			Date:        civil(r.Date),
			Description: r.Description,
			Spent:       money(r.Spent),
			Payment:     money(r.Payment),
			Outstanding: money(r.Outstanding),
		})
	}
	return resp
}

type loanMonthResponse struct {
	LoanID                    uuid.UUID       `json:"loan_id"`
	BorrowerName              string          `json:"borrower_name"`
	PreviousOutstanding       decimal.Decimal `json:"previous_outstanding"`
	Outstanding               decimal.Decimal `json:"outstanding"`
	TotalOutstanding          decimal.Decimal `json:"total_outstanding"`
	EMI                       decimal.Decimal `json:"emi"`
	Principal                 decimal.Decimal `json:"principal"`
	Interest                  decimal.Decimal `json:"interest"`
	AccumulatedInterest       decimal.Decimal `json:"accumulated_interest"`
	Payment                   decimal.Decimal `json:"payment"`
	Prepayment                decimal.Decimal `json:"prepayment"`
	InterestPaidByPrepayment  decimal.Decimal `json:"interest_paid_by_prepayment"`
	PrincipalPaidByPrepayment decimal.Decimal `json:"principal_paid_by_prepayment"`
}

type bucketResponse struct {
	Year                      int                 `json:"year"`
	Month                     int                 `json:"month"`
	IsCurrentMonth            bool                `json:"is_current_month"`
	ActiveLoans               int                 `json:"active_loans"`
	Outstanding               decimal.Decimal     `json:"outstanding"`
	TotalOutstanding          decimal.Decimal     `json:"total_outstanding"`
	EMI                       decimal.Decimal     `json:"emi"`
	Principal                 decimal.Decimal     `json:"principal"`
	Interest                  decimal.Decimal     `json:"interest"`
	AccumulatedInterest       decimal.Decimal     `json:"accumulated_interest"`
	Payment                   decimal.Decimal     `json:"payment"`
	Prepayment                decimal.Decimal     `json:"prepayment"`
	InterestPaidByPrepayment  decimal.Decimal     `json:"interest_paid_by_prepayment"`
	PrincipalPaidByPrepayment decimal.Decimal     `json:"principal_paid_by_prepayment"`
	Loans                     []loanMonthResponse `json:"loans"`
}

type outstandingsResponse struct {
	LoanType models.LoanType  `json:"loan_type"`
	AsOf     string           `json:"as_of"`
	Current  *bucketResponse  `json:"current,omitempty"`
	Buckets  []bucketResponse `json:"buckets"`
}

func newBucketResponse(b amortization.MonthBucket) bucketResponse {
	resp := bucketResponse{
		Year:                      b.Year,
		Month:                     int(b.Month),
		IsCurrentMonth:            b.IsCurrentMonth,
		ActiveLoans:               b.ActiveLoans(),
		Outstanding:               money(b.Outstanding),
		TotalOutstanding:          money(b.TotalOutstanding),
		EMI:                       money(b.EMI),
		Principal:                 money(b.Principal),
		Interest:                  money(b.Interest),
		AccumulatedInterest:       money(b.AccumulatedInterest),
		Payment:                   money(b.Payment),
		Prepayment:                money(b.Prepayment),
		InterestPaidByPrepayment:  money(b.InterestPaidByPrepayment),
		PrincipalPaidByPrepayment: money(b.PrincipalPaidByPrepayment),
		Loans:                     make([]loanMonthResponse, 0, len(b.Loans)),
	}
	for _, l := range b.Loans {
		resp.Loans = append(resp.Loans, loanMonthResponse{
			LoanID:                    l.LoanID,
			BorrowerName:              l.BorrowerName,
			PreviousOutstanding:       money(l.PreviousOutstanding),
			Outstanding:               money(l.Outstanding),
			TotalOutstanding:          money(l.TotalOutstanding),
			EMI:                       money(l.EMI),
			Principal:                 money(l.Principal),
			Interest:                  money(l.Interest),
			AccumulatedInterest:       money(l.AccumulatedInterest),
			Payment:                   money(l.Payment),
			Prepayment:                money(l.Prepayment),
			InterestPaidByPrepayment:  money(l.InterestPaidByPrepayment),
			PrincipalPaidByPrepayment: money(l.PrincipalPaidByPrepayment),
		})
	}
	return resp
}

func newOutstandingsResponse(v *ledger.OutstandingsView) outstandingsResponse {
	resp := outstandingsResponse{
		LoanType: v.LoanType,
		AsOf:     civil(v.AsOf),
		Buckets:  make([]bucketResponse, 0, len(v.Buckets)),
	}
	for _, b := range v.Buckets {
		resp.Buckets = append(resp.Buckets, newBucketResponse(b))
	}
	if v.Current != nil {
		current := newBucketResponse(*v.Current)
		resp.Current = &current
	}
	return resp
}

type typeSummaryResponse struct {
	LoanType    models.LoanType `json:"loan_type"`
	Count       int             `json:"count"`
	Active      int             `json:"active"`
	Paid        int             `json:"paid"`
	Defaulted   int             `json:"defaulted"`
	Principal   decimal.Decimal `json:"principal"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type summaryResponse struct {
	AsOf             string                `json:"as_of"`
	TotalOutstanding decimal.Decimal       `json:"total_outstanding"`
	Types            []typeSummaryResponse `json:"types"`
}

func newSummaryResponse(s amortization.Summary) summaryResponse {
	resp := summaryResponse{
		AsOf:             civil(s.AsOf),
		TotalOutstanding: money(s.TotalOutstanding),
		Types:            make([]typeSummaryResponse, 0, len(s.Types)),
	}
	for _, t := range s.Types {
		resp.Types = append(resp.Types, typeSummaryResponse{
			LoanType:    t.LoanType,
			Count:       t.Count,
			Active:      t.Active,
			Paid:        t.Paid,
			Defaulted:   t.Defaulted,
			Principal:   money(t.Principal),
			Outstanding: money(t.Outstanding),
		})
	}
	return resp
}

type quoteResponse struct {
	Amount        decimal.Decimal `json:"amount"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	Term          int             `json:"term"`
	EMI           decimal.Decimal `json:"emi"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalPayment  decimal.Decimal `json:"total_payment"`
}

func newQuoteResponse(q *ledger.EMIQuote) quoteResponse {
	return quoteResponse{
		Amount:        money(q.Amount),
		InterestRate:  q.InterestRate,
		Term:          q.Term,
		EMI:           money(q.EMI),
		TotalInterest: money(q.TotalInterest),
		TotalPayment:  money(q.TotalPayment),
	}
}

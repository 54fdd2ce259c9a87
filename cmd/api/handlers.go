package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
)

type createLoanRequest struct {
	LoanType     string          `json:"loan_type" validate:"required,oneof=personal gold creditCard"`
	BorrowerName string          `json:"borrower_name" validate:"required,max=200"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0,dec2"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"gte=0"`
	Term         int             `json:"term" validate:"required_if=LoanType personal,gte=0"`
	StartDate    string          `json:"start_date" validate:"required,apidate"`
	CardNumber   string          `json:"card_number" validate:"required_if=LoanType creditCard,max=32"`
}

// Every field is optional; only the ones present are applied.
type updateLoanRequest struct {
	BorrowerName *string          `json:"borrower_name" validate:"omitempty,max=200"`
	Amount       *decimal.Decimal `json:"amount" validate:"omitempty,gt=0,dec2"`
	InterestRate *decimal.Decimal `json:"interest_rate" validate:"omitempty,gte=0"`
	Term         *int             `json:"term" validate:"omitempty,gte=1"`
	StartDate    *string          `json:"start_date" validate:"omitempty,apidate"`
	CardNumber   *string          `json:"card_number" validate:"omitempty,max=32"`
	Status       *string          `json:"status" validate:"omitempty,oneof=active defaulted"`
}

type eventRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0,dec2"`
	Date        string          `json:"date" validate:"required,apidate"`
	Description string          `json:"description" validate:"max=500"`
}

type errorResponse struct {
	Error   string                    `json:"error"`
	Details []*ledger.ValidationError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger and store errors onto status codes. Anything it does
// not recognise is logged and reported as a 500 without its message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs ledger.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: verrs})
	case errors.Is(err, ledger.ErrTypeMismatch), errors.Is(err, ledger.ErrLoanPaid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrLoanNotFound), errors.Is(err, ledger.ErrEventNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func invalid(field, constraint string) error {
	return ledger.ValidationErrors{{Field: field, Constraint: constraint}}
}

// decode reads a JSON body into req and validates its tags.
func (s *Server) decode(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return invalid("body", "must be valid JSON: "+err.Error())
	}
	return s.validate.Validate(req)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, invalid(name, "must be a UUID")
	}
	return id, nil
}

// queryAsOf reads the optional asOf parameter; zero means today.
func queryAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return time.Time{}, invalid("asOf", "must be a date in YYYY-MM-DD or RFC 3339 format")
	}
	return t, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	start, _ := parseDate(req.StartDate)

	loan, err := s.ledger.CreateLoan(r.Context(), models.LoanInput{
		LoanType:     models.LoanType(req.LoanType),
		BorrowerName: req.BorrowerName,
		Amount:       req.Amount,
		InterestRate: req.InterestRate,
		Term:         req.Term,
		StartDate:    start,
		CardNumber:   req.CardNumber,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLoanResponse(loan))
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loan, err := s.ledger.GetLoan(r.Context(), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.ListLoans(r.Context(), models.LoanType(r.URL.Query().Get("type")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponses(loans))
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateLoanRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	upd := models.LoanUpdate{
		BorrowerName: req.BorrowerName,
		Amount:       req.Amount,
		InterestRate: req.InterestRate,
		Term:         req.Term,
		CardNumber:   req.CardNumber,
	}
	if req.StartDate != nil {
		start, _ := parseDate(*req.StartDate)
		upd.StartDate = &start
	}
	if req.Status != nil {
		status := models.Status(*req.Status)
		upd.Status = &status
	}

	loan, err := s.ledger.UpdateLoan(r.Context(), loanID, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteLoan(r.Context(), loanID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type (
	addEventFunc    func(ctx context.Context, id uuid.UUID, in models.EventInput) (*models.Loan, error)
	updateEventFunc func(ctx context.Context, id, eventID uuid.UUID, in models.EventInput) (*models.Loan, error)
	deleteEventFunc func(ctx context.Context, id, eventID uuid.UUID) (*models.Loan, error)
)

type eventHandlerSet struct {
	add    addEventFunc
	update updateEventFunc
	remove deleteEventFunc
}

// eventHandlers maps each event path segment to its ledger operations.
func (s *Server) eventHandlers() map[string]eventHandlerSet {
	return map[string]eventHandlerSet{
		"payment":    {s.ledger.AddPayment, s.ledger.UpdatePayment, s.ledger.DeletePayment},
		"prepayment": {s.ledger.AddPrepayment, s.ledger.UpdatePrepayment, s.ledger.DeletePrepayment},
		"spent":      {s.ledger.AddSpent, s.ledger.UpdateSpent, s.ledger.DeleteSpent},
	}
}

func (s *Server) decodeEvent(r *http.Request) (models.EventInput, error) {
	var req eventRequest
	if err := s.decode(r, &req); err != nil {
		return models.EventInput{}, err
	}
	date, _ := parseDate(req.Date)
	return models.EventInput{Amount: req.Amount, Date: date, Description: req.Description}, nil
}

func (s *Server) addEventHandler(add addEventFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		in, err := s.decodeEvent(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		loan, err := add(r.Context(), loanID, in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newLoanResponse(loan))
	}
}

func (s *Server) updateEventHandler(update updateEventFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		eventID, err := pathID(r, "eventId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		in, err := s.decodeEvent(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		loan, err := update(r.Context(), loanID, eventID, in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newLoanResponse(loan))
	}
}

func (s *Server) deleteEventHandler(remove deleteEventFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		eventID, err := pathID(r, "eventId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		loan, err := remove(r.Context(), loanID, eventID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newLoanResponse(loan))
	}
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.ledger.Schedule(r.Context(), loanID, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleResponse(view))
}

func (s *Server) outstandingsHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.ledger.Outstandings(r.Context(), models.LoanType(mux.Vars(r)["type"]), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutstandingsResponse(view))
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryAsOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (s *Server) emiHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs ledger.ValidationErrors

	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		errs = append(errs, &ledger.ValidationError{Field: "amount", Constraint: "must be a number"})
	}
	rate := decimal.Zero
	if raw := q.Get("rate"); raw != "" {
		if rate, err = decimal.NewFromString(raw); err != nil {
			errs = append(errs, &ledger.ValidationError{Field: "rate", Constraint: "must be a number"})
		}
	}
	term, err := strconv.Atoi(q.Get("term"))
	if err != nil {
		errs = append(errs, &ledger.ValidationError{Field: "term", Constraint: "must be a whole number of months"})
	}
	if len(errs) > 0 {
		s.writeError(w, r, errs)
		return
	}

	quote, err := s.ledger.QuoteEMI(amount, rate, term)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

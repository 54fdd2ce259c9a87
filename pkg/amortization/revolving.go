package amortization

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/loanbook/pkg/models"
)

type EventKind string

const (
	EventSpent   EventKind = "spent"
	EventPayment EventKind = "payment"
)

// TransactionRow is one credit card event with the balance right after it.
type TransactionRow struct {
	EventID     uuid.UUID       `json:"event_id"`
	Kind        EventKind       `json:"kind"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Spent       decimal.Decimal `json:"spent"`
	Payment     decimal.Decimal `json:"payment"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func (t TransactionRow) net() decimal.Decimal {
	return t.Spent.Sub(t.Payment)
}

// ApplyEvent is the live mutation applied when an event is recorded. A spend
// raises the balance; a payment lowers it, floored at zero, and reports
// whether the card is now fully paid.
func ApplyEvent(outstanding decimal.Decimal, kind EventKind, amount decimal.Decimal) (next decimal.Decimal, paid bool) {
	switch kind {
	case EventSpent:
		next = outstanding.Add(amount)
	case EventPayment:
		next = decimal.Max(decimal.Zero, outstanding.Sub(amount))
	default:
		invariant(false, "unknown event kind %q", kind)
	}
	return next, next.IsZero()
}

// AdjustEvent shifts the balance when a recorded event changes from oldAmount
// to newAmount. Deleting an event is a change to zero. No floor is applied.
func AdjustEvent(outstanding decimal.Decimal, kind EventKind, oldAmount, newAmount decimal.Decimal) decimal.Decimal {
	delta := newAmount.Sub(oldAmount)
	switch kind {
	case EventSpent:
		return outstanding.Add(delta)
	case EventPayment:
		return outstanding.Sub(delta)
	}
	invariant(false, "unknown event kind %q", kind)
	return outstanding
}

// ReconstructHistory merges spends and payments into one chronological list
// and derives each row's point-in-time balance by walking back from the
// current outstanding value, so the newest row always matches outstandingNow
// even after events were edited or deleted out of order. Events sharing a date
// keep insertion order, spends before payments.
func ReconstructHistory(outstandingNow decimal.Decimal, spent []models.Spent, payments []models.Payment) []TransactionRow {
	rows := make([]TransactionRow, 0, len(spent)+len(payments))
	for _, s := range spent {
		rows = append(rows, TransactionRow{
			EventID:     s.ID,
			Kind:        EventSpent,
			Date:        s.Date,
			Description: s.Description,
			Spent:       s.Amount,
			Payment:     decimal.Zero,
		})
	}
	for _, p := range payments {
		rows = append(rows, TransactionRow{
			EventID:     p.ID,
			Kind:        EventPayment,
			Date:        p.Date,
			Description: "Payment",
			Spent:       decimal.Zero,
			Payment:     p.Amount,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	balance := outstandingNow
	for i := len(rows) - 1; i >= 0; i-- {
		rows[i].Outstanding = balance
		balance = balance.Sub(rows[i].net())
	}
	return rows
}

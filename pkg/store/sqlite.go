package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/mcclellann/loanbook/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// Event kinds as stored in loan_events.kind.
const (
	kindPayment    = "payment"
	kindPrepayment = "prepayment"
	kindSpent      = "spent"
)

const loanColumns = `id, loan_type, borrower_name, amount, interest_rate, term, start_date, status, credit_limit, card_number, outstanding, version, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// A single connection serializes writers, so UpdateLoan transactions never
	// interleave and the pragmas below apply to every statement.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.WithField("dsn", dataSourceName).Info("sqlite store ready")
	return s, nil
}

// initSchema creates the tables if they don't already exist and adds columns
// introduced after the first schema. Decimals are stored as TEXT so no
// precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		loan_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		term INTEGER NOT NULL DEFAULT 0,
		start_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		credit_limit TEXT NOT NULL DEFAULT '0',
		outstanding TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loan_events (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		date DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_loan_events_loan ON loan_events(loan_id, kind, seq);
	CREATE INDEX IF NOT EXISTS idx_loans_type ON loans(loan_type);
	CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	columns := []string{
		"borrower_name TEXT NOT NULL DEFAULT ''",
		"card_number TEXT NOT NULL DEFAULT ''",
		"version INTEGER NOT NULL DEFAULT 0",
	}
	for _, col := range columns {
		_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE loans ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

// CreateLoan inserts a new loan and its events in one transaction.
func (s *SQLiteStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.LoanType, loan.BorrowerName, loan.Amount, loan.InterestRate, loan.Term, loan.StartDate,
		loan.Status, loan.CreditLimit, loan.CardNumber, loan.Outstanding, loan.Version, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	if err := writeEvents(ctx, tx, loan); err != nil {
		return err
	}
	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return getLoan(ctx, s.db, id)
}

// UpdateLoan runs fn against the stored loan inside a transaction. The write
// is guarded by the version read at the start of the transaction.
func (s *SQLiteStore) UpdateLoan(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := getLoan(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	version := loan.Version
	if err := fn(loan); err != nil {
		return nil, err
	}
	loan.ID = id
	loan.Version = version + 1

	result, err := tx.ExecContext(ctx,
		`UPDATE loans SET loan_type = ?, borrower_name = ?, amount = ?, interest_rate = ?, term = ?, start_date = ?, status = ?, credit_limit = ?, card_number = ?, outstanding = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
		loan.LoanType, loan.BorrowerName, loan.Amount, loan.InterestRate, loan.Term, loan.StartDate, loan.Status,
		loan.CreditLimit, loan.CardNumber, loan.Outstanding, loan.Version, loan.UpdatedAt, id.String(), version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM loan_events WHERE loan_id = ?`, id.String()); err != nil {
		return nil, fmt.Errorf("failed to clear loan events: %w", err)
	}
	if err := writeEvents(ctx, tx, loan); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit loan update: %w", err)
	}
	return loan, nil
}

// DeleteLoan removes a loan and its events within a transaction.
func (s *SQLiteStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM loan_events WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete loan events: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans, oldest first.
func (s *SQLiteStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.listLoans(ctx, "1 = 1")
}

// GetAllActiveLoans retrieves every loan whose stored status is not paid.
func (s *SQLiteStore) GetAllActiveLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.listLoans(ctx, "status != ?", models.StatusPaid)
}

// listLoans loads the loans matching filter together with their events. The
// event query applies the same filter, so only listed loans' events are read.
func (s *SQLiteStore) listLoans(ctx context.Context, filter string, args ...any) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE `+filter+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	loans, err := scanLoans(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return loans, nil
	}

	byID := make(map[uuid.UUID]*models.Loan, len(loans))
	for _, loan := range loans {
		byID[loan.ID] = loan
	}
	err = loadEvents(ctx, s.db,
		`SELECT loan_id, id, kind, amount, date, status, description FROM loan_events
		WHERE loan_id IN (SELECT id FROM loans WHERE `+filter+`) ORDER BY loan_id, kind, seq`,
		byID, args...)
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func getLoan(ctx context.Context, q queryer, id uuid.UUID) (*models.Loan, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	loans, err := scanLoans(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, ErrNotFound
	}

	loan := loans[0]
	err = loadEvents(ctx, q,
		`SELECT loan_id, id, kind, amount, date, status, description FROM loan_events WHERE loan_id = ? ORDER BY kind, seq`,
		map[uuid.UUID]*models.Loan{loan.ID: loan}, id.String())
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		var loan models.Loan
		var loanIDStr string
		var created, updated, start time.Time
		if err := rows.Scan(&loanIDStr, &loan.LoanType, &loan.BorrowerName, &loan.Amount, &loan.InterestRate, &loan.Term, &start,
			&loan.Status, &loan.CreditLimit, &loan.CardNumber, &loan.Outstanding, &loan.Version, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		id, err := uuid.Parse(loanIDStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt loan id %q: %w", loanIDStr, err)
		}
		loan.ID = id
		loan.StartDate = start.UTC()
		loan.CreatedAt = created.UTC()
		loan.UpdatedAt = updated.UTC()
		loans = append(loans, &loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// loadEvents attaches event rows to the loans in byID. Rows for loans not in
// the map are skipped.
func loadEvents(ctx context.Context, q queryer, query string, byID map[uuid.UUID]*models.Loan, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load loan events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var loanIDStr, eventIDStr, kind, status, description string
		var amount decimal.Decimal
		var date time.Time
		if err := rows.Scan(&loanIDStr, &eventIDStr, &kind, &amount, &date, &status, &description); err != nil {
			return fmt.Errorf("failed to scan loan event row: %w", err)
		}
		loanID, err := uuid.Parse(loanIDStr)
		if err != nil {
			return fmt.Errorf("corrupt loan id %q: %w", loanIDStr, err)
		}
		loan, ok := byID[loanID]
		if !ok {
			continue
		}
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			return fmt.Errorf("corrupt event id %q: %w", eventIDStr, err)
		}

		date = date.UTC()
		switch kind {
		case kindPayment:
			loan.Payments = append(loan.Payments, models.Payment{ID: eventID, Amount: amount, Date: date, Status: status})
		case kindPrepayment:
			loan.Prepayments = append(loan.Prepayments, models.Prepayment{ID: eventID, Amount: amount, Date: date})
		case kindSpent:
			loan.SpentHistory = append(loan.SpentHistory, models.Spent{ID: eventID, Amount: amount, Date: date, Description: description})
		default:
			return fmt.Errorf("unknown loan event kind %q", kind)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during loan event iteration: %w", err)
	}
	return nil
}

func writeEvents(ctx context.Context, tx *sql.Tx, loan *models.Loan) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO loan_events (id, loan_id, kind, seq, amount, date, status, description) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare loan event insert: %w", err)
	}
	defer stmt.Close()

	insert := func(kind string, seq int, id uuid.UUID, amount decimal.Decimal, date time.Time, status, description string) error {
		_, err := stmt.ExecContext(ctx, id.String(), loan.ID.String(), kind, seq, amount, date, status, description)
		if err != nil {
			return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
		}
		return nil
	}
	for i, p := range loan.Payments {
		if err := insert(kindPayment, i, p.ID, p.Amount, p.Date, p.Status, ""); err != nil {
			return err
		}
	}
	for i, p := range loan.Prepayments {
		if err := insert(kindPrepayment, i, p.ID, p.Amount, p.Date, "", ""); err != nil {
			return err
		}
	}
	for i, sp := range loan.SpentHistory {
		if err := insert(kindSpent, i, sp.ID, sp.Amount, sp.Date, "", sp.Description); err != nil {
			return err
		}
	}
	return nil
}

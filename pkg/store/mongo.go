package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mcclellann/loanbook/pkg/models"
)

const (
	loansCollection   = "loans"
	defaultMaxRetries = 5
	disconnectTimeout = 5 * time.Second
)

// MongoStore keeps one document per loan with its events embedded as arrays.
// Updates are compare-and-swap on the document's version field.
type MongoStore struct {
	client     *mongo.Client
	loans      *mongo.Collection
	maxRetries int
}

// NewMongoStore connects to uri and ensures the indexes on the loans
// collection of database exist.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not ping mongo: %w", err)
	}

	s := &MongoStore{
		client:     client,
		loans:      client.Database(database).Collection(loansCollection),
		maxRetries: defaultMaxRetries,
	}
	_, err = s.loans.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "loanType", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not create indexes: %w", err)
	}
	log.WithField("database", database).Info("mongo store ready")
	return s, nil
}

// CreateLoan inserts a new loan document.
func (s *MongoStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	doc, err := toLoanDoc(loan)
	if err != nil {
		return err
	}
	if _, err := s.loans.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *MongoStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var doc loanDoc
	err := s.loans.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return doc.toModel()
}

// GetAllLoans retrieves all loans, oldest first.
func (s *MongoStore) GetAllLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.find(ctx, bson.M{})
}

// GetAllActiveLoans retrieves every loan whose stored status is not paid.
func (s *MongoStore) GetAllActiveLoans(ctx context.Context) ([]*models.Loan, error) {
	return s.find(ctx, bson.M{"status": bson.M{"$ne": string(models.StatusPaid)}})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]*models.Loan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.loans.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	var docs []loanDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode loans: %w", err)
	}

	loans := make([]*models.Loan, 0, len(docs))
	for i := range docs {
		loan, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// UpdateLoan reads the loan, applies fn and replaces the document only if its
// version is unchanged. Lost races are retried with a fresh read.
func (s *MongoStore) UpdateLoan(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Loan, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		loan, err := s.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		version := loan.Version
		if err := fn(loan); err != nil {
			return nil, err
		}
		loan.ID = id
		loan.Version = version + 1

		doc, err := toLoanDoc(loan)
		if err != nil {
			return nil, err
		}
		res, err := s.loans.ReplaceOne(ctx, bson.M{"_id": id.String(), "version": version}, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to update loan: %w", err)
		}
		if res.MatchedCount == 1 {
			return loan, nil
		}
		log.WithFields(log.Fields{"loan_id": id, "attempt": attempt}).Debug("loan version changed, retrying update")
	}
	return nil, ErrConflict
}

// DeleteLoan removes a loan document.
func (s *MongoStore) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	res, err := s.loans.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type loanDoc struct {
	ID           string               `bson:"_id"`
	LoanType     string               `bson:"loanType"`
	BorrowerName string               `bson:"borrowerName"`
	Amount       primitive.Decimal128 `bson:"amount"`
	InterestRate primitive.Decimal128 `bson:"interestRate"`
	Term         int                  `bson:"term"`
	StartDate    time.Time            `bson:"startDate"`
	Status       string               `bson:"status"`
	CreditLimit  primitive.Decimal128 `bson:"creditLimit"`
	CardNumber   string               `bson:"cardNumber,omitempty"`
	Outstanding  primitive.Decimal128 `bson:"outstanding"`
	Payments     []eventDoc           `bson:"payments"`
	Prepayments  []eventDoc           `bson:"prepayments"`
	SpentHistory []eventDoc           `bson:"spentHistory"`
	Version      int                  `bson:"version"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

type eventDoc struct {
	ID          string               `bson:"id"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Date        time.Time            `bson:"date"`
	Status      string               `bson:"status,omitempty"`
	Description string               `bson:"description,omitempty"`
}

// decimalCodec converts between decimal.Decimal and Decimal128, remembering
// the first failure so a whole document can be converted before checking.
type decimalCodec struct {
	err error
}

func (c *decimalCodec) encode(d decimal.Decimal) primitive.Decimal128 {
	v, ok := primitive.ParseDecimal128FromBigInt(d.Coefficient(), int(d.Exponent()))
	if !ok && c.err == nil {
		c.err = fmt.Errorf("value %s does not fit in decimal128", d)
	}
	return v
}

func (c *decimalCodec) decode(v primitive.Decimal128) decimal.Decimal {
	coef, exp, err := v.BigInt()
	if err != nil {
		if c.err == nil {
			c.err = fmt.Errorf("invalid decimal128 %s: %w", v, err)
		}
		return decimal.Zero
	}
	if coef.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(coef, int32(exp))
}

func (c *decimalCodec) parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("corrupt id %q: %w", s, err)
	}
	return id
}

func toLoanDoc(loan *models.Loan) (*loanDoc, error) {
	var c decimalCodec
	doc := &loanDoc{
		ID:           loan.ID.String(),
		LoanType:     string(loan.LoanType),
		BorrowerName: loan.BorrowerName,
		Amount:       c.encode(loan.Amount),
		InterestRate: c.encode(loan.InterestRate),
		Term:         loan.Term,
		StartDate:    loan.StartDate,
		Status:       string(loan.Status),
		CreditLimit:  c.encode(loan.CreditLimit),
		CardNumber:   loan.CardNumber,
		Outstanding:  c.encode(loan.Outstanding),
		Payments:     make([]eventDoc, 0, len(loan.Payments)),
		Prepayments:  make([]eventDoc, 0, len(loan.Prepayments)),
		SpentHistory: make([]eventDoc, 0, len(loan.SpentHistory)),
		Version:      loan.Version,
		CreatedAt:    loan.CreatedAt,
		UpdatedAt:    loan.UpdatedAt,
	}
	for _, p := range loan.Payments {
		doc.Payments = append(doc.Payments, eventDoc{ID: p.ID.String(), Amount: c.encode(p.Amount), Date: p.Date, Status: p.Status})
	}
	for _, p := range loan.Prepayments {
		doc.Prepayments = append(doc.Prepayments, eventDoc{ID: p.ID.String(), Amount: c.encode(p.Amount), Date: p.Date})
	}
	for _, sp := range loan.SpentHistory {
		doc.SpentHistory = append(doc.SpentHistory, eventDoc{ID: sp.ID.String(), Amount: c.encode(sp.Amount), Date: sp.Date, Description: sp.Description})
	}
	if c.err != nil {
		return nil, fmt.Errorf("loan %s: %w", loan.ID, c.err)
	}
	return doc, nil
}

func (d *loanDoc) toModel() (*models.Loan, error) {
	var c decimalCodec
	loan := &models.Loan{
		ID:           c.parseID(d.ID),
		LoanType:     models.LoanType(d.LoanType),
		BorrowerName: d.BorrowerName,
		Amount:       c.decode(d.Amount),
		InterestRate: c.decode(d.InterestRate),
		Term:         d.Term,
		StartDate:    d.StartDate.UTC(),
		Status:       models.Status(d.Status),
		CreditLimit:  c.decode(d.CreditLimit),
		CardNumber:   d.CardNumber,
		Outstanding:  c.decode(d.Outstanding),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	for _, e := range d.Payments {
		loan.Payments = append(loan.Payments, models.Payment{ID: c.parseID(e.ID), Amount: c.decode(e.Amount), Date: e.Date.UTC(), Status: e.Status})
	}
	for _, e := range d.Prepayments {
		loan.Prepayments = append(loan.Prepayments, models.Prepayment{ID: c.parseID(e.ID), Amount: c.decode(e.Amount), Date: e.Date.UTC()})
	}
	for _, e := range d.SpentHistory {
		loan.SpentHistory = append(loan.SpentHistory, models.Spent{ID: c.parseID(e.ID), Amount: c.decode(e.Amount), Date: e.Date.UTC(), Description: e.Description})
	}
	if c.err != nil {
		return nil, fmt.Errorf("loan document %s: %w", d.ID, c.err)
	}
	return loan, nil
}

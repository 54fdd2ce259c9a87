package main

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/metrics"
	"github.com/mcclellann/loanbook/pkg/store"
)

// Server holds the ledger instance.
type Server struct {
	ledger   *ledger.Ledger
	storage  store.Storage // Keep a reference to the storage to close it
	log      *logrus.Logger
	metrics  *metrics.Metrics
	validate *requestValidator
}

func NewServer(s store.Storage, log *logrus.Logger, m *metrics.Metrics, opts ...ledger.Option) *Server {
	opts = append([]ledger.Option{ledger.WithLogger(log), ledger.WithMetrics(m)}, opts...)
	return &Server{
		ledger:   ledger.NewLedger(s, opts...),
		storage:  s,
		log:      log,
		metrics:  m,
		validate: newValidator(),
	}
}

// Routes builds the router and wraps it in the middleware chain.
func (s *Server) Routes(corsOrigins []string) http.Handler {
	router := mux.NewRouter()
	router.Use(tagRoute)

	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/loans", s.listLoansHandler).Methods(http.MethodGet)
	api.HandleFunc("/loans", s.createLoanHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}", s.getLoanHandler).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods(http.MethodPut)
	api.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods(http.MethodDelete)
	api.HandleFunc("/loans/{id}/schedule", s.scheduleHandler).Methods(http.MethodGet)

	for kind, ev := range s.eventHandlers() {
		api.HandleFunc("/loans/{id}/"+kind, s.addEventHandler(ev.add)).Methods(http.MethodPost)
		api.HandleFunc("/loans/{id}/"+kind+"/{eventId}", s.updateEventHandler(ev.update)).Methods(http.MethodPut)
		api.HandleFunc("/loans/{id}/"+kind+"/{eventId}", s.deleteEventHandler(ev.remove)).Methods(http.MethodDelete)
	}

	api.HandleFunc("/outstandings/{type}", s.outstandingsHandler).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.summaryHandler).Methods(http.MethodGet)
	api.HandleFunc("/emi", s.emiHandler).Methods(http.MethodGet)

	return s.chain(router, corsOrigins)
}

// chain wraps the router, innermost first, in panic recovery, metrics,
// request logging and CORS.
func (s *Server) chain(router *mux.Router, corsOrigins []string) http.Handler {
	var h http.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log),
		handlers.PrintRecoveryStack(false),
	)(router)
	h = instrument(s.metrics)(h)
	h = requestLogger(s.log)(h)
	return handlers.CORS(
		handlers.AllowedOrigins(corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
}

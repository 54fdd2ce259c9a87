package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/loanbook/pkg/config"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/metrics"
	"github.com/mcclellann/loanbook/pkg/store"
)

const reconcileTimeout = 5 * time.Minute

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	return log, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (store.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverSQLite:
		return store.NewSQLiteStore(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

// reconcileJob returns the cron job that moves derived loan statuses forward,
// e.g. a personal loan whose final installment month has passed.
func reconcileJob(l *ledger.Ledger, log *logrus.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if _, err := l.Reconcile(ctx); err != nil {
			log.WithError(err).Error("reconcile failed")
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		logrus.Fatalf("Invalid LOG_LEVEL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.StorageDriver).Fatal("Failed to initialize store")
	}
	defer storage.Close()

	server := NewServer(storage, log, metrics.New())

	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(log)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log)), cron.SkipIfStillRunning(cron.PrintfLogger(log))),
	)
	job := reconcileJob(server.ledger, log)
	if _, err := c.AddFunc(cfg.ReconcileSchedule, job); err != nil {
		log.WithError(err).Fatal("Invalid reconcile schedule")
	}
	job()
	c.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Routes(cfg.CORSOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "driver": cfg.StorageDriver}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	<-c.Stop().Done()
}

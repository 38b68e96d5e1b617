package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dealflow-backend/internal/cart"
	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type fakeCompleter struct {
	due       []uuid.UUID
	failures  map[uuid.UUID]error
	completed []uuid.UUID
	sources   []deals.CompletionSource
	lastNow   time.Time
	lastLimit int
}

func (f *fakeCompleter) DueForAutoComplete(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	f.lastNow = now
	f.lastLimit = limit
	return f.due, nil
}

func (f *fakeCompleter) Complete(_ context.Context, dealID uuid.UUID, source deals.CompletionSource, _ *deals.Actor) error {
	if err := f.failures[dealID]; err != nil {
		return err
	}
	f.completed = append(f.completed, dealID)
	f.sources = append(f.sources, source)
	return nil
}

func TestDealAutoCompleteJobSkipsRacedDeals(t *testing.T) {
	done, raced, broken := uuid.New(), uuid.New(), uuid.New()
	completer := &fakeCompleter{
		due: []uuid.UUID{done, raced, broken},
		failures: map[uuid.UUID]error{
			raced:  pkgerrors.New(pkgerrors.CodeStateConflict, "deal already completed"),
			broken: errors.New("db down"),
		},
	}
	jobIface, err := NewDealAutoCompleteJob(DealAutoCompleteJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Deals:  completer,
	})
	if err != nil {
		t.Fatalf("NewDealAutoCompleteJob: %v", err)
	}
	job := jobIface.(*dealAutoCompleteJob)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error for the broken deal")
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Fatalf("expected one failure, got %d", n)
	}
	if len(completer.completed) != 1 || completer.completed[0] != done {
		t.Fatalf("unexpected completions %v", completer.completed)
	}
	if completer.sources[0] != deals.CompletionTimer {
		t.Fatalf("expected timer source, got %s", completer.sources[0])
	}
	if !completer.lastNow.Equal(now) || completer.lastLimit != defaultBatchSize {
		t.Fatalf("unexpected query now=%s limit=%d", completer.lastNow, completer.lastLimit)
	}
}

type fakeSettler struct {
	due      []uuid.UUID
	amounts  map[uuid.UUID]int64
	failures map[uuid.UUID]error
	settled  int
}

func (f *fakeSettler) DueForSettlement(context.Context, int) ([]uuid.UUID, error) {
	return f.due, nil
}

func (f *fakeSettler) Settle(_ context.Context, id uuid.UUID, _ *deals.Actor) (*models.WalletLog, error) {
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	f.settled++
	return &models.WalletLog{ID: id, Amount: f.amounts[id]}, nil
}

func TestSettlementSweepJobSettlesDueLogs(t *testing.T) {
	a, b, settledElsewhere := uuid.New(), uuid.New(), uuid.New()
	settler := &fakeSettler{
		due:     []uuid.UUID{a, b, settledElsewhere},
		amounts: map[uuid.UUID]int64{a: 12650, b: 9650},
		failures: map[uuid.UUID]error{
			settledElsewhere: pkgerrors.New(pkgerrors.CodeStateConflict, "wallet log already settled"),
		},
	}
	job, err := NewSettlementSweepJob(SettlementSweepJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Ledger: settler,
	})
	if err != nil {
		t.Fatalf("NewSettlementSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if settler.settled != 2 {
		t.Fatalf("expected 2 settled, got %d", settler.settled)
	}
}

type fakeReconciler struct {
	result *cart.ReconcileResult
	err    error
	limit  int
}

func (f *fakeReconciler) ReconcileAll(_ context.Context, limit int) (*cart.ReconcileResult, error) {
	f.limit = limit
	return f.result, f.err
}

func TestCartReconcileJobPassesBatchSize(t *testing.T) {
	reconciler := &fakeReconciler{result: &cart.ReconcileResult{DeletedTrades: 3, PurgedCheckouts: 1}}
	job, err := NewCartReconcileJob(CartReconcileJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Carts:     reconciler,
		BatchSize: 25,
	})
	if err != nil {
		t.Fatalf("NewCartReconcileJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reconciler.limit != 25 {
		t.Fatalf("expected limit 25, got %d", reconciler.limit)
	}
}

func TestCartReconcileJobWrapsErrors(t *testing.T) {
	reconciler := &fakeReconciler{result: &cart.ReconcileResult{FailedCheckouts: 1}, err: errors.New("boom")}
	job, err := NewCartReconcileJob(CartReconcileJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Carts:  reconciler,
	})
	if err != nil {
		t.Fatalf("NewCartReconcileJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	if _, err := NewDealAutoCompleteJob(DealAutoCompleteJobParams{Logger: logg}); err == nil {
		t.Fatal("expected deals dependency error")
	}
	if _, err := NewSettlementSweepJob(SettlementSweepJobParams{Logger: logg}); err == nil {
		t.Fatal("expected ledger dependency error")
	}
	if _, err := NewCartReconcileJob(CartReconcileJobParams{Logger: logg}); err == nil {
		t.Fatal("expected cart dependency error")
	}
}

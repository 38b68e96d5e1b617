package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/cart"
	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

const defaultBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dealCompleter interface {
	DueForAutoComplete(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Complete(ctx context.Context, dealID uuid.UUID, source deals.CompletionSource, actor *deals.Actor) error
}

type walletSettler interface {
	DueForSettlement(ctx context.Context, limit int) ([]uuid.UUID, error)
	Settle(ctx context.Context, walletLogID uuid.UUID, actor *deals.Actor) (*models.WalletLog, error)
}

type cartReconciler interface {
	ReconcileAll(ctx context.Context, limit int) (*cart.ReconcileResult, error)
}

// skippable reports errors that mean another writer already moved the row.
func skippable(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeConflict)
}

type DealAutoCompleteJobParams struct {
	Logger    *logger.Logger
	Deals     dealCompleter
	BatchSize int
}

// NewDealAutoCompleteJob completes shipped deals whose buyer never reviewed
// once the grace period after waybill entry has passed.
func NewDealAutoCompleteJob(params DealAutoCompleteJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Deals == nil {
		return nil, fmt.Errorf("deals service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &dealAutoCompleteJob{logg: params.Logger, deals: params.Deals, batch: batch, now: time.Now}, nil
}

type dealAutoCompleteJob struct {
	logg  *logger.Logger
	deals dealCompleter
	batch int
	now   func() time.Time
}

func (j *dealAutoCompleteJob) Name() string { return "deal-autocomplete" }

func (j *dealAutoCompleteJob) Run(ctx context.Context) error {
	ids, err := j.deals.DueForAutoComplete(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("find due deals: %w", err)
	}
	var errs error
	completed, skipped := 0, 0
	for _, id := range ids {
		err := j.deals.Complete(ctx, id, deals.CompletionTimer, nil)
		switch {
		case err == nil:
			completed++
		case skippable(err):
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("complete deal %s: %w", id, err))
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"due":       len(ids),
		"completed": completed,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	}), "deal auto-complete pass finished")
	return errs
}

type SettlementSweepJobParams struct {
	Logger    *logger.Logger
	Ledger    walletSettler
	BatchSize int
}

// NewSettlementSweepJob pays out pending wallet logs of completed deals.
func NewSettlementSweepJob(params SettlementSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &settlementSweepJob{logg: params.Logger, ledger: params.Ledger, batch: batch}, nil
}

type settlementSweepJob struct {
	logg   *logger.Logger
	ledger walletSettler
	batch  int
}

func (j *settlementSweepJob) Name() string { return "settlement-sweep" }

func (j *settlementSweepJob) Run(ctx context.Context) error {
	ids, err := j.ledger.DueForSettlement(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("find settleable wallet logs: %w", err)
	}
	var (
		errs    error
		settled int
		amount  int64
		skipped int
	)
	for _, id := range ids {
		log, err := j.ledger.Settle(ctx, id, nil)
		switch {
		case err == nil:
			settled++
			amount += log.Amount
		case skippable(err):
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("settle wallet log %s: %w", id, err))
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"due":            len(ids),
		"settled":        settled,
		"settled_amount": amount,
		"skipped":        skipped,
		"failed":         len(multierr.Errors(errs)),
	}), "settlement sweep finished")
	return errs
}

type CartReconcileJobParams struct {
	Logger    *logger.Logger
	Carts     cartReconciler
	BatchSize int
}

// NewCartReconcileJob drops cart rows for sold products and tears down
// checkouts that can no longer be paid.
func NewCartReconcileJob(params CartReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &cartReconcileJob{logg: params.Logger, carts: params.Carts, batch: batch}, nil
}

type cartReconcileJob struct {
	logg  *logger.Logger
	carts cartReconciler
	batch int
}

func (j *cartReconcileJob) Name() string { return "cart-reconcile" }

func (j *cartReconcileJob) Run(ctx context.Context) error {
	result, err := j.carts.ReconcileAll(ctx, j.batch)
	if result != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"deleted_trades":     result.DeletedTrades,
			"purged_checkouts":   result.PurgedCheckouts,
			"released_checkouts": result.ReleasedCheckouts,
			"failed_checkouts":   result.FailedCheckouts,
		}), "cart reconcile finished")
	}
	if err != nil {
		return fmt.Errorf("cart reconcile: %w", err)
	}
	return nil
}

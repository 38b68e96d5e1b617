package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/internal/notifications"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
	"github.com/angelmondragon/dealflow-backend/pkg/metrics"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox"
	"github.com/angelmondragon/dealflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dealflow-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns wallet log creation and payout.
type Service interface {
	CreatePending(ctx context.Context, tx *gorm.DB, deals []models.Deal) ([]models.WalletLog, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, dealID uuid.UUID) error
	Settle(ctx context.Context, walletLogID uuid.UUID, actor *deals.Actor) (*models.WalletLog, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	DueForSettlement(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// ListParams filters the admin wallet log listing.
type ListParams struct {
	Status string
	Limit  int
	Cursor string
}

// ListResult is a page of wallet logs.
type ListResult struct {
	Items  []models.WalletLog `json:"items"`
	Cursor string             `json:"cursor"`
}

type service struct {
	repo     Repository
	deals    deals.Repository
	tx       txRunner
	outbox   outbox.Emitter
	notifier notifications.Notifier
	metrics  *metrics.MoneyFlowMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the settlement engine.
func NewService(repo Repository, dealRepo deals.Repository, tx txRunner, emitter outbox.Emitter, notifier notifications.Notifier, recorder *metrics.MoneyFlowMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet log repository required")
	}
	if dealRepo == nil {
		return nil, fmt.Errorf("deals repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if notifier == nil {
		notifier = notifications.Discard{}
	}
	return &service{
		repo:     repo,
		deals:    dealRepo,
		tx:       tx,
		outbox:   emitter,
		notifier: notifier,
		metrics:  recorder,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreatePending opens one pending payout per deal for its remain amount.
func (s *service) CreatePending(ctx context.Context, tx *gorm.DB, dealRows []models.Deal) ([]models.WalletLog, error) {
	logs := make([]models.WalletLog, 0, len(dealRows))
	for _, deal := range dealRows {
		logs = append(logs, models.WalletLog{
			DealID:   deal.ID,
			SellerID: deal.SellerID,
			Amount:   deal.Remain,
			Status:   enums.WalletLogStatusPending,
		})
	}
	if err := s.repo.WithTx(tx).Create(ctx, logs); err != nil {
		if db.IsUniqueViolation(err, uniqueWalletLogDeal) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "wallet log already exists for deal")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet logs")
	}
	return logs, nil
}

// MarkRefunded closes the pending payout of a refunded deal.
func (s *service) MarkRefunded(ctx context.Context, tx *gorm.DB, dealID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	log, err := repo.FindByDeal(ctx, dealID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeInvariant, "paid deal has no wallet log")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet log")
	}
	if !enums.CanTransitionWalletLog(log.Status, enums.WalletLogStatusRefunded) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet log cannot be refunded").
			WithDetails(map[string]any{"status": log.Status})
	}
	rows, err := repo.UpdateStatusByDeal(ctx, dealID, log.Status, enums.WalletLogStatusRefunded)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund wallet log")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet log changed concurrently")
	}
	return nil
}

// Settle pays out one wallet log. A log is settled at most once; the deal must
// be complete and not already settled.
func (s *service) Settle(ctx context.Context, walletLogID uuid.UUID, actor *deals.Actor) (*models.WalletLog, error) {
	if walletLogID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet log id required")
	}

	var settled *models.WalletLog
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		dealRepo := s.deals.WithTx(tx)

		log, err := repo.FindForUpdate(ctx, walletLogID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "wallet log not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet log")
		}
		if log.IsSettled || log.Status == enums.WalletLogStatusSettled {
			return pkgerrors.New(pkgerrors.CodeInvariant, "wallet log already settled").
				WithDetails(map[string]any{"wallet_log_id": log.ID})
		}

		deal, err := dealRepo.FindForUpdate(ctx, log.DealID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeInvariant, "wallet log references missing deal")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}
		if deal.IsSettled {
			return pkgerrors.New(pkgerrors.CodeConflict, "deal already settled")
		}
		if deal.Status != enums.DealStatusComplete {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deal not settleable").
				WithDetails(map[string]any{"deal_id": deal.ID, "status": deal.Status})
		}
		if !enums.CanTransitionWalletLog(log.Status, enums.WalletLogStatusSettled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet log not settleable").
				WithDetails(map[string]any{"status": log.Status})
		}

		now := s.now()
		if err := deals.Transition(ctx, dealRepo, deal, enums.DealStatusSettled, map[string]any{
			"is_settled": true,
			"remain":     0,
		}); err != nil {
			return err
		}
		rows, err := repo.MarkSettled(ctx, log.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle wallet log")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeInvariant, "wallet log settled concurrently")
		}
		log.Status = enums.WalletLogStatusSettled
		log.IsSettled = true
		log.SettledAt = &now

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDealSettled,
			AggregateType: enums.AggregateWalletLog,
			AggregateID:   log.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.DealSettledEvent{
				DealID:      deal.ID,
				WalletLogID: log.ID,
				SellerID:    log.SellerID,
				Amount:      log.Amount,
				SettledAt:   now,
			},
		}); err != nil {
			return err
		}
		s.notifier.Notify(ctx, tx, notifications.DealSettled{SellerID: log.SellerID, DealID: deal.ID, Amount: log.Amount})
		settled = log
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveSettlement(settled.Amount)
	logCtx := s.logg.WithDealID(ctx, settled.DealID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"wallet_log_id": settled.ID.String(),
		"amount":        settled.Amount,
	}), "wallet log settled")
	return settled, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listParams{Limit: params.Limit}
	if params.Status != "" {
		status, err := enums.ParseWalletLogStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Cursor != "" {
		cursor, err := pagination.Parse(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet logs")
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.Encode(*next)
	}
	return result, nil
}

// DueForSettlement lists pending wallet logs whose deal has completed.
func (s *service) DueForSettlement(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.FindSettleable(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find settleable wallet logs")
	}
	return ids, nil
}

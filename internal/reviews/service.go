package reviews

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/internal/deals"
	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
)

const maxContentLength = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type dealCompleter interface {
	CompleteTx(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, source deals.CompletionSource, actor *deals.Actor) error
}

// Service creates buyer reviews.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Review, error)
}

// CreateInput is a buyer's review of one deal.
type CreateInput struct {
	BuyerID uuid.UUID
	DealID  uuid.UUID
	Rating  int
	Content string
}

type service struct {
	repo      Repository
	deals     deals.Repository
	completer dealCompleter
	tx        txRunner
}

// NewService wires review creation with deal completion.
func NewService(repo Repository, dealRepo deals.Repository, completer dealCompleter, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if dealRepo == nil {
		return nil, fmt.Errorf("deals repository required")
	}
	if completer == nil {
		return nil, fmt.Errorf("deal completer required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, deals: dealRepo, completer: completer, tx: tx}, nil
}

func reviewable(status enums.DealStatus) bool {
	switch status {
	case enums.DealStatusShipped, enums.DealStatusDelivered, enums.DealStatusComplete:
		return true
	}
	return false
}

// Create stores the review and completes the deal in the same transaction.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Review, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.DealID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deal id required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	content := strings.TrimSpace(input.Content)
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review content too long")
	}

	var review *models.Review
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		deal, err := s.deals.WithTx(tx).FindForUpdate(ctx, input.DealID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}
		if deal.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "deal does not belong to buyer")
		}
		if !reviewable(deal.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deal cannot be reviewed in its current state").
				WithDetails(map[string]any{"status": deal.Status})
		}

		row := &models.Review{
			DealID:   deal.ID,
			BuyerID:  deal.BuyerID,
			SellerID: deal.SellerID,
			Rating:   input.Rating,
			Content:  content,
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			if db.IsUniqueViolation(err, uniqueDealReview) {
				return pkgerrors.New(pkgerrors.CodeConflict, "deal already reviewed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}

		actor := &deals.Actor{UserID: input.BuyerID, Role: enums.RoleUser}
		if err := s.completer.CompleteTx(ctx, tx, deal.ID, deals.CompletionReview, actor); err != nil {
			return err
		}
		review = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

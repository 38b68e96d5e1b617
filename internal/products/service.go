package product

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/pkg/db"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
)

// View is the catalog snapshot exposed to the cart and checkout.
type View struct {
	ID              uuid.UUID `json:"id"`
	SellerID        uuid.UUID `json:"seller_id"`
	Title           string    `json:"title"`
	Price           int64     `json:"price"`
	DiscountRate    string    `json:"discount_rate"`
	DiscountedPrice int64     `json:"discounted_price"`
	Sold            bool      `json:"sold"`
}

// NewView maps a product row.
func NewView(p models.Product) View {
	return View{
		ID:              p.ID,
		SellerID:        p.SellerID,
		Title:           p.Title,
		Price:           p.Price,
		DiscountRate:    p.DiscountRate.String(),
		DiscountedPrice: p.DiscountedPrice(),
		Sold:            p.Sold,
	}
}

// Service answers catalog reads.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*View, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	view := NewView(*p)
	return &view, nil
}

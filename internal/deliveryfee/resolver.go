package deliveryfee

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resolver loads the policies of a set of sellers, falling back to the default.
type Resolver struct {
	repo     Repository
	fallback Policy
}

func NewResolver(repo Repository, fallback Policy) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipping policy repository required")
	}
	return &Resolver{repo: repo, fallback: fallback}, nil
}

// Policies returns a lookup usable with Accumulator.Finalize. A nil tx reads
// outside any transaction.
func (r *Resolver) Policies(ctx context.Context, tx *gorm.DB, sellerIDs []uuid.UUID) (func(uuid.UUID) Policy, error) {
	rows, err := r.repo.WithTx(tx).FindBySellerIDs(ctx, sellerIDs)
	if err != nil {
		return nil, fmt.Errorf("load shipping policies: %w", err)
	}
	bySeller := make(map[uuid.UUID]Policy, len(rows))
	for _, row := range rows {
		bySeller[row.SellerID] = FromModel(row)
	}
	return func(sellerID uuid.UUID) Policy {
		if policy, ok := bySeller[sellerID]; ok {
			return policy
		}
		return r.fallback
	}, nil
}

package deals

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
)

// Transition moves deal and its trades to the target status. The move must be
// in the legal-transition table and is applied as a conditional update, so a
// concurrent writer that got there first surfaces as STATE_CONFLICT. The repo
// must already be bound to the caller's transaction.
func Transition(ctx context.Context, repo Repository, deal *models.Deal, to enums.DealStatus, extra map[string]any) error {
	from := deal.Status
	if !enums.CanTransitionDeal(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("deal cannot move from %s to %s", from, to)).
			WithDetails(map[string]any{"deal_id": deal.ID, "from": from, "to": to})
	}
	if !enums.CanTransitionTrade(from.TradeStatus(), to.TradeStatus()) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("trades cannot move from %s to %s", from, to))
	}

	rows, err := repo.UpdateStatus(ctx, deal.ID, from, to, extra)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update deal status")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "deal status changed concurrently").
			WithDetails(map[string]any{"deal_id": deal.ID, "expected": from})
	}
	if err := repo.UpdateTradeStatus(ctx, deal.ID, to.TradeStatus()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update trade status")
	}

	deal.Status = to
	for i := range deal.Trades {
		deal.Trades[i].Status = to.TradeStatus()
	}
	return nil
}

package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/internal/deliveryfee"
	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// View is the buyer's cart grouped by seller with a delivery fee preview.
type View struct {
	Groups         []SellerGroup `json:"groups"`
	TotalGoods     int64         `json:"total_goods"`
	DeliveryCharge int64         `json:"delivery_charge"`
	Total          int64         `json:"total"`
}

// SellerGroup is one seller's share of the cart. It becomes one deal at checkout.
type SellerGroup struct {
	SellerID       uuid.UUID `json:"seller_id"`
	Items          []Item    `json:"items"`
	TotalGoods     int64     `json:"total_goods"`
	DeliveryCharge int64     `json:"delivery_charge"`
	Total          int64     `json:"total"`
}

// Item is one trade in the cart.
type Item struct {
	TradeID   uuid.UUID `json:"trade_id"`
	ProductID uuid.UUID `json:"product_id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Sold      bool      `json:"sold"`
	Reserved  bool      `json:"reserved"`
}

// buildView groups trades by seller. Sold or missing products are listed but
// excluded from the totals.
func buildView(trades []models.Trade, products map[uuid.UUID]models.Product, policyFor func(uuid.UUID) deliveryfee.Policy, isRemoteArea bool) *View {
	acc := deliveryfee.NewAccumulator()
	groups := make(map[uuid.UUID]*SellerGroup)
	var order []uuid.UUID

	for _, trade := range trades {
		group, ok := groups[trade.SellerID]
		if !ok {
			group = &SellerGroup{SellerID: trade.SellerID}
			groups[trade.SellerID] = group
			order = append(order, trade.SellerID)
		}
		item := Item{
			TradeID:   trade.ID,
			ProductID: trade.ProductID,
			Reserved:  trade.Status == enums.TradeStatusPaymentConfirming,
		}
		product, found := products[trade.ProductID]
		if found {
			item.Title = product.Title
			item.Price = product.DiscountedPrice()
			item.Sold = product.Sold
		}
		group.Items = append(group.Items, item)
		if found && !product.Sold {
			acc.Add(trade.SellerID, item.Price)
		}
	}

	for _, totals := range acc.Finalize(policyFor, isRemoteArea) {
		group := groups[totals.SellerID]
		group.TotalGoods = totals.TotalGoods
		group.DeliveryCharge = totals.Charge
		group.Total = totals.Total()
	}

	view := &View{Groups: make([]SellerGroup, 0, len(order))}
	for _, sellerID := range order {
		group := groups[sellerID]
		view.Groups = append(view.Groups, *group)
		view.TotalGoods += group.TotalGoods
		view.DeliveryCharge += group.DeliveryCharge
		view.Total += group.Total
	}
	return view
}

package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealflow-backend/pkg/db/models"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
)

// DealOptions describes a single-item deal to seed. Zero values fall back to a
// paid 10000 + 3000 deal at a 3.5% commission.
type DealOptions struct {
	BuyerID        uuid.UUID
	SellerID       uuid.UUID
	Price          int64
	DeliveryCharge int64
	Rate           decimal.Decimal
	DealStatus     enums.DealStatus
	PaymentStatus  enums.PaymentStatus
	DeliveryState  enums.DeliveryStep
	WaybillAt      *time.Time
	ProductSold    *bool
}

// DealFixture holds the rows created by SeedDeal.
type DealFixture struct {
	Product  models.Product
	Payment  models.Payment
	Deal     models.Deal
	Trade    models.Trade
	Delivery models.Delivery
}

// SeedDeal inserts a product, payment, deal, trade and delivery wired together.
func SeedDeal(t *testing.T, conn *gorm.DB, opts DealOptions) DealFixture {
	t.Helper()
	if opts.BuyerID == uuid.Nil {
		opts.BuyerID = uuid.New()
	}
	if opts.SellerID == uuid.Nil {
		opts.SellerID = uuid.New()
	}
	if opts.Price == 0 {
		opts.Price = 10000
	}
	if opts.DeliveryCharge == 0 {
		opts.DeliveryCharge = 3000
	}
	if opts.Rate.IsZero() {
		opts.Rate = decimal.RequireFromString("0.035")
	}
	if opts.DealStatus == "" {
		opts.DealStatus = enums.DealStatusPaid
	}
	if opts.PaymentStatus == "" {
		opts.PaymentStatus = enums.PaymentStatusPaid
	}
	if opts.DeliveryState == "" {
		opts.DeliveryState = enums.DeliveryStep0
		if opts.WaybillAt != nil {
			opts.DeliveryState = enums.DeliveryStep1
		}
	}
	sold := opts.DealStatus != enums.DealStatusPaymentConfirming && opts.DealStatus != enums.DealStatusGatewayConfirmed
	if opts.ProductSold != nil {
		sold = *opts.ProductSold
	}

	fx := DealFixture{}
	fx.Product = models.Product{SellerID: opts.SellerID, Title: "fixture item", Price: opts.Price, Sold: sold}
	mustCreate(t, conn, &fx.Product)

	total := opts.Price + opts.DeliveryCharge
	fx.Payment = models.Payment{BuyerID: opts.BuyerID, Status: opts.PaymentStatus, Price: total}
	if opts.PaymentStatus == enums.PaymentStatusPaid {
		receipt := "receipt-" + uuid.NewString()
		paidAt := time.Now().UTC()
		fx.Payment.ReceiptID = &receipt
		fx.Payment.PaidAt = &paidAt
	}
	mustCreate(t, conn, &fx.Payment)

	goods := decimal.NewFromInt(opts.Price)
	fx.Deal = models.Deal{
		PaymentID:      fx.Payment.ID,
		BuyerID:        opts.BuyerID,
		SellerID:       opts.SellerID,
		Status:         opts.DealStatus,
		TotalGoods:     opts.Price,
		DeliveryCharge: opts.DeliveryCharge,
		Total:          total,
		Remain:         goods.Mul(decimal.NewFromInt(1).Sub(opts.Rate)).Floor().IntPart() + opts.DeliveryCharge,
		CommissionRate: opts.Rate,
	}
	mustCreate(t, conn, &fx.Deal)

	dealID := fx.Deal.ID
	fx.Trade = models.Trade{
		ProductID: fx.Product.ID,
		SellerID:  opts.SellerID,
		BuyerID:   opts.BuyerID,
		DealID:    &dealID,
		Status:    opts.DealStatus.TradeStatus(),
	}
	mustCreate(t, conn, &fx.Trade)

	fx.Delivery = models.Delivery{
		DealID:            fx.Deal.ID,
		SenderID:          opts.SellerID,
		ReceiverName:      "Receiver",
		Phone:             "010-0000-0000",
		Address:           "1 Test Street",
		State:             opts.DeliveryState,
		NumberCreatedTime: opts.WaybillAt,
	}
	if opts.WaybillAt != nil {
		carrier, number := "cj", "WB-"+uuid.NewString()[:8]
		fx.Delivery.CarrierCode = &carrier
		fx.Delivery.WaybillNumber = &number
	}
	mustCreate(t, conn, &fx.Delivery)
	return fx
}

// SeedProduct inserts an unsold product for seller.
func SeedProduct(t *testing.T, conn *gorm.DB, sellerID uuid.UUID, price int64) models.Product {
	t.Helper()
	product := models.Product{SellerID: sellerID, Title: "listing", Price: price}
	mustCreate(t, conn, &product)
	return product
}

func mustCreate(t *testing.T, conn *gorm.DB, value any) {
	t.Helper()
	if err := conn.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}
